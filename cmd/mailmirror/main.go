package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailmirror/internal/cache"
	"github.com/brandon/mailmirror/internal/config"
	"github.com/brandon/mailmirror/internal/email"
	"github.com/brandon/mailmirror/internal/pager"
	syncer "github.com/brandon/mailmirror/internal/sync"
	"github.com/brandon/mailmirror/pkg/types"
)

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mailmirror version %s\n", version)
		os.Exit(0)
	}

	// Optional .env for local runs; absence is fine.
	_ = godotenv.Load()

	// Set up logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.Info("Starting mailmirror")

	// The cache degrades to a no-op on failure; never fatal.
	mailCache := cache.NewCache(cfg.CachePath, logger)
	defer mailCache.Close()
	store := cache.NewStore(mailCache, logger)

	accounts := email.NewAccountManager(cfg, logger)
	defer accounts.Close()

	synchronizer := syncer.New(accounts, store, logger, cfg.PageSize, cfg.WatchdogTimeout)
	controller := pager.NewController(synchronizer, logger, cfg.PageSize, cfg.ViewportRows, cfg.RefreshInterval)
	synchronizer.SetScopeProvider(controller.Scope)

	synchronizer.OnNewMessages(func(account, folder string, count int) {
		logger.WithFields(logrus.Fields{
			"account": account,
			"folder":  folder,
			"count":   count,
		}).Info("New messages")
	})
	synchronizer.OnStatus(func(ev syncer.StatusEvent) {
		entry := logger.WithFields(logrus.Fields{
			"account": ev.Account,
			"folder":  ev.Folder,
			"status":  ev.Status.String(),
		})
		if ev.Err != nil {
			entry.WithError(ev.Err).Warn("Refresh status")
		} else {
			entry.Debug("Refresh status")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	account := cfg.GetDefaultAccount()
	session := controller.Focus(account.Name, syncer.FolderInbox)

	result, err := synchronizer.LoadPage(ctx, session.Account, session.Folder, session.Page())
	if err != nil {
		logger.WithError(err).Error("Failed to load inbox page")
	} else {
		session.CachePage(session.Page(), result.Messages)
		session.Render(result.Messages)
		printPage(session, result)
	}

	controller.Start(ctx)
	defer controller.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig).Info("Received shutdown signal")
	cancel()
	logger.Info("Shutting down mailmirror")
}

// printPage writes a one-line-per-message summary of the visible rows.
func printPage(session *pager.Session, result types.PageResult) {
	source := "remote"
	if result.FromCache {
		source = fmt.Sprintf("cache, synced %s ago", result.SyncAge.Round(time.Second))
	}
	fmt.Printf("%s/%s page %d of %d messages (%s)\n",
		session.Account, session.Folder, session.Page(), result.Total, source)

	start, end := session.VisibleRange()
	for _, msg := range result.Messages[start:end] {
		marker := " "
		if !msg.Seen() {
			marker = "*"
		}
		fmt.Printf("%s %s  %-25s  %s\n",
			marker, msg.Date.Format("2006-01-02 15:04"), msg.FromAddress, msg.Subject)
	}
}
