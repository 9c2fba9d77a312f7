package pager

import (
	"context"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailmirror/internal/config"
)

// tickEvery is the granularity at which the auto-refresh timer is checked;
// the configured interval decides whether a check fires.
const tickEvery = 15 * time.Second

// Refresher is the synchronizer surface the controller drives.
type Refresher interface {
	RefreshFolder(ctx context.Context, account, folder string) error
	InProgress(account, folder string) bool
}

// Controller owns at most one focused session and drives its auto-refresh
// timer. The timer fires only while a pair is focused, no refresh is already
// in flight for it, and the interval has elapsed; its epoch resets whenever
// the focused pair changes.
type Controller struct {
	refresher Refresher
	logger    *logrus.Logger

	pageSize   int
	viewHeight int
	interval   time.Duration

	mu      gosync.Mutex
	session *Session

	startOnce gosync.Once
	stopCh    chan struct{}
}

// NewController creates a controller. Page size and refresh interval are
// clamped to their configured bounds.
func NewController(refresher Refresher, logger *logrus.Logger, pageSize, viewHeight int, interval time.Duration) *Controller {
	if viewHeight < 1 {
		viewHeight = 1
	}
	return &Controller{
		refresher:  refresher,
		logger:     logger,
		pageSize:   config.ClampPageSize(pageSize),
		viewHeight: viewHeight,
		interval:   config.ClampRefreshInterval(interval),
		stopCh:     make(chan struct{}),
	}
}

// Focus makes a folder+account pair the active session. Focusing the pair
// already focused is a no-op; a different pair tears the old session down,
// page cache included, and starts a fresh timer epoch.
func (c *Controller) Focus(account, folder string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && c.session.Account == account && c.session.Folder == folder {
		return c.session
	}

	if c.session != nil {
		c.logger.WithFields(logrus.Fields{
			"account": c.session.Account,
			"folder":  c.session.Folder,
		}).Debug("Discarding session on focus change")
		c.session.pages.Purge()
	}

	c.session = newSession(account, folder, c.pageSize, c.viewHeight, time.Now())
	c.logger.WithFields(logrus.Fields{
		"session": c.session.ID,
		"account": account,
		"folder":  folder,
	}).Debug("Session focused")
	return c.session
}

// Blur discards the active session, if any.
func (c *Controller) Blur() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.session.pages.Purge()
		c.session = nil
	}
}

// Session returns the active session, or nil when nothing has focus.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Scope reports the focused pair. It satisfies the synchronizer's scope
// provider for "current"-scope refreshes.
func (c *Controller) Scope() (account, folder string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return "", "", false
	}
	return c.session.Account, c.session.Folder, true
}

// Tick checks the auto-refresh conditions at now and fires a refresh when all
// hold. It reports whether a refresh was issued.
func (c *Controller) Tick(ctx context.Context, now time.Time) bool {
	c.mu.Lock()
	session := c.session
	if session == nil || now.Sub(session.lastFire) < c.interval {
		c.mu.Unlock()
		return false
	}
	account, folder := session.Account, session.Folder
	c.mu.Unlock()

	if c.refresher.InProgress(account, folder) {
		return false
	}

	c.mu.Lock()
	// The session may have changed while the in-flight check ran.
	if c.session != session {
		c.mu.Unlock()
		return false
	}
	session.lastFire = now
	c.mu.Unlock()

	if err := c.refresher.RefreshFolder(ctx, account, folder); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"account": account,
			"folder":  folder,
		}).Warn("Auto-refresh failed")
	}
	return true
}

// Start launches the timer loop. Safe to call once; Stop halts it.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.run(ctx)
	})
}

// Stop halts the timer loop.
func (c *Controller) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

func (c *Controller) run(ctx context.Context) {
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			c.Tick(ctx, now)
		}
	}
}
