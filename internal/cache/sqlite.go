package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Cache represents the SQLite cache.
//
// The cache is an optimization, never a requirement: if it cannot be opened
// (missing permissions, unwritable disk), it degrades to a permanent no-op
// where reads return nothing and writes are dropped, and the remote mailbox
// stays the source of truth. Callers never see initialization errors.
type Cache struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewCache opens the cache at dbPath, creating the directory and schema as
// needed. On failure it returns a degraded no-op cache instead of an error.
func NewCache(dbPath string, logger *logrus.Logger) *Cache {
	cache := &Cache{logger: logger}

	db, err := openDatabase(dbPath)
	if err != nil {
		logger.WithError(err).WithField("path", dbPath).Warn("Cache unavailable, continuing without persistence")
		return cache
	}

	cache.db = db
	logger.WithField("path", dbPath).Info("Cache initialized")
	return cache
}

// openDatabase opens and prepares the SQLite database.
func openDatabase(dbPath string) (*sql.DB, error) {
	inMemory := strings.Contains(dbPath, ":memory:") || strings.Contains(dbPath, "mode=memory")

	if !inMemory {
		// Owner-only cache directory
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer serializes bulk upserts from concurrent refreshes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if !inMemory {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if !inMemory {
		// Owner-only database file
		if err := os.Chmod(dbPath, 0600); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to restrict database permissions: %w", err)
		}
	}

	return db, nil
}

// Available reports whether the cache is backed by a database.
func (c *Cache) Available() bool {
	return c.db != nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// DB returns the underlying database connection (for use in store.go).
func (c *Cache) DB() *sql.DB {
	return c.db
}
