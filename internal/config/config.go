package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Bounds for the interactive settings. Values outside these ranges are
// clamped, not rejected.
const (
	MinPageSize = 1
	MaxPageSize = 100

	MinRefreshInterval = 1 * time.Minute
	MaxRefreshInterval = 60 * time.Minute
)

// Config holds the application configuration
type Config struct {
	// Cache settings
	CachePath string
	LogLevel  string

	// Page and refresh settings
	PageSize        int
	ViewportRows    int
	RefreshInterval time.Duration
	WatchdogTimeout time.Duration

	// Accounts
	Accounts []AccountConfig
}

// AccountConfig holds configuration for a single mailbox account
type AccountConfig struct {
	Name string

	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		CachePath:       getEnv("CACHE_PATH", defaultCachePath()),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		PageSize:        getEnvInt("PAGE_SIZE", 20),
		ViewportRows:    getEnvInt("VIEWPORT_ROWS", 10),
		RefreshInterval: time.Duration(getEnvInt("REFRESH_INTERVAL_MINUTES", 5)) * time.Minute,
		WatchdogTimeout: time.Duration(getEnvInt("WATCHDOG_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	cfg.PageSize = ClampPageSize(cfg.PageSize)
	cfg.RefreshInterval = ClampRefreshInterval(cfg.RefreshInterval)

	// Load accounts
	accounts, err := loadAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	cfg.Accounts = accounts
	return cfg, nil
}

// ClampPageSize bounds a page size to [MinPageSize, MaxPageSize]
func ClampPageSize(size int) int {
	if size < MinPageSize {
		return MinPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// ClampRefreshInterval bounds a refresh interval to
// [MinRefreshInterval, MaxRefreshInterval]
func ClampRefreshInterval(d time.Duration) time.Duration {
	if d < MinRefreshInterval {
		return MinRefreshInterval
	}
	if d > MaxRefreshInterval {
		return MaxRefreshInterval
	}
	return d
}

// defaultCachePath returns the per-user cache location. The cache layer
// creates the directory with owner-only permissions.
func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mailmirror.db"
	}
	return filepath.Join(home, ".local", "share", "mailmirror", "cache.db")
}

// loadAccounts loads mailbox account configurations from environment variables
func loadAccounts() ([]AccountConfig, error) {
	var accounts []AccountConfig

	// First, try single account configuration
	if getEnv("IMAP_HOST", "") != "" {
		account, err := loadSingleAccount()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
		return accounts, nil
	}

	// Load multiple accounts (ACCOUNT_1_*, ACCOUNT_2_*, etc.)
	accountNum := 1
	for {
		account, err := loadAccountByNumber(accountNum)
		if err != nil {
			break // No more accounts
		}
		accounts = append(accounts, *account)
		accountNum++
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts found in environment variables")
	}

	return accounts, nil
}

// loadSingleAccount loads a single account from bare IMAP_* variables
func loadSingleAccount() (*AccountConfig, error) {
	host := getEnv("IMAP_HOST", "")
	port := getEnvInt("IMAP_PORT", 993)
	username := getEnv("IMAP_USERNAME", "")
	password := getEnv("IMAP_PASSWORD", "")

	if host == "" {
		return nil, fmt.Errorf("IMAP_HOST is required")
	}
	if username == "" {
		return nil, fmt.Errorf("IMAP_USERNAME is required")
	}
	if password == "" {
		return nil, fmt.Errorf("IMAP_PASSWORD is required")
	}

	name := getEnv("ACCOUNT_NAME", "default")
	if name == "" {
		name = "default"
	}

	return &AccountConfig{
		Name:         name,
		IMAPHost:     host,
		IMAPPort:     port,
		IMAPUsername: username,
		IMAPPassword: password,
	}, nil
}

// loadAccountByNumber loads an account by number (ACCOUNT_1_*, ACCOUNT_2_*, etc.)
func loadAccountByNumber(num int) (*AccountConfig, error) {
	prefix := fmt.Sprintf("ACCOUNT_%d_", num)

	name := getEnv(prefix+"NAME", "")
	if name == "" {
		return nil, fmt.Errorf("account %d: NAME is required", num)
	}

	host := getEnv(prefix+"IMAP_HOST", "")
	port := getEnvInt(prefix+"IMAP_PORT", 993)
	username := getEnv(prefix+"IMAP_USERNAME", "")
	password := getEnv(prefix+"IMAP_PASSWORD", "")

	if host == "" {
		return nil, fmt.Errorf("account %d: IMAP_HOST is required", num)
	}
	if username == "" || password == "" {
		return nil, fmt.Errorf("account %d: IMAP_USERNAME and IMAP_PASSWORD are required", num)
	}

	return &AccountConfig{
		Name:         name,
		IMAPHost:     host,
		IMAPPort:     port,
		IMAPUsername: username,
		IMAPPassword: password,
	}, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetAccountByName finds an account by name
func (c *Config) GetAccountByName(name string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account not found: %s", name)
}

// GetDefaultAccount returns the account named "default", or the first account
func (c *Config) GetDefaultAccount() *AccountConfig {
	if len(c.Accounts) == 0 {
		return nil
	}

	for i := range c.Accounts {
		if c.Accounts[i].Name == "default" {
			return &c.Accounts[i]
		}
	}

	return &c.Accounts[0]
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.CachePath == "" {
		return fmt.Errorf("CACHE_PATH is required")
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}

	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if acc.IMAPHost == "" {
			return fmt.Errorf("account %s: IMAP_HOST is required", acc.Name)
		}
		if acc.IMAPPort < 1 || acc.IMAPPort > 65535 {
			return fmt.Errorf("account %s: invalid IMAP_PORT", acc.Name)
		}
	}

	return nil
}

// AccountNames returns a list of all account names
func (c *Config) AccountNames() []string {
	names := make([]string, len(c.Accounts))
	for i := range c.Accounts {
		names[i] = c.Accounts[i].Name
	}
	return names
}
