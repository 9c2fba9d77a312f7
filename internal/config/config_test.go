package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigSingleAccount(t *testing.T) {
	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_USERNAME", "alice")
	t.Setenv("IMAP_PASSWORD", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Accounts, 1)
	acc := cfg.Accounts[0]
	assert.Equal(t, "default", acc.Name)
	assert.Equal(t, "imap.example.com", acc.IMAPHost)
	assert.Equal(t, 993, acc.IMAPPort, "default port")
	assert.Equal(t, "alice", acc.IMAPUsername)

	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 30*time.Second, cfg.WatchdogTimeout)
	assert.NotEmpty(t, cfg.CachePath)
}

func TestLoadConfigMultipleAccounts(t *testing.T) {
	t.Setenv("ACCOUNT_1_NAME", "work")
	t.Setenv("ACCOUNT_1_IMAP_HOST", "imap.work.example")
	t.Setenv("ACCOUNT_1_IMAP_USERNAME", "w")
	t.Setenv("ACCOUNT_1_IMAP_PASSWORD", "wp")
	t.Setenv("ACCOUNT_2_NAME", "personal")
	t.Setenv("ACCOUNT_2_IMAP_HOST", "imap.home.example")
	t.Setenv("ACCOUNT_2_IMAP_PORT", "1993")
	t.Setenv("ACCOUNT_2_IMAP_USERNAME", "p")
	t.Setenv("ACCOUNT_2_IMAP_PASSWORD", "pp")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, []string{"work", "personal"}, cfg.AccountNames())
	assert.Equal(t, 1993, cfg.Accounts[1].IMAPPort)

	acc, err := cfg.GetAccountByName("personal")
	require.NoError(t, err)
	assert.Equal(t, "imap.home.example", acc.IMAPHost)

	_, err = cfg.GetAccountByName("missing")
	assert.Error(t, err)

	assert.Equal(t, "work", cfg.GetDefaultAccount().Name, "first account when none is named default")
}

func TestLoadConfigNoAccounts(t *testing.T) {
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigClampsSettings(t *testing.T) {
	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_USERNAME", "alice")
	t.Setenv("IMAP_PASSWORD", "secret")
	t.Setenv("PAGE_SIZE", "5000")
	t.Setenv("REFRESH_INTERVAL_MINUTES", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, cfg.PageSize)
	assert.Equal(t, MinRefreshInterval, cfg.RefreshInterval)
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, MinPageSize, ClampPageSize(0))
	assert.Equal(t, MinPageSize, ClampPageSize(-3))
	assert.Equal(t, 20, ClampPageSize(20))
	assert.Equal(t, MaxPageSize, ClampPageSize(100))
	assert.Equal(t, MaxPageSize, ClampPageSize(101))
}

func TestClampRefreshInterval(t *testing.T) {
	assert.Equal(t, MinRefreshInterval, ClampRefreshInterval(0))
	assert.Equal(t, 10*time.Minute, ClampRefreshInterval(10*time.Minute))
	assert.Equal(t, MaxRefreshInterval, ClampRefreshInterval(2*time.Hour))
}

func TestValidate(t *testing.T) {
	valid := &Config{
		CachePath: "/tmp/cache.db",
		Accounts: []AccountConfig{
			{Name: "work", IMAPHost: "imap.example.com", IMAPPort: 993},
		},
	}
	assert.NoError(t, valid.Validate())

	noPath := *valid
	noPath.CachePath = ""
	assert.Error(t, noPath.Validate())

	noAccounts := *valid
	noAccounts.Accounts = nil
	assert.Error(t, noAccounts.Validate())

	badPort := &Config{
		CachePath: "/tmp/cache.db",
		Accounts: []AccountConfig{
			{Name: "work", IMAPHost: "imap.example.com", IMAPPort: 70000},
		},
	}
	assert.Error(t, badPort.Validate())
}
