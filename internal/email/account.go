package email

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailmirror/internal/config"
)

// Account pairs an account's configuration with its mailbox client.
type Account struct {
	Config *config.AccountConfig
	Client Client
}

// AccountManager manages the configured mailbox accounts.
type AccountManager struct {
	accounts map[string]*Account
	logger   *logrus.Logger
}

// NewAccountManager creates clients for every configured account.
func NewAccountManager(cfg *config.Config, logger *logrus.Logger) *AccountManager {
	manager := &AccountManager{
		accounts: make(map[string]*Account),
		logger:   logger,
	}

	for i := range cfg.Accounts {
		accCfg := &cfg.Accounts[i]
		manager.accounts[accCfg.Name] = &Account{
			Config: accCfg,
			Client: NewIMAPClient(accCfg, logger),
		}
	}

	return manager
}

// Client returns the mailbox client for the named account.
func (m *AccountManager) Client(name string) (Client, error) {
	account, exists := m.accounts[name]
	if !exists {
		return nil, fmt.Errorf("account not found: %s", name)
	}
	return account.Client, nil
}

// Accounts returns all account names.
func (m *AccountManager) Accounts() []string {
	names := make([]string, 0, len(m.accounts))
	for name := range m.accounts {
		names = append(names, name)
	}
	return names
}

// Close disconnects all account clients.
func (m *AccountManager) Close() {
	for name, account := range m.accounts {
		if err := account.Client.Disconnect(); err != nil {
			m.logger.WithError(err).WithField("account", name).Debug("Failed to disconnect cleanly")
		}
	}
}
