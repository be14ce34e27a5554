package main

import (
	"fmt"
	"log/slog"

	"github.com/mixelka/emailchannel/internal/config"
	"github.com/mixelka/emailchannel/internal/conversation"
	"github.com/mixelka/emailchannel/internal/dispatch"
	"github.com/mixelka/emailchannel/internal/email"
	"github.com/mixelka/emailchannel/internal/metrics"
	"github.com/mixelka/emailchannel/internal/transport"
)

type app struct {
	cfg           *config.Config
	logger        *slog.Logger
	accounts      *config.Accounts
	metrics       *metrics.Metrics
	status        *email.StatusRegistry
	conversations *conversation.Store
	pool          *transport.Pool
	manager       *email.Manager
}

func wireApp(cfg *config.Config, logger *slog.Logger, dispatcher dispatch.Dispatcher) (*app, error) {
	accounts, err := config.LoadAccounts(cfg.AccountsFile)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	m := metrics.New()
	status := email.NewStatusRegistry()
	conversations := conversation.New()

	pool := transport.NewPool(
		transport.NewSMTPDialer(cfg.SMTPDialTimeout),
		transport.WithPoolLogger(logger),
		transport.WithPoolMetrics(m),
	)

	manager := email.NewManager(email.ManagerDeps{
		Accounts:      accounts,
		Conversations: conversations,
		Dispatcher:    dispatcher,
		Sender:        transport.NewMailer(pool, logger),
		Connector:     email.NewIMAPConnector(cfg.IMAPDialTimeout, logger),
		Status:        status,
		Metrics:       m,
		Logger:        logger,
	})

	return &app{
		cfg:           cfg,
		logger:        logger,
		accounts:      accounts,
		metrics:       m,
		status:        status,
		conversations: conversations,
		pool:          pool,
		manager:       manager,
	}, nil
}

// Close stops pollers and releases pooled connections
func (a *app) Close() {
	a.manager.StopAll()
	a.pool.Close()
	a.conversations.Close()
}
