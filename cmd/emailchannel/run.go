package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mixelka/emailchannel/internal/config"
	"github.com/mixelka/emailchannel/internal/database"
	"github.com/mixelka/emailchannel/internal/dispatch"
	"github.com/mixelka/emailchannel/internal/formatter"
	"github.com/mixelka/emailchannel/internal/health"
	"github.com/mixelka/emailchannel/internal/telegram"
)

const (
	forwardedRetention = 30 * 24 * time.Hour
	pruneInterval      = time.Hour
	shutdownTimeout    = 10 * time.Second
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll all accounts and relay mail until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, logger)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting email channel")

	var dispatchers dispatch.Multi
	if cfg.WebhookEnabled() {
		dispatchers = append(dispatchers, dispatch.NewWebhook(cfg.WebhookURL,
			dispatch.WithBearerToken(cfg.WebhookToken),
			dispatch.WithHTTPClient(&http.Client{Timeout: cfg.WebhookTimeout}),
			dispatch.WithWebhookLogger(logger),
		))
		logger.Info("webhook dispatcher enabled", "url", cfg.WebhookURL)
	}

	var (
		db    *database.DB
		relay *telegram.Relay
	)
	if cfg.TelegramEnabled() {
		var err error
		db, err = database.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("database migrations completed")

		relay, err = telegram.NewRelay(telegram.RelayDeps{
			Token:     cfg.TelegramToken,
			ChatID:    cfg.TelegramChatID,
			TopicID:   cfg.TelegramTopicID,
			Store:     db,
			Formatter: formatter.NewTelegramFormatter(),
			Logger:    logger,
			Rate:      cfg.TelegramRate,
		})
		if err != nil {
			return fmt.Errorf("create telegram relay: %w", err)
		}
		dispatchers = append(dispatchers, relay)
	}
	if len(dispatchers) == 0 {
		logger.Warn("no dispatcher configured, inbound mail is only logged")
	}

	app, err := wireApp(cfg, logger, dispatchers)
	if err != nil {
		return err
	}
	defer app.Close()

	if relay != nil {
		relay.SetChannel(app.manager)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	var httpServer *http.Server
	if cfg.MetricsAddr != "" {
		var sqlDB *sql.DB
		if db != nil {
			sqlDB = db.DB.DB
		}
		probes := health.NewChecker(app.manager, sqlDB).Handler()

		mux := http.NewServeMux()
		mux.Handle("/metrics", app.metrics.Handler())
		mux.Handle("/live", probes)
		mux.Handle("/ready", probes)
		mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(app.manager.Snapshots())
		})
		httpServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		group.Go(func() error {
			logger.Info("starting metrics server", "address", cfg.MetricsAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if relay != nil {
		group.Go(func() error {
			relay.Start(groupCtx)
			return nil
		})

		group.Go(func() error {
			ticker := time.NewTicker(pruneInterval)
			defer ticker.Stop()

			for {
				select {
				case <-groupCtx.Done():
					return nil
				case <-ticker.C:
					n, err := db.DeleteForwardedBefore(groupCtx, time.Now().Add(-forwardedRetention))
					if err != nil {
						logger.Error("failed to prune forwarded messages", "error", err)
					} else if n > 0 {
						logger.Info("pruned forwarded messages", "count", n)
					}
				}
			}
		})
	}

	started := app.manager.StartAll(groupCtx)
	logger.Info("email channel is running, press Ctrl+C to stop", "accounts", started)

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down...")

		app.manager.StopAll()

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("email channel stopped")
	return nil
}
