package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/klcheung/alertledger/internal/config"
	"github.com/klcheung/alertledger/internal/dashboard"
	"github.com/klcheung/alertledger/internal/engine"
	"github.com/klcheung/alertledger/internal/gateway"
	"github.com/klcheung/alertledger/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracker: poll channels, track orders, serve the dashboard",
	Long: `Start the long-running tracker process.

With gateway.base_url configured it polls the relay API for new messages
and feeds them through the signal grammars. The dashboard API is always
served. The ledger is flushed after every mutation and, if
storage.flush_schedule is set, on a cron schedule as well.

Example:
  tracker serve -f config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Environment.LogLevel)

	store, err := storage.NewJSONStorage(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	eng, err := engine.New(engine.Config{
		AssumedStopLossPct: cfg.Tracker.AssumedStopLossPct,
		ExpiredLossPct:     cfg.Tracker.ExpiredLossPct,
	}, store, logger)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	server := dashboard.NewServer(dashboard.Config{
		Port:      cfg.Server.Port,
		AuthToken: cfg.ServerAuthToken(),
	}, eng, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping tracker...")
		cancel()
	}()

	scheduler := cron.New()
	if cfg.Storage.FlushSchedule != "" {
		if _, err := scheduler.AddFunc(cfg.Storage.FlushSchedule, func() {
			if err := eng.Persist(); err != nil {
				logger.WithError(err).Error("Scheduled ledger flush failed")
			}
		}); err != nil {
			return fmt.Errorf("invalid storage.flush_schedule: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()
		select {
		case <-gctx.Done():
			return server.Shutdown(context.Background())
		case err := <-errCh:
			return err
		}
	})

	if cfg.Gateway.BaseURL != "" {
		client := gateway.NewCircuitBreakerClient(
			gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.GatewayToken(), logger),
		)
		poller := gateway.NewPoller(client, eng, cfg.Gateway.ChannelIDs, cfg.GetPollInterval(), logger)
		g.Go(func() error {
			if err := poller.Run(gctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
		// Hourly backfill pass in case individual ticks were missed. The
		// journal's id check keeps re-reads harmless.
		if _, err := scheduler.AddFunc("@hourly", func() {
			poller.PollOnce(gctx)
		}); err != nil {
			return fmt.Errorf("scheduling backfill: %w", err)
		}
		logger.Infof("Polling %d channels every %s", len(cfg.Gateway.ChannelIDs), cfg.GetPollInterval())
	} else {
		logger.Info("No gateway configured, running dashboard-only")
	}

	scheduler.Start()
	defer scheduler.Stop()

	err = g.Wait()

	// Final synchronous flush so nothing rides on the async persister.
	if perr := eng.Persist(); perr != nil {
		logger.WithError(perr).Error("Final ledger flush failed")
	}
	return err
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}
