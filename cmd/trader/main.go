package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gregtusar/thstrader/api"
	"github.com/gregtusar/thstrader/internal/config"
	"github.com/gregtusar/thstrader/internal/logging"
	"github.com/gregtusar/thstrader/pkg/journal"
	"github.com/gregtusar/thstrader/pkg/models"
	"github.com/gregtusar/thstrader/pkg/quote"
	"github.com/gregtusar/thstrader/pkg/trader"
	"github.com/gregtusar/thstrader/pkg/uiclient"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ths-trader",
		Short: "THS desktop trading client adapter",
		Long:  `Exposes the THS (同花顺) trading window, driven by a UI automation bridge, as a uniform trading interface`,
		Run:   runTrader,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(
		tableCommand("balance", "Print the account balance", func(ctx context.Context, t *trader.ThsTrader) (models.Table, error) {
			return t.GetBalance(ctx, true)
		}),
		tableCommand("positions", "Print held positions", func(ctx context.Context, t *trader.ThsTrader) (models.Table, error) {
			table, _, err := t.GetPositions(ctx, true)
			return table, err
		}),
		tableCommand("entrusts", "Print today's entrusts", func(ctx context.Context, t *trader.ThsTrader) (models.Table, error) {
			return t.GetCurEntrusts(ctx)
		}),
		tableCommand("deals", "Print today's deals", func(ctx context.Context, t *trader.ThsTrader) (models.Table, error) {
			return t.GetCurDeals(ctx)
		}),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *logrus.Logger, func()) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up logging")
	}
	return cfg, logger, closeLog
}

func newTrader(ctx context.Context, cfg *config.Config, logger *logrus.Logger, extra ...trader.Option) (*trader.ThsTrader, func(), error) {
	auth, err := uiclient.NewAuthenticator(uiclient.AuthType(cfg.Bridge.AuthType), cfg.Ths.Account, cfg.Bridge.SigningKey)
	if err != nil {
		return nil, nil, fmt.Errorf("bridge auth: %w", err)
	}

	client := uiclient.NewRemoteClient(cfg.Bridge.URL, cfg.Bridge.Timeout,
		uiclient.WithAuthenticator(auth),
		uiclient.WithRateLimit(cfg.Bridge.RateLimit, cfg.Bridge.RateBurst),
	)

	var j journal.Journal
	cleanup := func() {}
	switch cfg.Journal.Driver {
	case "postgres":
		pg, err := journal.NewPostgresJournal(ctx, cfg.Journal.DSN)
		if err != nil {
			return nil, nil, err
		}
		j, cleanup = pg, pg.Close
	default:
		j = journal.NewMemoryJournal(cfg.Journal.MaxEntries)
	}

	opts := []trader.Option{
		trader.WithRetryPolicy(trader.RetryPolicy{
			Attempts: cfg.Trader.RetryAttempts,
			Delay:    cfg.Trader.RetryDelay,
		}),
		trader.WithHeartbeat(cfg.Trader.HeartbeatInterval),
		trader.WithJournal(j),
	}
	t := trader.NewThsTrader(client,
		trader.Credentials{
			Account:  cfg.Ths.Account,
			Password: cfg.Ths.Password,
			ExePath:  cfg.Ths.ExePath,
		},
		logger,
		append(opts, extra...)...,
	)
	return t, cleanup, nil
}

func tableCommand(use, short string, get func(context.Context, *trader.ThsTrader) (models.Table, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closeLog := setup()
			defer closeLog()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Bridge.Timeout)
			defer cancel()

			t, cleanup, err := newTrader(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			table, err := get(ctx, t)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(table)
		},
	}
}

func runTrader(cmd *cobra.Command, args []string) {
	cfg, logger, closeLog := setup()
	defer closeLog()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var feed *quote.WebSocketClient
	var traderOpts []trader.Option
	if cfg.Quote.Enabled {
		feed = quote.NewWebSocketClient(cfg.Quote.URL, logger,
			quote.WithReconnect(cfg.Quote.ReconnectDelay, cfg.Quote.MaxReconnects),
		)
		// every broker positions fetch moves the subscription along
		traderOpts = append(traderOpts, trader.WithPositionsListener(func(codes []string) {
			if err := feed.Subscribe(codes); err != nil {
				logger.WithError(err).Warn("Failed to update quote subscription")
			}
		}))
	}

	thsTrader, cleanup, err := newTrader(ctx, cfg, logger, traderOpts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create THS trader")
	}
	defer cleanup()

	if !thsTrader.Login(ctx) {
		logger.Fatal("Failed to log in to THS")
	}

	if err := thsTrader.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start THS trader")
	}

	// Prime the caches so ticks can reprice positions
	if _, err := thsTrader.GetBalance(ctx, true); err != nil {
		logger.WithError(err).Warn("Initial balance fetch failed")
	}
	if _, _, err := thsTrader.GetPositions(ctx, true); err != nil {
		logger.WithError(err).Warn("Initial positions fetch failed, heartbeat will retry")
	}

	if feed != nil {
		feed.RegisterHandler(quote.MessageTypeTicks, quote.TicksHandler(thsTrader.OnTicks))

		go func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Quote feed stopped")
			}
		}()
	}

	apiServer := api.NewServer(thsTrader, logger, fmt.Sprintf("%d", cfg.Server.Port))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("THS trader is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server shutdown")
	}
	thsTrader.Stop()
	if !thsTrader.Logout(shutdownCtx, false) {
		logger.Warn("Logout from THS failed")
	}
	cancel()

	logger.Info("THS trader stopped")
}
