package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlfleet/crawlfleet/internal/config"
	"github.com/crawlfleet/crawlfleet/internal/logging"
	"github.com/crawlfleet/crawlfleet/internal/metrics"
	"github.com/crawlfleet/crawlfleet/internal/queue"
	"github.com/crawlfleet/crawlfleet/internal/storage/postgres"
)

// newConsumeCmd creates the 'consume' subcommand: drain the outbound
// queue into the Postgres page archive.
func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Consume published pages into the archive",
		Long: `Attaches a consumer to the outbound queue and archives every decoded
page into Postgres. Deliveries are acknowledged only after a successful
write; undecodable or unarchivable deliveries are rejected without
requeue.`,
		RunE: runConsume,
	}
}

func runConsume(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ops := metrics.NewServer(cfg.Ops.Port, reg, logger)
	go func() {
		if err := ops.Run(ctx); err != nil {
			logger.Warn("ops server stopped", zap.Error(err))
		}
	}()

	archive, err := postgres.NewPageStore(ctx, postgres.PageStoreConfig{
		DSN:      cfg.Postgres.DSN,
		MaxConns: int32(cfg.Postgres.MaxConns),
	})
	if err != nil {
		return fmt.Errorf("connect page archive: %w", err)
	}
	defer archive.Close()

	rabbit, err := queue.Dial(queue.Config{
		User:          cfg.Rabbit.User,
		Password:      cfg.Rabbit.Password,
		Host:          cfg.Rabbit.Host,
		Port:          cfg.Rabbit.Port,
		Queue:         cfg.Rabbit.Queue,
		ConsumerLabel: cfg.Rabbit.ConsumerLabel,
		ContentType:   cfg.Rabbit.ContentType,
	}, m, logger)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer rabbit.Close() //nolint:errcheck // shutdown path

	logger.Info("starting consumer", zap.String("queue", cfg.Rabbit.Queue))

	if err := ignoreCanceled(rabbit.Consume(ctx, archive.SavePage)); err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	logger.Info("consumer stopped")
	return nil
}
