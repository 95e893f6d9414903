package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlfleet/crawlfleet/internal/agent"
	"github.com/crawlfleet/crawlfleet/internal/config"
	"github.com/crawlfleet/crawlfleet/internal/crawl"
	"github.com/crawlfleet/crawlfleet/internal/dedup"
	"github.com/crawlfleet/crawlfleet/internal/dispatcher"
	"github.com/crawlfleet/crawlfleet/internal/fetch"
	"github.com/crawlfleet/crawlfleet/internal/logging"
	"github.com/crawlfleet/crawlfleet/internal/metrics"
	"github.com/crawlfleet/crawlfleet/internal/queue"
	"github.com/crawlfleet/crawlfleet/internal/robots"
)

// newCrawlCmd creates the 'crawl' subcommand: partition the seed list,
// run the agents, and publish page results to the queue.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run the crawl agents over the configured seed list",
		Long: `Partitions the configured seeds into contiguous chunks, one per agent,
and runs all agents concurrently. Each agent crawls breadth-first up to
the depth bound, honoring robots.txt and the shared dedup store, and
publishes every fetched page to the outbound queue.`,
		RunE: runCrawl,
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
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

	store, err := dedup.NewRedisStore(ctx, dedup.Config{
		Host: cfg.Redis.Host,
		Port: cfg.Redis.Port,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("connect dedup store: %w", err)
	}
	defer store.Close() //nolint:errcheck // shutdown path

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

	fetcher, closeFetcher, err := buildFetcher(cfg)
	if err != nil {
		return fmt.Errorf("build fetcher: %w", err)
	}
	defer closeFetcher()

	gate := robots.NewGate(cfg.Crawler.UserAgent, logger)

	chunks := dispatcher.Partition(cfg.Crawler.Seeds, cfg.Crawler.Agents)
	runners := make([]dispatcher.Runner, 0, len(chunks))
	for i, seeds := range chunks {
		a := agent.New(agent.Config{
			Name:          fmt.Sprintf("crawler-%d", i+1),
			MaxDepth:      cfg.Crawler.MaxDepth,
			RespectRobots: cfg.Crawler.RespectRobots,
			Keywords:      cfg.Crawler.Keywords,
		}, seeds, fetcher, gate, store, rabbit, m, logger)
		runners = append(runners, a)
	}

	logger.Info("starting crawl",
		zap.Int("agents", len(runners)),
		zap.Int("seeds", len(cfg.Crawler.Seeds)),
		zap.Int("max_depth", cfg.Crawler.MaxDepth),
	)

	if err := ignoreCanceled(dispatcher.New(runners, logger).Run(ctx)); err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	logger.Info("crawl finished")
	return nil
}

func buildFetcher(cfg config.Config) (crawl.Fetcher, func(), error) {
	if cfg.Headless.Enabled {
		r, err := fetch.NewRenderer(fetch.RendererConfig{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.Headless.NavTimeout(),
		})
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
	c := fetch.NewClient(fetch.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.HTTP.Timeout(),
	})
	return c, func() {}, nil
}
