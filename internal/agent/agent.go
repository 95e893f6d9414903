// Package agent implements the crawl loop: one agent drives one
// bounded work queue to completion.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/crawlfleet/crawlfleet/internal/crawl"
	"github.com/crawlfleet/crawlfleet/internal/metrics"
)

// errDrained reports the terminal queue-empty state internally.
var errDrained = errors.New("queue drained")

// Config controls one agent's behavior.
type Config struct {
	Name          string
	MaxDepth      int
	RespectRobots bool
	// Keywords classify discovered links: a link containing any keyword
	// joins the prioritized batch during expansion.
	Keywords []string
}

// Agent owns a FIFO queue of crawl tasks and executes them until the
// queue drains. Tasks are popped from the head; children append at the
// tail, prioritized batch first. Agents never share queues; the dedup
// store is the only cross-agent state.
type Agent struct {
	cfg       Config
	queue     []crawl.Task
	fetcher   crawl.Fetcher
	robots    crawl.RobotsPolicy
	dedup     crawl.DedupStore
	publisher crawl.Publisher
	metrics   *metrics.Set
	logger    *zap.Logger
}

// New constructs an Agent seeded with the given URLs at depth 0.
func New(
	cfg Config,
	seeds []string,
	fetcher crawl.Fetcher,
	robots crawl.RobotsPolicy,
	dedup crawl.DedupStore,
	publisher crawl.Publisher,
	m *metrics.Set,
	logger *zap.Logger,
) *Agent {
	a := &Agent{
		cfg:       cfg,
		fetcher:   fetcher,
		robots:    robots,
		dedup:     dedup,
		publisher: publisher,
		metrics:   m,
		logger:    logger.Named("agent").With(zap.String("agent", cfg.Name)),
	}
	for _, seed := range seeds {
		a.Push(crawl.Task{Target: seed, Depth: 0})
	}
	return a
}

// Name returns the agent's configured name.
func (a *Agent) Name() string { return a.cfg.Name }

// Push appends a task to the queue tail. Always succeeds.
func (a *Agent) Push(task crawl.Task) {
	a.queue = append(a.queue, task)
}

// Run executes queued tasks until the queue drains. Per-task failures
// are absorbed and logged; a transport fault aborts the run and is
// returned to the caller. Once drained, the agent is terminal: it
// cannot be restarted without repopulating its queue.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent started", zap.Int("seeds", len(a.queue)))
	for {
		err := a.step(ctx)
		switch {
		case errors.Is(err, errDrained):
			a.logger.Info("agent drained")
			return nil
		case err == nil:
		case crawl.IsTransport(err):
			a.logger.Error("agent aborting on transport fault", zap.Error(err))
			return err
		case errors.Is(err, crawl.ErrDisallowed):
			a.metrics.RobotsDenied()
			a.logger.Warn("task disallowed by robots policy", zap.Error(err))
		default:
			a.metrics.FetchFailed()
			a.logger.Warn("task failed", zap.Error(err))
		}
	}
}

// step pops and executes one task.
func (a *Agent) step(ctx context.Context) error {
	if len(a.queue) == 0 {
		return errDrained
	}
	task := a.queue[0]
	a.queue = a.queue[1:]

	a.logger.Debug("executing task",
		zap.String("url", task.Target), zap.Int("depth", task.Depth))

	if a.cfg.RespectRobots && !a.robots.Allowed(ctx, task.Target) {
		return fmt.Errorf("%w: %s", crawl.ErrDisallowed, task.Target)
	}

	res, err := a.fetcher.Fetch(ctx, task.Target)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", task.Target, err)
	}

	a.expand(ctx, task, res)

	if err := a.publisher.Enqueue(ctx, res.PageResult(task.Target)); err != nil {
		if crawl.IsTransport(err) {
			return fmt.Errorf("publish %s: %w", task.Target, err)
		}
		// Task-local publish failure: the page is lost, the crawl goes on.
		a.metrics.PublishFailed()
		a.logger.Warn("publish failed", zap.String("url", task.Target), zap.Error(err))
	}

	a.metrics.PageCrawled()
	a.logger.Debug("task done",
		zap.String("url", task.Target), zap.Int("status", res.StatusCode))
	return nil
}

// expand enqueues unvisited children of task, prioritized batch first.
// Links are marked visited at discovery time, before the child runs:
// under-crawling beats duplicate work, and the check-then-mark pair is
// deliberately not atomic across agents.
func (a *Agent) expand(ctx context.Context, task crawl.Task, res crawl.FetchResult) {
	if task.Depth >= a.cfg.MaxDepth {
		a.logger.Debug("max depth reached; not enqueuing children",
			zap.String("url", task.Target))
		return
	}
	if res.Extra == nil || len(res.Extra.Links) == 0 {
		return
	}

	var prioritized, others []string
	for _, link := range res.Extra.Links {
		visited, err := a.dedup.Exists(ctx, link)
		if err != nil {
			// Store error: treat the link as unvisited and fetch it
			// anyway rather than silently dropping it.
			a.logger.Warn("dedup lookup failed; treating as unvisited",
				zap.String("url", link), zap.Error(err))
		} else if visited {
			a.metrics.DedupHit()
			continue
		}
		if err := a.dedup.Mark(ctx, link); err != nil {
			a.logger.Warn("dedup mark failed", zap.String("url", link), zap.Error(err))
		}

		if a.matchesKeyword(link) {
			prioritized = append(prioritized, link)
		} else {
			others = append(others, link)
		}
	}

	for _, link := range prioritized {
		a.Push(task.Child(link))
	}
	for _, link := range others {
		a.Push(task.Child(link))
	}
	a.logger.Debug("children enqueued",
		zap.String("url", task.Target),
		zap.Int("prioritized", len(prioritized)), zap.Int("default", len(others)))
}

func (a *Agent) matchesKeyword(link string) bool {
	for _, kw := range a.cfg.Keywords {
		if strings.Contains(link, kw) {
			return true
		}
	}
	return false
}
