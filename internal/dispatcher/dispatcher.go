// Package dispatcher partitions the seed set and fans agents out.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Runner is the unit of work the supervisor fans out: an agent driving
// its queue to the drained state.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Partition splits seeds into n contiguous chunks of ceil(len/n).
// Trailing chunks may be smaller; callers skip empty ones.
func Partition(seeds []string, n int) [][]string {
	if n <= 0 || len(seeds) == 0 {
		return nil
	}
	size := (len(seeds) + n - 1) / n
	var chunks [][]string
	for start := 0; start < len(seeds); start += size {
		end := start + size
		if end > len(seeds) {
			end = len(seeds)
		}
		chunks = append(chunks, seeds[start:end])
	}
	return chunks
}

// Supervisor runs a fleet of agents concurrently and waits for all of
// them to drain.
type Supervisor struct {
	runners []Runner
	logger  *zap.Logger
}

// New creates a Supervisor over the given runners.
func New(runners []Runner, logger *zap.Logger) *Supervisor {
	return &Supervisor{runners: runners, logger: logger}
}

// Run starts every runner and blocks until all finish. A runner's
// propagated failure is collected and surfaced to the caller, but does
// not halt its siblings: each keeps crawling to its own terminal state.
func (s *Supervisor) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, r := range s.runners {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				s.logger.Error("runner failed",
					zap.String("runner", r.Name()), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
				mu.Unlock()
			}
		}(r)
	}
	wg.Wait()
	return errors.Join(errs...)
}
