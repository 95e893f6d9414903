package crawl

import "context"

// Fetcher executes the fetch+parse capability for one URL. HTTP is the
// only variant today; a headless renderer satisfies the same contract.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (FetchResult, error)
}

// DedupStore is the shared visited-set. Exists and Mark are separate
// round-trips and the check-then-mark sequence is not atomic: two
// agents racing on the same URL may both fetch it once before either
// mark lands. Store errors are distinct from "not found".
type DedupStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// RobotsPolicy decides per-URL crawl permission.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Publisher durably enqueues a payload on the outbound channel and
// returns only after the broker has accepted it.
type Publisher interface {
	Enqueue(ctx context.Context, payload any) error
}
