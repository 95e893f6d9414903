package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlfleet/crawlfleet/internal/crawl"
	"github.com/crawlfleet/crawlfleet/internal/dedup"
	"github.com/crawlfleet/crawlfleet/internal/queue"
)

type fakeFetcher struct {
	responses map[string]crawl.FetchResult
	calls     []string
}

func (f *fakeFetcher) Fetch(_ context.Context, target string) (crawl.FetchResult, error) {
	f.calls = append(f.calls, target)
	res, ok := f.responses[target]
	if !ok {
		return crawl.FetchResult{}, fmt.Errorf("no response for %s", target)
	}
	return res, nil
}

type fakeRobots struct {
	denied map[string]bool
	calls  []string
}

func (r *fakeRobots) Allowed(_ context.Context, rawURL string) bool {
	r.calls = append(r.calls, rawURL)
	return !r.denied[rawURL]
}

// failingDedup errors on every lookup but marks normally.
type failingDedup struct {
	*dedup.MemoryStore
}

func (d *failingDedup) Exists(context.Context, string) (bool, error) {
	return false, errors.New("store unreachable")
}

// transportPublisher fails with a connection-level fault.
type transportPublisher struct{}

func (transportPublisher) Enqueue(context.Context, any) error {
	return &crawl.TransportError{Op: "publish", Err: errors.New("connection reset")}
}

func page(links ...string) crawl.FetchResult {
	return crawl.FetchResult{
		Title:      "title",
		StatusCode: 200,
		Extra:      &crawl.FetchExtra{Links: links, Body: "<html></html>"},
	}
}

func publishedURLs(pub *queue.MemoryPublisher) []string {
	var urls []string
	for _, p := range pub.Payloads() {
		urls = append(urls, p.(crawl.PageResult).URL)
	}
	return urls
}

func newTestAgent(cfg Config, seeds []string, f crawl.Fetcher, r crawl.RobotsPolicy, d crawl.DedupStore, p crawl.Publisher) *Agent {
	return New(cfg, seeds, f, r, d, p, nil, zap.NewNop())
}

func TestAgentKeywordPriorityScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fetcher := &fakeFetcher{responses: map[string]crawl.FetchResult{
		"https://example.com/a":      page("https://example.com/news/b", "https://example.com/c"),
		"https://example.com/news/b": page("https://example.com/d"),
		"https://example.com/c":      page("https://example.com/e"),
	}}
	pub := queue.NewMemoryPublisher()
	a := newTestAgent(
		Config{Name: "t", MaxDepth: 1, Keywords: []string{"news"}},
		[]string{"https://example.com/a"},
		fetcher, &fakeRobots{}, dedup.NewMemoryStore(), pub,
	)

	require.NoError(t, a.Run(ctx))

	// Prioritized child b runs before default child c, and neither
	// enqueues grandchildren: depth 1 == max depth.
	require.Equal(t, []string{
		"https://example.com/a",
		"https://example.com/news/b",
		"https://example.com/c",
	}, fetcher.calls)
	require.Equal(t, []string{
		"https://example.com/a",
		"https://example.com/news/b",
		"https://example.com/c",
	}, publishedURLs(pub))
}

func TestAgentNoChildrenAtMaxDepth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fetcher := &fakeFetcher{responses: map[string]crawl.FetchResult{
		"https://example.com/a": page("https://example.com/b"),
	}}
	a := newTestAgent(
		Config{Name: "t", MaxDepth: 0},
		[]string{"https://example.com/a"},
		fetcher, &fakeRobots{}, dedup.NewMemoryStore(), queue.NewMemoryPublisher(),
	)

	require.NoError(t, a.Run(ctx))
	require.Equal(t, []string{"https://example.com/a"}, fetcher.calls)
}

func TestAgentSkipsVisitedLinks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := dedup.NewMemoryStore()
	require.NoError(t, store.Mark(ctx, "https://example.com/c"))

	fetcher := &fakeFetcher{responses: map[string]crawl.FetchResult{
		"https://example.com/a": page("https://example.com/b", "https://example.com/c"),
		"https://example.com/b": {StatusCode: 200},
	}}
	a := newTestAgent(
		Config{Name: "t", MaxDepth: 1},
		[]string{"https://example.com/a"},
		fetcher, &fakeRobots{}, store, queue.NewMemoryPublisher(),
	)

	require.NoError(t, a.Run(ctx))
	require.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, fetcher.calls)
}

func TestAgentMarksLinksAtDiscovery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := dedup.NewMemoryStore()
	fetcher := &fakeFetcher{responses: map[string]crawl.FetchResult{
		"https://example.com/a": page("https://example.com/b"),
		"https://example.com/b": {StatusCode: 200},
	}}
	a := newTestAgent(
		Config{Name: "t", MaxDepth: 1},
		[]string{"https://example.com/a"},
		fetcher, &fakeRobots{}, store, queue.NewMemoryPublisher(),
	)

	require.NoError(t, a.Run(ctx))
	visited, err := store.Exists(ctx, "https://example.com/b")
	require.NoError(t, err)
	require.True(t, visited)
}

func TestAgentRobotsDeniedSkipsFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fetcher := &fakeFetcher{responses: map[string]crawl.FetchResult{
		"https://example.com/public/x": {StatusCode: 200},
	}}
	robots := &fakeRobots{denied: map[string]bool{"https://example.com/private/x": true}}
	a := newTestAgent(
		Config{Name: "t", MaxDepth: 1, RespectRobots: true},
		[]string{"https://example.com/private/x", "https://example.com/public/x"},
		fetcher, robots, dedup.NewMemoryStore(), queue.NewMemoryPublisher(),
	)

	require.NoError(t, a.Run(ctx))
	require.Equal(t, []string{"https://example.com/public/x"}, fetcher.calls)
}

func TestAgentIgnoresRobotsWhenDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fetcher := &fakeFetcher{responses: map[string]crawl.FetchResult{
		"https://example.com/private/x": {StatusCode: 200},
	}}
	robots := &fakeRobots{denied: map[string]bool{"https://example.com/private/x": true}}
	a := newTestAgent(
		Config{Name: "t", MaxDepth: 1},
		[]string{"https://example.com/private/x"},
		fetcher, robots, dedup.NewMemoryStore(), queue.NewMemoryPublisher(),
	)

	require.NoError(t, a.Run(ctx))
	require.Empty(t, robots.calls)
	require.Len(t, fetcher.calls, 1)
}

func TestAgentFetchFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fetcher := &fakeFetcher{responses: map[string]crawl.FetchResult{
		"https://example.com/b": {StatusCode: 200},
	}}
	pub := queue.NewMemoryPublisher()
	a := newTestAgent(
		Config{Name: "t", MaxDepth: 1},
		[]string{"https://example.com/broken", "https://example.com/b"},
		fetcher, &fakeRobots{}, dedup.NewMemoryStore(), pub,
	)

	require.NoError(t, a.Run(ctx))
	require.Equal(t, []string{"https://example.com/b"}, publishedURLs(pub))
}

func TestAgentTransportFaultAbortsRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fetcher := &fakeFetcher{responses: map[string]crawl.FetchResult{
		"https://example.com/a": {StatusCode: 200},
		"https://example.com/b": {StatusCode: 200},
	}}
	a := newTestAgent(
		Config{Name: "t", MaxDepth: 1},
		[]string{"https://example.com/a", "https://example.com/b"},
		fetcher, &fakeRobots{}, dedup.NewMemoryStore(), transportPublisher{},
	)

	err := a.Run(ctx)
	require.Error(t, err)
	require.True(t, crawl.IsTransport(err))
	require.Equal(t, []string{"https://example.com/a"}, fetcher.calls,
		"a transport fault must stop the loop, not just the task")
}

func TestAgentTaskLocalPublishFailureContinues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fetcher := &fakeFetcher{responses: map[string]crawl.FetchResult{
		"https://example.com/a": {StatusCode: 200},
		"https://example.com/b": {StatusCode: 200},
	}}
	pub := queue.NewMemoryPublisher()
	pub.Err = errors.New("marshal payload: bad value")
	a := newTestAgent(
		Config{Name: "t", MaxDepth: 1},
		[]string{"https://example.com/a", "https://example.com/b"},
		fetcher, &fakeRobots{}, dedup.NewMemoryStore(), pub,
	)

	require.NoError(t, a.Run(ctx))
	require.Len(t, fetcher.calls, 2)
}

func TestAgentStoreErrorTreatsLinkAsUnvisited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fetcher := &fakeFetcher{responses: map[string]crawl.FetchResult{
		"https://example.com/a": page("https://example.com/b"),
		"https://example.com/b": {StatusCode: 200},
	}}
	store := &failingDedup{MemoryStore: dedup.NewMemoryStore()}
	a := newTestAgent(
		Config{Name: "t", MaxDepth: 1},
		[]string{"https://example.com/a"},
		fetcher, &fakeRobots{}, store, queue.NewMemoryPublisher(),
	)

	require.NoError(t, a.Run(ctx))
	require.Contains(t, fetcher.calls, "https://example.com/b",
		"under-crawling is worse than a duplicate fetch")
}

func TestAgentPrioritizedChildrenPrecedeDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fetcher := &fakeFetcher{responses: map[string]crawl.FetchResult{
		"https://example.com/a": page(
			"https://example.com/one",
			"https://example.com/article/two",
			"https://example.com/three",
			"https://example.com/news/four",
		),
	}}
	a := newTestAgent(
		Config{Name: "t", MaxDepth: 1, Keywords: []string{"news", "article"}},
		[]string{"https://example.com/a"},
		fetcher, &fakeRobots{}, dedup.NewMemoryStore(), queue.NewMemoryPublisher(),
	)

	require.NoError(t, a.Run(ctx))
	require.Equal(t, []string{
		"https://example.com/a",
		"https://example.com/article/two",
		"https://example.com/news/four",
		"https://example.com/one",
		"https://example.com/three",
	}, fetcher.calls)
}
