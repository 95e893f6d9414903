package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/crawlfleet/crawlfleet/internal/crawl"
)

// RendererConfig controls the headless variant.
type RendererConfig struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Renderer implements crawl.Fetcher with headless Chrome, for sites
// whose documents only exist after script execution.
type Renderer struct {
	cfg         RendererConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewRenderer creates a Renderer backed by chromedp.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (r *Renderer) Close() {
	r.allocCancel()
}

// renderedDoc is what the in-page extraction scripts pull out of the DOM.
type renderedDoc struct {
	title string
	hrefs []string
	meta  []string
	html  string
}

// Fetch navigates with a headless browser and parses the rendered DOM.
func (r *Renderer) Fetch(ctx context.Context, target string) (crawl.FetchResult, error) {
	if err := crawl.ValidateURL(target); err != nil {
		return crawl.FetchResult{}, err
	}
	if err := r.acquire(ctx); err != nil {
		return crawl.FetchResult{}, err
	}
	defer r.release()

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	doc, err := r.runHeadless(taskCtx, target)
	if err != nil {
		return crawl.FetchResult{}, err
	}

	status, headers := meta.snapshotWithFallbacks()

	res := crawl.FetchResult{
		Title:      strings.TrimSpace(doc.title),
		StatusCode: status,
		Headers:    formatHeaders(headers),
		Meta:       doc.meta,
		Extra: &crawl.FetchExtra{
			Links: normalizeLinks(target, doc.hrefs),
			Body:  doc.html,
		},
	}
	if res.Title == "" {
		res.Title = noTitle
	}
	return res, nil
}

func (r *Renderer) runHeadless(ctx context.Context, target string) (renderedDoc, error) {
	var doc renderedDoc
	actions := []chromedp.Action{
		r.networkSetupAction(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Title(&doc.title),
		chromedp.Evaluate(
			`Array.from(document.querySelectorAll('a[href]')).map(a => a.getAttribute('href'))`,
			&doc.hrefs,
		),
		chromedp.Evaluate(
			`Array.from(document.querySelectorAll('meta[name]')).map(m => m.getAttribute('name') + ': ' + (m.getAttribute('content') || ''))
				.concat(Array.from(document.querySelectorAll('meta[charset]')).map(m => 'charset: ' + m.getAttribute('charset')))`,
			&doc.meta,
		),
		chromedp.OuterHTML("html", &doc.html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return renderedDoc{}, fmt.Errorf("chromedp run: %w", err)
	}
	return doc, nil
}

func (r *Renderer) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

// responseMeta records the document response observed on the CDP event
// stream while the page loads.
type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.mu.Unlock()
}

func (m *responseMeta) snapshotWithFallbacks() (int, http.Header) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return status, m.headers
}
