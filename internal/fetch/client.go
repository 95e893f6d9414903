package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/crawlfleet/crawlfleet/internal/crawl"
)

// Client implements crawl.Fetcher with a Colly collector.
type Client struct {
	cfg  Config
	base *colly.Collector
}

// NewClient builds a Client. Robots policy is enforced upstream by the
// gate, so the collector never consults robots.txt itself.
func NewClient(cfg Config) *Client {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Client{cfg: cfg, base: c}
}

// pageCapture accumulates parse output across collector callbacks for a
// single visit.
type pageCapture struct {
	status  int
	headers http.Header
	body    []byte
	isHTML  bool
	title   string
	hrefs   []string
	meta    []string
	err     error
}

// Fetch executes a single GET and parses the HTML document when the
// response carries one. Responses outside the 2xx range still yield a
// result with their status code; only transport-level failures return
// an error.
func (c *Client) Fetch(ctx context.Context, target string) (crawl.FetchResult, error) {
	if err := crawl.ValidateURL(target); err != nil {
		return crawl.FetchResult{}, err
	}

	var page pageCapture
	collector := c.buildCollector(&page)

	if err := c.runCollector(ctx, collector, target, &page); err != nil {
		return crawl.FetchResult{}, err
	}
	return page.result(target), nil
}

func (c *Client) buildCollector(page *pageCapture) *colly.Collector {
	collector := c.base.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.timeout())

	collector.OnResponse(func(r *colly.Response) {
		page.status = r.StatusCode
		page.headers = r.Headers.Clone()
		page.body = append([]byte(nil), r.Body...)
		page.isHTML = strings.Contains(r.Headers.Get("Content-Type"), "html")
	})

	collector.OnHTML("title", func(e *colly.HTMLElement) {
		if page.title == "" {
			page.title = strings.TrimSpace(e.Text)
		}
	})
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		page.hrefs = append(page.hrefs, e.Attr("href"))
	})
	collector.OnHTML("meta[name]", func(e *colly.HTMLElement) {
		page.meta = append(page.meta, fmt.Sprintf("%s: %s", e.Attr("name"), e.Attr("content")))
	})
	collector.OnHTML("meta[charset]", func(e *colly.HTMLElement) {
		page.meta = append(page.meta, fmt.Sprintf("charset: %s", e.Attr("charset")))
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			page.status = r.StatusCode
			page.headers = r.Headers.Clone()
		}
		page.err = err
	})

	return collector
}

func (c *Client) runCollector(ctx context.Context, collector *colly.Collector, target string, page *pageCapture) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		// A non-2xx status surfaces through Visit as an error, but the
		// page was reached; report it as a result, not a failure.
		if page.status > 0 {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetch %s: %w", target, err)
		}
		if page.err != nil {
			return fmt.Errorf("fetch %s: %w", target, page.err)
		}
		return nil
	}
}

func (page *pageCapture) result(target string) crawl.FetchResult {
	res := crawl.FetchResult{
		Title:      page.title,
		StatusCode: page.status,
		Headers:    formatHeaders(page.headers),
		Meta:       page.meta,
	}
	if res.Title == "" {
		res.Title = noTitle
	}
	if page.isHTML {
		res.Extra = &crawl.FetchExtra{
			Links: normalizeLinks(target, page.hrefs),
			Body:  string(page.body),
		}
	}
	return res
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
