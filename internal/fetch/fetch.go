// Package fetch implements the fetch+parse capability consumed by the
// crawl loop. Two variants satisfy the same contract: a plain HTTP
// client and a headless renderer.
package fetch

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/crawlfleet/crawlfleet/internal/crawl"
)

// noTitle is reported when a page yields no usable title.
const noTitle = "No title"

// Config controls fetcher behavior for both variants.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 15 * time.Second
}

// formatHeaders renders response headers as "Key: Value" strings in a
// stable order.
func formatHeaders(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		for _, v := range h[k] {
			out = append(out, fmt.Sprintf("%s: %s", k, v))
		}
	}
	return out
}

// normalizeLinks absolutizes root-relative hrefs against the target's
// origin and keeps only links that pass URL validation.
func normalizeLinks(target string, hrefs []string) []string {
	base, err := url.Parse(target)
	if err != nil {
		return nil
	}
	origin := fmt.Sprintf("%s://%s", base.Scheme, base.Host)

	var out []string
	for _, href := range hrefs {
		if len(href) > 0 && href[0] == '/' {
			href = origin + href
		}
		if crawl.ValidateURL(href) != nil {
			continue
		}
		out = append(out, href)
	}
	return out
}
