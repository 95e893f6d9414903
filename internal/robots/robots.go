// Package robots implements the per-domain crawl permission gate.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const maxRobotsBody = 1 << 20

// RuleSet is the parsed policy for one domain: the Disallow path values
// collected after a "User-agent: *" line.
type RuleSet struct {
	Disallow []string
}

// Allows evaluates the rule set against a candidate URL. A rule of
// exactly "/" denies everything; any other rule denies URLs that
// contain it.
func (rs RuleSet) Allows(rawURL string) bool {
	for _, rule := range rs.Disallow {
		if rule == "/" {
			return false
		}
		if strings.Contains(rawURL, rule) {
			return false
		}
	}
	return true
}

// Parse scans a robots.txt body. Only the wildcard user-agent group is
// honored: once a "User-agent: *" line is seen, every subsequent
// Disallow line contributes a rule.
func Parse(body string) RuleSet {
	var rs RuleSet
	wildcard := false
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "User-agent:"):
			if strings.TrimSpace(strings.TrimPrefix(line, "User-agent:")) == "*" {
				wildcard = true
			}
		case wildcard && strings.HasPrefix(line, "Disallow:"):
			rule := strings.TrimSpace(strings.TrimPrefix(line, "Disallow:"))
			if rule != "" {
				rs.Disallow = append(rs.Disallow, rule)
			}
		}
	}
	return rs
}

// Gate answers per-URL crawl permission from cached or freshly fetched
// robots.txt rules. Rule sets are cached by domain for the life of the
// Gate; there is no expiry. Absence of policy information never blocks
// crawling, so the gate fails open on any fetch problem and fails
// closed only for malformed input.
type Gate struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string]RuleSet
}

// NewGate builds a Gate with its own HTTP client.
func NewGate(userAgent string, logger *zap.Logger) *Gate {
	return &Gate{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]RuleSet),
	}
}

// Allowed implements crawl.RobotsPolicy.
func (g *Gate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	// Key by Host rather than Hostname: a server on another port is
	// another robots.txt, so its rules must not leak across ports.
	domain := parsed.Host
	if domain == "" {
		return false
	}

	g.mu.RLock()
	rs, ok := g.cache[domain]
	g.mu.RUnlock()
	if ok {
		return rs.Allows(rawURL)
	}

	body, ok, err := g.fetch(ctx, parsed.Scheme, parsed.Host)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing access",
			zap.String("domain", domain), zap.Error(err))
		return true
	}
	if !ok {
		// Missing robots.txt means no restriction, but do not assume
		// that is permanent: nothing is cached.
		return true
	}

	rs = Parse(body)
	g.mu.Lock()
	g.cache[domain] = rs
	g.mu.Unlock()
	return rs.Allows(rawURL)
}

// fetch returns the robots.txt body and whether the server produced a
// success status for it. host keeps any explicit port.
func (g *Gate) fetch(ctx context.Context, scheme, host string) (string, bool, error) {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		return "", false, fmt.Errorf("read robots body: %w", err)
	}
	return string(body), true, nil
}
