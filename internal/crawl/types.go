// Package crawl defines core types shared across subsystems.
package crawl

// Task is one unit of crawl work. A Task is owned exclusively by the
// agent whose queue holds it and is destroyed when that agent pops it.
type Task struct {
	Target string
	Depth  int
}

// Child derives the task for a link discovered while executing t.
func (t Task) Child(link string) Task {
	return Task{Target: link, Depth: t.Depth + 1}
}

// PageResult is the message published for every page that completed
// fetch+parse. Headers and meta entries are "Key: Value" strings in
// response order. Immutable once built.
type PageResult struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	StatusCode int      `json:"status_code"`
	Headers    []string `json:"headers"`
	Meta       []string `json:"meta"`
	Links      []string `json:"links"`
	Body       string   `json:"body"`
}

// FetchExtra holds the link/body substructure of a fetch. It only
// exists when extraction actually ran, so callers cannot read absent
// data by accident.
type FetchExtra struct {
	Links []string
	Body  string
}

// FetchResult is what a Fetcher produced for one target URL.
// Extra is nil when no link or body extraction was performed
// (non-success status, non-HTML content).
type FetchResult struct {
	Title      string
	StatusCode int
	Headers    []string
	Meta       []string
	Extra      *FetchExtra
}

// PageResult assembles the outbound message for the task that produced r.
func (r FetchResult) PageResult(target string) PageResult {
	page := PageResult{
		URL:        target,
		Title:      r.Title,
		StatusCode: r.StatusCode,
		Headers:    r.Headers,
		Meta:       r.Meta,
	}
	if r.Extra != nil {
		page.Links = r.Extra.Links
		page.Body = r.Extra.Body
	}
	return page
}
