package fetch

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatHeadersStableOrder(t *testing.T) {
	h := http.Header{}
	h.Add("Content-Type", "text/html")
	h.Add("X-Custom", "a")
	h.Add("X-Custom", "b")
	h.Add("Age", "0")

	got := formatHeaders(h)
	require.Equal(t, []string{
		"Age: 0",
		"Content-Type: text/html",
		"X-Custom: a",
		"X-Custom: b",
	}, got)
}

func TestNormalizeLinks(t *testing.T) {
	hrefs := []string{
		"/about",
		"https://other.example/page",
		"relative/path",
		"mailto:someone@example.com",
		"#fragment",
		"/",
	}

	got := normalizeLinks("https://news.example:8443/index.html", hrefs)
	require.Equal(t, []string{
		"https://news.example:8443/about",
		"https://other.example/page",
		"https://news.example:8443/",
	}, got)
}

func TestNormalizeLinksBadBase(t *testing.T) {
	require.Nil(t, normalizeLinks("://nope", []string{"/x"}))
}
