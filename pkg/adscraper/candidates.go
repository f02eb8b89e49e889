package adscraper

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Candidate is a network response that looked like a video asset.
type Candidate struct {
	URL string `json:"url"`
	// Length is the declared Content-Length, 0 when the server sent none.
	Length int64  `json:"length"`
	MIME   string `json:"mime,omitempty"`
}

const defaultMaxCandidates = 200

// Collector accumulates candidates reported by the browser's network event
// listener. Events arrive on the browser's goroutine, so access is locked;
// the collector is drained once the session has ended.
type Collector struct {
	mu    sync.Mutex
	max   int
	items []Candidate
	index map[string]int
}

func NewCollector(max int) *Collector {
	if max <= 0 {
		max = defaultMaxCandidates
	}
	return &Collector{max: max, index: make(map[string]int)}
}

// Observe records the response if it looks like a video. A URL seen twice
// keeps its largest declared length. Returns true when the response counted.
func (c *Collector) Observe(rawURL, mimeType string, length int64) bool {
	if !IsVideoResponse(rawURL, mimeType) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i, ok := c.index[rawURL]; ok {
		if length > c.items[i].Length {
			c.items[i].Length = length
		}
		return true
	}
	if len(c.items) >= c.max {
		return false
	}
	c.index[rawURL] = len(c.items)
	c.items = append(c.items, Candidate{URL: rawURL, Length: length, MIME: mimeType})
	return true
}

// Drain returns everything collected, in arrival order, and resets the
// collector.
func (c *Collector) Drain() []Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.items
	c.items = nil
	c.index = make(map[string]int)
	return out
}

// IsVideoResponse reports whether a response's MIME type or URL path suggests
// a video asset.
func IsVideoResponse(rawURL, mimeType string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "video/") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.Contains(strings.ToLower(u.Path), ".mp4")
}

// Best picks the candidate with the largest declared length; ties go to the
// one seen first.
func Best(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Length > best.Length {
			best = c
		}
	}
	return best, true
}

var (
	mp4URLPattern = regexp.MustCompile(`https?://[^\s"'<>\\]+?\.mp4(?:\?[^\s"'<>\\]*)?`)

	jsonEscapes = strings.NewReplacer(
		`\/`, `/`,
		`\u0025`, `%`,
		`\u0026`, `&`,
		`\u003d`, `=`,
		`\u003D`, `=`,
		`&amp;`, `&`,
	)
)

// FindMP4InHTML scans rendered page source for the first absolute .mp4 URL,
// including ones embedded in JSON with escaped slashes.
func FindMP4InHTML(html string) string {
	return mp4URLPattern.FindString(jsonEscapes.Replace(html))
}

// contentLength reads Content-Length from CDP response headers, whose keys
// may arrive in any case and whose values may be strings or numbers.
func contentLength(headers map[string]any) int64 {
	for k, v := range headers {
		if !strings.EqualFold(k, "content-length") {
			continue
		}
		switch val := v.(type) {
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err == nil && n > 0 {
				return n
			}
		case float64:
			if val > 0 {
				return int64(val)
			}
		}
	}
	return 0
}
