package adscraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsVideoResponse(t *testing.T) {
	tests := []struct {
		url  string
		mime string
		want bool
	}{
		{"https://cdn.example/v/abc", "video/mp4", true},
		{"https://cdn.example/v/abc", "VIDEO/webm", true},
		{"https://cdn.example/v/abc.mp4?token=1", "application/octet-stream", true},
		{"https://cdn.example/v/ABC.MP4", "", true},
		{"https://cdn.example/page?file=abc.mp4", "text/html", false},
		{"https://cdn.example/app.js", "application/javascript", false},
		{"data:video/mp4;base64,AAAA", "", false},
		{"blob:https://x/abc.mp4", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsVideoResponse(tt.url, tt.mime))
		})
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector(3)

	assert.True(t, c.Observe("https://cdn/a.mp4", "video/mp4", 100))
	assert.False(t, c.Observe("https://cdn/script.js", "text/javascript", 999999))
	assert.True(t, c.Observe("https://cdn/b.mp4", "video/mp4", 0))
	assert.True(t, c.Observe("https://cdn/a.mp4", "video/mp4", 300))
	assert.True(t, c.Observe("https://cdn/c.mp4", "video/mp4", 50))
	assert.False(t, c.Observe("https://cdn/d.mp4", "video/mp4", 5000), "collector is full")

	got := c.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, "https://cdn/a.mp4", got[0].URL)
	assert.Equal(t, int64(300), got[0].Length)
	assert.Empty(t, c.Drain())
}

func TestCollectorConcurrentObserve(t *testing.T) {
	c := NewCollector(1000)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Observe(fmt.Sprintf("https://cdn/%d-%d.mp4", i, j), "video/mp4", int64(j))
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, c.Drain(), 400)
}

func TestBest(t *testing.T) {
	_, ok := Best(nil)
	assert.False(t, ok)

	best, ok := Best([]Candidate{
		{URL: "https://cdn/sd.mp4", Length: 1000},
		{URL: "https://cdn/hd.mp4", Length: 5000},
		{URL: "https://cdn/hd-dup.mp4", Length: 5000},
		{URL: "https://cdn/thumb.mp4", Length: 10},
	})
	require.True(t, ok)
	assert.Equal(t, "https://cdn/hd.mp4", best.URL)

	best, ok = Best([]Candidate{{URL: "https://cdn/first.mp4"}, {URL: "https://cdn/second.mp4"}})
	require.True(t, ok)
	assert.Equal(t, "https://cdn/first.mp4", best.URL)
}

func TestFindMP4InHTML(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "video tag",
			html: `<video src="https://video.cdn.example/v/t42/clip.mp4?efg=abc&amp;oh=00"></video>`,
			want: "https://video.cdn.example/v/t42/clip.mp4?efg=abc&oh=00",
		},
		{
			name: "escaped json",
			html: `<script>{"playable_url":"https:\/\/video.cdn.example\/v\/clip.mp4?_nc_cat=1&oh=2"}</script>`,
			want: "https://video.cdn.example/v/clip.mp4?_nc_cat=1&oh=2",
		},
		{
			name: "first wins",
			html: `"https://a.example/one.mp4" "https://b.example/two.mp4"`,
			want: "https://a.example/one.mp4",
		},
		{
			name: "none",
			html: `<img src="https://a.example/pic.jpg">`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindMP4InHTML(tt.html))
		})
	}
}

func TestContentLength(t *testing.T) {
	assert.Equal(t, int64(1234), contentLength(map[string]any{"Content-Length": "1234"}))
	assert.Equal(t, int64(99), contentLength(map[string]any{"content-length": float64(99)}))
	assert.Zero(t, contentLength(map[string]any{"content-type": "video/mp4"}))
	assert.Zero(t, contentLength(map[string]any{"content-length": "abc"}))
}

func findChrome() string {
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func TestScrapeFindsVideo(t *testing.T) {
	if testing.Short() {
		t.Skip("browser test")
	}
	chrome := findChrome()
	if chrome == "" {
		t.Skip("chrome not available")
	}

	video := strings.Repeat("\x00", 4096)
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, "clip.mp4", time.Now(), strings.NewReader(video))
	})
	mux.HandleFunc("/ads/library/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>Ad Library</title></head><body><video preload="auto" src="%s/clip.mp4"></video></body></html>`, srv.URL)
	})

	s := New(Options{ChromePath: chrome, Settle: 500 * time.Millisecond, NavTimeout: 20 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res, err := s.Scrape(ctx, srv.URL+"/ads/library/?id=123")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/clip.mp4", res.VideoURL)
	assert.Equal(t, "Ad Library", res.PageTitle)
}
