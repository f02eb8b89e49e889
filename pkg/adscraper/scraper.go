// Package adscraper locates the video asset behind a public ad-library page by
// driving a headless Chrome session and watching its network traffic.
package adscraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	DefaultNavTimeout = 60 * time.Second
	DefaultSettle     = 6 * time.Second

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Options configures a Scraper.
type Options struct {
	// ChromePath is the browser executable; chromedp searches the usual
	// locations when empty.
	ChromePath    string
	NavTimeout    time.Duration
	Settle        time.Duration
	MaxCandidates int
	UserAgent     string
}

// Result is what a scrape observed.
type Result struct {
	// VideoURL is the best candidate, or "" when nothing was found.
	VideoURL     string
	PageTitle    string
	Candidates   []Candidate
	FromFallback bool
}

// Scraper runs one isolated browser per Scrape call.
type Scraper struct {
	opts Options
}

func New(opts Options) *Scraper {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = DefaultNavTimeout
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Scraper{opts: opts}
}

// playFirstVideo nudges lazy players into fetching their source.
const playFirstVideo = `(() => {
  const v = document.querySelector('video');
  if (!v) return false;
  v.muted = true;
  try { v.play(); } catch (e) {}
  try { v.click(); } catch (e) {}
  return true;
})()`

// Scrape loads pageURL, collects video-like responses during navigation and
// a settle window, and picks the largest one. When none was seen it falls
// back to scanning the rendered HTML. Only browser or navigation failures are
// errors; an empty VideoURL means the page yielded nothing.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (*Result, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(s.opts.UserAgent),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if s.opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(s.opts.ChromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	collector := NewCollector(s.opts.MaxCandidates)
	chromedp.ListenTarget(browserCtx, func(ev any) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Response == nil {
			return
		}
		collector.Observe(e.Response.URL, e.Response.MimeType, contentLength(e.Response.Headers))
	})

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(browserCtx, s.opts.NavTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(pageURL))
	cancelNav()
	if err != nil {
		return nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}

	var played bool
	if err := chromedp.Run(browserCtx, chromedp.Evaluate(playFirstVideo, &played)); err != nil {
		slog.Debug("video interaction failed", "url", pageURL, "error", err)
	}

	var title, html string
	err = chromedp.Run(browserCtx,
		chromedp.Sleep(s.opts.Settle),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("read page %s: %w", pageURL, err)
	}

	res := &Result{
		PageTitle:  strings.TrimSpace(title),
		Candidates: collector.Drain(),
	}
	if best, ok := Best(res.Candidates); ok {
		res.VideoURL = best.URL
	} else if u := FindMP4InHTML(html); u != "" {
		res.VideoURL = u
		res.FromFallback = true
	}

	slog.Info("scrape finished",
		"url", pageURL,
		"candidates", len(res.Candidates),
		"played", played,
		"fallback", res.FromFallback,
		"found", res.VideoURL != "",
	)
	return res, nil
}
