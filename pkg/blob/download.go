package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Downloader streams HTTP resources to local files.
type Downloader struct {
	client   *resty.Client
	maxBytes int64
}

// NewDownloader returns a Downloader enforcing maxBytes (DefaultMaxBytes when
// maxBytes <= 0). There is no overall timeout; the size ceiling bounds the
// transfer instead.
func NewDownloader(maxBytes int64) *Downloader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	client := resty.New().
		SetHeader("User-Agent", defaultUserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	return &Downloader{client: client, maxBytes: maxBytes}
}

// MaxBytes returns the guardrail.
func (d *Downloader) MaxBytes() int64 {
	return d.maxBytes
}

// DownloadToFile fetches url into dest and returns the bytes written.
//
// A declared Content-Length above the limit fails before any body is read.
// Without a declared length the body is counted while streaming and the
// transfer stops as soon as the count passes the limit. Non-2xx responses
// are errors. dest is removed on every failure.
func (d *Downloader) DownloadToFile(ctx context.Context, url, dest string) (int64, error) {
	start := time.Now()

	resp, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return 0, fmt.Errorf("download request: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return 0, fmt.Errorf("download failed: unexpected status %s", resp.Status())
	}

	declared := resp.RawResponse.ContentLength
	if declared > d.maxBytes {
		return 0, &TooLargeError{Limit: d.maxBytes, Declared: declared}
	}

	// One byte past the limit is enough to know it was exceeded.
	n, err := writeFile(dest, io.LimitReader(body, d.maxBytes+1))
	if err != nil {
		return n, err
	}
	if n > d.maxBytes {
		_ = os.Remove(dest)
		return n, &TooLargeError{Limit: d.maxBytes, Declared: declared, Observed: n}
	}

	slog.Debug("download complete",
		"url", url,
		"size", humanize.IBytes(uint64(n)),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return n, nil
}
