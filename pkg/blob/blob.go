// Package blob moves binary payloads between remote sources and local disk:
// HTTP downloads with a byte-size guardrail, and object-store get/put.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
)

// DefaultMaxBytes is the download guardrail used when none is configured.
const DefaultMaxBytes int64 = 250 * 1024 * 1024

// ErrTooLarge matches every *TooLargeError.
var ErrTooLarge = errors.New("blob: payload exceeds size limit")

// TooLargeError reports a transfer refused or aborted by the size guardrail.
// Declared is the server's Content-Length (-1 when not sent); Observed is the
// byte count read before aborting (0 when refused up front).
type TooLargeError struct {
	Limit    int64
	Declared int64
	Observed int64
}

func (e *TooLargeError) Error() string {
	if e.Observed > 0 {
		return fmt.Sprintf("download aborted after %s, exceeds %s limit",
			humanize.IBytes(uint64(e.Observed)), humanize.IBytes(uint64(e.Limit)))
	}
	return fmt.Sprintf("download declares %s, exceeds %s limit",
		humanize.IBytes(uint64(e.Declared)), humanize.IBytes(uint64(e.Limit)))
}

func (e *TooLargeError) Is(target error) bool {
	return target == ErrTooLarge
}

// ObjectGetter reads objects by key.
type ObjectGetter interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// ObjectPutter writes objects by key.
type ObjectPutter interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}

// FetchObject copies the object at key into dest and returns the byte count.
func FetchObject(ctx context.Context, store ObjectGetter, key, dest string) (int64, error) {
	rc, err := store.Download(ctx, key)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	return writeFile(dest, rc)
}

// PutFile uploads the local file at path under key.
func PutFile(ctx context.Context, store ObjectPutter, key, path, contentType string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	if err := store.Upload(ctx, key, f, info.Size(), contentType); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// writeFile streams r into a new file at dest. The file is removed if the
// copy fails part way.
func writeFile(dest string, r io.Reader) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return n, fmt.Errorf("write %s: %w", dest, err)
	}
	return n, nil
}
