package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadToFile(t *testing.T) {
	payload := bytes.Repeat([]byte("v"), 512)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.mp4":
			w.Header().Set("Content-Type", "video/mp4")
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			_, _ = w.Write(payload)
		case "/declared-huge.mp4":
			w.Header().Set("Content-Length", "4096")
			_, _ = w.Write(bytes.Repeat([]byte("x"), 4096))
		case "/chunked-huge.mp4":
			// No Content-Length: flushing forces chunked transfer encoding.
			flusher := w.(http.Flusher)
			for i := 0; i < 16; i++ {
				_, _ = w.Write(bytes.Repeat([]byte("x"), 256))
				flusher.Flush()
			}
		case "/chunked-small.mp4":
			flusher := w.(http.Flusher)
			_, _ = w.Write([]byte("small"))
			flusher.Flush()
			_, _ = w.Write([]byte(" body"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDownloader(1024)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "source.mp4")
		n, err := d.DownloadToFile(ctx, srv.URL+"/ok.mp4", dest)
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), n)

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("undeclared length under limit", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "source.mp4")
		n, err := d.DownloadToFile(ctx, srv.URL+"/chunked-small.mp4", dest)
		require.NoError(t, err)
		assert.Equal(t, int64(len("small body")), n)
	})

	t.Run("declared length over limit", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "source.mp4")
		_, err := d.DownloadToFile(ctx, srv.URL+"/declared-huge.mp4", dest)
		require.ErrorIs(t, err, ErrTooLarge)

		var tooLarge *TooLargeError
		require.True(t, errors.As(err, &tooLarge))
		assert.Equal(t, int64(4096), tooLarge.Declared)
		assert.Zero(t, tooLarge.Observed)
		assert.NoFileExists(t, dest)
	})

	t.Run("undeclared length over limit", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "source.mp4")
		_, err := d.DownloadToFile(ctx, srv.URL+"/chunked-huge.mp4", dest)
		require.ErrorIs(t, err, ErrTooLarge)

		var tooLarge *TooLargeError
		require.True(t, errors.As(err, &tooLarge))
		assert.Equal(t, int64(1025), tooLarge.Observed)
		assert.NoFileExists(t, dest)
	})

	t.Run("non-2xx", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "source.mp4")
		_, err := d.DownloadToFile(ctx, srv.URL+"/missing.mp4", dest)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
		assert.NoFileExists(t, dest)
	})
}

func TestTooLargeErrorMessage(t *testing.T) {
	err := &TooLargeError{Limit: 250 * 1024 * 1024, Declared: 300 * 1024 * 1024}
	assert.Equal(t, "download declares 300 MiB, exceeds 250 MiB limit", err.Error())

	err = &TooLargeError{Limit: 1024, Declared: -1, Observed: 1025}
	assert.Equal(t, "download aborted after 1.0 KiB, exceeds 1.0 KiB limit", err.Error())
}

type memStore struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Upload(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return errors.New("size mismatch")
	}
	m.objects[key] = b
	m.types[key] = contentType
	return nil
}

func TestObjectTransfer(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}, types: map[string]string{}}
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(src, []byte("research notes"), 0o600))

	n, err := PutFile(ctx, store, "products/p1/research/notes.txt", src, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(14), n)
	assert.Equal(t, "text/plain", store.types["products/p1/research/notes.txt"])

	dest := filepath.Join(dir, "out.txt")
	n, err = FetchObject(ctx, store, "products/p1/research/notes.txt", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(14), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, strings.EqualFold("research notes", string(got)))

	_, err = FetchObject(ctx, store, "missing", filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "missing"))
}
