package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "account id", cfg: Config{AccountID: "abc123"}, want: "https://abc123.r2.cloudflarestorage.com"},
		{name: "explicit wins", cfg: Config{AccountID: "abc123", Endpoint: "http://minio:9000/"}, want: "http://minio:9000"},
		{name: "bare host", cfg: Config{Endpoint: "s3.example.com"}, want: "https://s3.example.com"},
		{name: "neither", cfg: Config{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveEndpoint(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeS3 answers path-style PUT and GET for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/bucket/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3StoreRoundTrip(t *testing.T) {
	srv := httptest.NewServer(&fakeS3{objects: map[string][]byte{}})
	defer srv.Close()

	ctx := context.Background()
	store, err := New(ctx, Config{
		Endpoint:        srv.URL,
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "bucket",
	})
	require.NoError(t, err)
	assert.Equal(t, "bucket", store.Bucket())

	key := "products/p1/swipes/s1/source.mp4"
	_, err = store.Download(ctx, key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), key)

	payload := "fake video bytes"
	require.NoError(t, store.Upload(ctx, key, strings.NewReader(payload), int64(len(payload)), "video/mp4"))

	rc, err := store.Download(ctx, key)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, payload, string(got))
}
