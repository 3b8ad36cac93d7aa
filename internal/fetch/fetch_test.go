package fetch

import (
	"bytes"
	"context"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/vinyl-spinner/internal/storage"
)

func newTestDownloader(t *testing.T) (*Downloader, string) {
	t.Helper()
	store, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "Assets"))
	require.NoError(t, err)
	return New(store), store.Root()
}

func TestDownload_RoundTrip(t *testing.T) {
	payload := make([]byte, 64*1024)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	d, root := newTestDownloader(t)
	dest := filepath.Join(root, "finished_gif.gif")

	require.NoError(t, d.Download(context.Background(), server.URL+"/result.gif", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got), "downloaded bytes differ")
}

func TestDownload_OverwritesExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("new"))
	}))
	defer server.Close()

	d, root := newTestDownloader(t)
	dest := filepath.Join(root, "resized_image.png")
	require.NoError(t, os.WriteFile(dest, []byte("old contents that are longer"), 0o600))

	require.NoError(t, d.Download(context.Background(), server.URL, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestDownload_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"forbidden", http.StatusForbidden},
		{"server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("<html>error page</html>"))
			}))
			defer server.Close()

			d, root := newTestDownloader(t)
			dest := filepath.Join(root, "trimmed_image.png")

			err := d.Download(context.Background(), server.URL, dest)

			assert.ErrorIs(t, err, ErrNetwork)
			_, statErr := os.Stat(dest)
			assert.True(t, os.IsNotExist(statErr), "error page must not be written")
		})
	}
}

func TestDownload_UnreachableHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	d, root := newTestDownloader(t)
	err := d.Download(context.Background(), url, filepath.Join(root, "x.png"))

	assert.ErrorIs(t, err, ErrNetwork)
}

func TestDownload_EmptyURL(t *testing.T) {
	d, root := newTestDownloader(t)
	err := d.Download(context.Background(), "", filepath.Join(root, "x.png"))
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestDownload_BodyOverLimit(t *testing.T) {
	tests := []struct {
		name    string
		chunked bool
	}{
		{"declared length", false},
		{"chunked body", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.chunked {
					_, _ = w.Write(bytes.Repeat([]byte("a"), 64))
					w.(http.Flusher).Flush()
					_, _ = w.Write(bytes.Repeat([]byte("b"), 64))
					return
				}
				w.Header().Set("Content-Length", "128")
				_, _ = w.Write(bytes.Repeat([]byte("a"), 128))
			}))
			defer server.Close()

			store, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "Assets"))
			require.NoError(t, err)
			d := New(store, WithMaxBytes(100))
			dest := filepath.Join(store.Root(), "finished_gif.gif")

			err = d.Download(context.Background(), server.URL, dest)

			assert.ErrorIs(t, err, ErrNetwork)
			_, statErr := os.Stat(dest)
			assert.True(t, os.IsNotExist(statErr), "oversized body must not be written")
		})
	}
}

func TestDownload_BodyAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), 100))
	}))
	defer server.Close()

	store, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "Assets"))
	require.NoError(t, err)
	dest := filepath.Join(store.Root(), "mask.png")

	require.NoError(t, New(store, WithMaxBytes(100)).Download(context.Background(), server.URL, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Len(t, got, 100)
}
