// Package fetch downloads remote artifacts into the asset workspace.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrNetwork is returned when a download cannot be completed.
var ErrNetwork = errors.New("fetch: network error")

// ErrEmptyURL is returned when Download is called without a URL.
var ErrEmptyURL = errors.New("fetch: url is empty")

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes int64 = 256 << 20

// Writer persists a stream at a destination path.
type Writer interface {
	WriteFile(ctx context.Context, path string, data io.Reader) error
}

// Downloader fetches URLs and writes their bodies through a Writer.
type Downloader struct {
	httpClient *http.Client
	writer     Writer
	maxBytes   int64
	logger     *slog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *Downloader) {
		d.httpClient = hc
	}
}

// WithMaxBytes caps the body size. Larger bodies fail with ErrNetwork
// and nothing is written.
func WithMaxBytes(n int64) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = l
	}
}

// New creates a Downloader that writes through w.
func New(w Writer, opts ...Option) *Downloader {
	d := &Downloader{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		writer:     w,
		maxBytes:   DefaultMaxBytes,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download issues a GET for url and writes the body to dest, replacing any
// existing file. Nothing is written unless the server answers 2xx.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	if url == "" {
		return ErrEmptyURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrNetwork, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %w", ErrNetwork, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: GET %s: status %d", ErrNetwork, url, resp.StatusCode)
	}

	if resp.ContentLength > d.maxBytes {
		return fmt.Errorf("%w: GET %s: body of %d bytes exceeds limit of %d", ErrNetwork, url, resp.ContentLength, d.maxBytes)
	}

	counter := &limitedReader{r: resp.Body, max: d.maxBytes}
	if err := d.writer.WriteFile(ctx, dest, counter); err != nil {
		return fmt.Errorf("save %s: %w", dest, err)
	}

	d.logger.Debug("downloaded artifact",
		slog.String("url", url),
		slog.String("path", dest),
		slog.Int64("bytes", counter.n),
	)
	return nil
}

// limitedReader counts bytes read and fails once more than max arrive.
type limitedReader struct {
	r   io.Reader
	n   int64
	max int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		return n, fmt.Errorf("%w: body exceeds limit of %d bytes", ErrNetwork, l.max)
	}
	return n, err
}
