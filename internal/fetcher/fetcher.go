// Package fetcher retrieves image bytes over plain HTTP for hosts that have
// no browser network stack. It follows the page's rules that matter to the
// probe: non-2xx is a failure and bodies are capped.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/schollz/progressbar/v3"
)

// DefaultMaxBytes caps a single image download.
const DefaultMaxBytes = 64 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: %s: status %d", e.URL, e.Status)
}

// Fetcher performs HTTP GETs for image resources.
type Fetcher struct {
	client   *http.Client
	ua       string
	maxBytes int64
	progress io.Writer
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.ua = ua }
}

// WithMaxBytes caps the body size. Larger bodies fail the fetch.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithProgress renders a download progress bar on w.
func WithProgress(w io.Writer) Option {
	return func(f *Fetcher) { f.progress = w }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher with sensible defaults.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		ua:       "Mozilla/5.0 (compatible; alphaprobe/1.0)",
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs an absolute URL and returns the body.
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "image/avif,image/webp,image/png,image/*;q=0.8,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: imageURL, Status: resp.StatusCode}
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("fetcher: %s: content length %d exceeds %d bytes", imageURL, resp.ContentLength, f.maxBytes)
	}

	var buf bytes.Buffer
	var dst io.Writer = &buf
	if f.progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(f.progress),
			progressbar.OptionSetDescription("fetching"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		dst = io.MultiWriter(&buf, bar)
	}

	// Read one byte past the cap to detect oversized bodies.
	limit := f.maxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	n, err := io.Copy(dst, io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("fetcher: read body: %w", err)
	}
	if n > limit {
		return nil, fmt.Errorf("fetcher: %s: body exceeds %d bytes", imageURL, limit)
	}

	f.logger.Debug("fetcher: fetched",
		"url", imageURL, "status", resp.StatusCode,
		"size", n, "content_type", resp.Header.Get("Content-Type"))

	return buf.Bytes(), nil
}
