package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultMaxSize = 16 * 1024 * 1024

var ErrTooLarge = errors.New("asset too large")

// HTTPLoader fetches assets relative to a base URL.
type HTTPLoader struct {
	base    string
	client  *http.Client
	maxSize int64
}

// HTTPOption configures an HTTPLoader.
type HTTPOption func(*HTTPLoader)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(l *HTTPLoader) {
		l.client = c
	}
}

// WithMaxSize limits the response body size in bytes.
func WithMaxSize(n int64) HTTPOption {
	return func(l *HTTPLoader) {
		l.maxSize = n
	}
}

// NewHTTPLoader returns a loader fetching base + "/" + path.
func NewHTTPLoader(base string, opts ...HTTPOption) *HTTPLoader {
	l := &HTTPLoader{
		base:    strings.TrimSuffix(base, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *HTTPLoader) Load(ctx context.Context, p string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.base+"/"+p, nil)
	if err != nil {
		return nil, &LoadError{Path: p, Err: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &LoadError{Path: p, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &LoadError{Path: p, Err: ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &LoadError{Path: p, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if resp.ContentLength > l.maxSize {
		return nil, l.tooLarge(p)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxSize+1))
	if err != nil {
		return nil, &LoadError{Path: p, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > l.maxSize {
		return nil, l.tooLarge(p)
	}
	return decode(p, bytes.NewReader(body))
}

func (l *HTTPLoader) tooLarge(p string) error {
	return &LoadError{Path: p, Err: fmt.Errorf("%w: over %d bytes", ErrTooLarge, l.maxSize)}
}
