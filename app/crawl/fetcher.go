package crawl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

type FetcherConfig struct {
	UserAgent    string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	MaxBytes     int64
}

type Fetcher struct {
	client *http.Client
	cfg    FetcherConfig
}

func NewFetcher(client *http.Client, cfg FetcherConfig) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 << 20
	}

	return &Fetcher{client: client, cfg: cfg}
}

// Fetch issues a single GET for url and returns the body decoded to UTF-8.
// Every failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, Cause: fmt.Errorf("HTTP error: %s", resp.Status)}
	}

	contentType := resp.Header.Get("Content-Type")

	// One extra byte tells us whether the cap was hit. The cap applies to
	// the bytes on the wire, before decoding.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Cause: fmt.Errorf("failed to read response body: %w", err)}
	}

	truncated := int64(len(raw)) > f.cfg.MaxBytes
	if truncated {
		raw = []byte(truncateUTF8(string(raw), int(f.cfg.MaxBytes)))
	}

	data := raw
	utf8Reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		slog.Debug("Unknown page charset, using raw body", "url", url, "content_type", contentType, "error", err)
	} else if data, err = io.ReadAll(utf8Reader); err != nil {
		return nil, &FetchError{URL: url, Cause: fmt.Errorf("failed to decode response body: %w", err)}
	}

	page := &Page{
		URL:         url,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        data,
		Truncated:   truncated,
		FetchedAt:   time.Now().UTC(),
	}

	return page, nil
}

// Probe checks that url answers a HEAD request. 405 counts as reachable
// since some servers only implement GET.
func (f *Fetcher) Probe(ctx context.Context, url string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodHead, url, nil)
	if err != nil {
		return &FetchError{URL: url, Cause: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return &FetchError{URL: url, Cause: err}
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return &FetchError{URL: url, Cause: fmt.Errorf("HTTP error: %s", resp.Status)}
	}

	return nil
}
