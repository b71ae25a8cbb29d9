// Package source fetches the observable state of tracked entities from
// upstream sites and parses it into snapshots.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	userAgent = "Toonbot/1.0"
	maxBody   = 5 * 1024 * 1024
)

// get downloads url and returns at most maxBody bytes of it. Every failure is
// an *UpstreamError.
func get(ctx context.Context, client HTTPClient, name, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &UpstreamError{Source: name, URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Source: name, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Source: name, URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &UpstreamError{Source: name, URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
