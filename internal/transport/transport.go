// Package transport fetches raw MIDI bytes over HTTP. It only acquires
// bytes; parsing them is the converter's business, and a failure here is
// always distinct from a parse failure.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// StatusError reports a non-2xx response. The request is not retried.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %v: %v", e.URL, e.Status)
}

// Fetch downloads the resource at address and returns its bytes. Cancellation
// and timeouts come in through ctx; no policy lives here.
func Fetch(ctx context.Context, address string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %v: %w", address, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %v: %w", address, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: address, Code: resp.StatusCode, Status: resp.Status}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %v: %w", address, err)
	}
	return b, nil
}
