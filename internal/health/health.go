// Package health runs lightweight reachability checks against the
// configured catalog mirror, independent of a full update run.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CheckSource issues a GET against the catalog source URL and discards the
// body. It returns nil only if the server answers 200 OK; some mirrors don't
// support HEAD reliably, so GET-and-discard is used instead.
func CheckSource(ctx context.Context, sourceURL string) error {
	if sourceURL == "" {
		return fmt.Errorf("no source URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("source unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("source returned HTTP %d", resp.StatusCode)
	}
	return nil
}
