package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EdgePurger asks the CDN to drop its cached copy of a public page. Edge
// purges are advisory: edge entries carry short TTLs, so a failed purge only
// extends staleness by that TTL and never breaks the privacy guarantee, which
// is enforced by the origin cache.
type EdgePurger struct {
	purgeURL string
	token    string
	client   *http.Client
}

func NewEdgePurger(purgeURL, token string) *EdgePurger {
	return &EdgePurger{
		purgeURL: purgeURL,
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type purgeRequest struct {
	Paths []string `json:"paths"`
}

func (p *EdgePurger) Purge(ctx context.Context, handle string) error {
	body, err := json.Marshal(purgeRequest{Paths: []string{"/p/" + handle}})
	if err != nil {
		return fmt.Errorf("failed to encode purge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.purgeURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build purge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("edge purge failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("edge purge returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *EdgePurger) Name() string { return "cdn" }
