// Package extraction wraps the external AI extraction vendor: job submission,
// status polling and inbound webhook verification. Vendor statuses and errors
// never leave this package unmapped.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/resumepress/internal/common"
)

// Vendor job statuses as they appear on the wire.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// SubmitRequest describes one parsing job: a time-limited file handle, the
// target schema and an optional webhook callback.
type SubmitRequest struct {
	FileURL     string          `json:"file_url"`
	Schema      json.RawMessage `json:"schema"`
	CallbackURL string          `json:"callback_url,omitempty"`
}

// SubmitResult is the vendor's acknowledgement of a submitted job.
type SubmitResult struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// PollResult reflects the vendor-side state of a job. Output is only set on
// completed, ErrorMessage only on failed.
type PollResult struct {
	Status       string          `json:"status"`
	Output       json.RawMessage `json:"output,omitempty"`
	ErrorMessage string          `json:"error,omitempty"`
}

// Client is the narrow interface the state machine consumes.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	Poll(ctx context.Context, jobID string) (*PollResult, error)
}

// HTTPClient talks JSON over HTTP to the extraction vendor.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient builds a vendor client with a bounded request timeout.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientService, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: vendor returned %d", common.ErrTransientService, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return common.ErrNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: vendor rejected request with %d", common.ErrValidation, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Submit sends the job to the vendor, retrying transient failures with capped
// exponential backoff. A retried submit is safe here: the job carries the
// same file handle, and the caller only records the job reference once.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	var result SubmitResult

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodPost, "/v1/parse", req, &result)
		if errors.Is(err, common.ErrTransientService) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Poll fetches the current vendor-side state. Transient vendor conditions
// surface as common.ErrTransientService; the state machine owns the
// "still processing" policy, so no retry happens here.
func (c *HTTPClient) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	var result PollResult
	if err := c.do(ctx, http.MethodGet, "/v1/parse/"+jobID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
