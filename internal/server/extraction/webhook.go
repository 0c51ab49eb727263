package extraction

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/resumepress/internal/common"
)

// WebhookPayload is the push-path delivery. Once verified it is treated
// identically to a poll result for the same job.
type WebhookPayload struct {
	JobID        string          `json:"job_id"`
	Status       string          `json:"status"`
	Output       json.RawMessage `json:"output,omitempty"`
	ErrorMessage string          `json:"error,omitempty"`
}

// SignWebhook computes the hex HMAC-SHA256 signature the vendor attaches to
// a delivery body. Exposed so tests and local tooling can produce valid
// deliveries.
func SignWebhook(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks the delivery signature before the body is trusted.
// Comparison is constant-time.
func VerifyWebhook(secret []byte, signature string, body []byte) error {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed webhook signature", common.ErrValidation)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(want, mac.Sum(nil)) {
		return fmt.Errorf("%w: webhook signature mismatch", common.ErrUnauthorized)
	}
	return nil
}

// ParseWebhook decodes a verified delivery body.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body", common.ErrValidation)
	}
	if p.JobID == "" {
		return nil, fmt.Errorf("%w: webhook without job id", common.ErrValidation)
	}
	return &p, nil
}
