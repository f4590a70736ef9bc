// Package notify posts terminal job results to a registered webhook.
// Delivery is best-effort: the authoritative job state is the job store
// write, never the notification side effect.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/danielgmorais/bulkbridge/internal/model"
	"github.com/danielgmorais/bulkbridge/internal/signing"
)

// SignatureHeader carries the HMAC of the request body when a webhook
// secret is configured.
const SignatureHeader = "X-BulkBridge-Signature"

// Webhook delivers job results over HTTP.
type Webhook struct {
	url        string
	signer     *signing.Signer
	httpClient *http.Client
}

// NewWebhook constructs a notifier. url may be empty, in which case Notify
// is a no-op. secret is optional.
func NewWebhook(url, secret string) *Webhook {
	w := &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	if secret != "" {
		w.signer = signing.NewSigner([]byte(secret))
	}
	return w
}

// Notify posts the result as JSON. Errors are returned so callers can log
// them, but callers must not fail the job on delivery problems.
func (w *Webhook) Notify(ctx context.Context, result model.JobResult) error {
	if w.url == "" {
		return nil
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.signer != nil {
		req.Header.Set(SignatureHeader, w.signer.Sign(body))
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
