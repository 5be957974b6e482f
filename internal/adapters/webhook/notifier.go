// Package webhook delivers best-effort job callbacks over HTTP.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"ytdlserver/internal/core/ports"
)

// Notifier implements ports.Notifier using a plain HTTP client with a
// bounded timeout. Delivery outcomes are reported, never retried.
type Notifier struct {
	client *http.Client
}

// New creates a Notifier whose requests are bounded by timeout
// (5 seconds when zero).
func New(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{
		client: &http.Client{Timeout: timeout},
	}
}

// Notify posts the payload to url and reports the outcome. It never returns
// an error: transport failures and non-2xx responses are captured in the
// Delivery for the caller to log.
func (n *Notifier) Notify(ctx context.Context, url string, payload ports.NotifyPayload) ports.Delivery {
	start := time.Now()
	d := ports.Delivery{URL: url}

	body, err := json.Marshal(payload)
	if err != nil {
		d.Err = err
		d.Elapsed = time.Since(start)
		return d
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.Err = err
		d.Elapsed = time.Since(start)
		return d
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		d.Err = err
		d.Elapsed = time.Since(start)
		return d
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	d.StatusCode = resp.StatusCode
	d.Elapsed = time.Since(start)
	return d
}
