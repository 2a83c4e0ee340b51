// Package notifications delivers transaction events to an HTTP endpoint.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

const userAgent = "GoBank-Webhook/1.0"

// WebhookPublisher POSTs each event as JSON to URL.
type WebhookPublisher struct {
	URL    string
	Client *http.Client
}

func NewWebhookPublisher(url string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookPublisher{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (w *WebhookPublisher) Publish(ctx context.Context, evt domain.TransactionCreated) error {
	return SendWebhook(ctx, w.Client, w.URL, evt)
}

// SendWebhook posts payload to url and treats any non-2xx answer as a failure.
func SendWebhook(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
}
