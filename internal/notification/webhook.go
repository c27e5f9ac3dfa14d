package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
)

// WebhookNotifier POSTs alerts as JSON to a generic HTTP endpoint. 5xx and
// transport failures are retried with exponential backoff; 4xx is final.
type WebhookNotifier struct {
	url    string
	client *http.Client

	// MaxElapsed bounds the total retry time for one alert.
	MaxElapsed      time.Duration
	InitialInterval time.Duration
}

// NewWebhookNotifier creates a webhook notifier.
// url: The HTTP endpoint to POST alerts to.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:             url,
		client:          &http.Client{Timeout: 10 * time.Second},
		MaxElapsed:      30 * time.Second,
		InitialInterval: 500 * time.Millisecond,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := sonic.Marshal(alert)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	post := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("webhook: create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook: send: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("webhook: unexpected status %d", resp.StatusCode))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.InitialInterval
	bo.MaxElapsedTime = w.MaxElapsed
	return backoff.Retry(post, backoff.WithContext(bo, ctx))
}
