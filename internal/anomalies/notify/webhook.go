package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Notification is a rendered anomaly alert ready for delivery.
type Notification struct {
	Event      string
	MachineID  string
	Parameter  string
	Body       string
	OccurredAt string
}

// Channel delivers anomaly notifications.
type Channel interface {
	Send(ctx context.Context, note Notification) error
}

type webhookAlert struct {
	Event      string `json:"event"`
	MachineID  string `json:"machine_id"`
	Parameter  string `json:"parameter"`
	Body       string `json:"body"`
	OccurredAt string `json:"occurred_at"`
}

// WebhookChannel posts anomaly alerts to an HTTP endpoint. A 5xx reply is
// retried once; 4xx replies are not.
type WebhookChannel struct {
	url       string
	authToken string
	client    *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithAuthToken sets a shared secret sent as X-Alert-Token.
func WithAuthToken(token string) WebhookOption {
	return func(ch *WebhookChannel) {
		ch.authToken = token
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the alert as JSON.
func (w *WebhookChannel) Send(ctx context.Context, note Notification) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	body, err := json.Marshal(webhookAlert{
		Event:      note.Event,
		MachineID:  note.MachineID,
		Parameter:  note.Parameter,
		Body:       note.Body,
		OccurredAt: note.OccurredAt,
	})
	if err != nil {
		return err
	}

	status, err := w.post(ctx, body)
	if err == nil && status >= 500 {
		status, err = w.post(ctx, body)
	}
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("webhook channel: unexpected status %d", status)
	}
	return nil
}

func (w *WebhookChannel) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.authToken != "" {
		req.Header.Set("X-Alert-Token", w.authToken)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
