// Package notify delivers crisis notifications to an emergency contact
// channel over an HTTP webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wellness-agent/internal/crisis"
)

// ErrNoChannel is returned when no webhook is configured. Escalation treats
// it like any other delivery failure, so the event is flagged for follow-up.
var ErrNoChannel = errors.New("notify: no emergency channel configured")

// payload is the webhook body. It never includes message contents.
type payload struct {
	ContactID string    `json:"contactId"`
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Level     string    `json:"level"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusError captures a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("notify: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Webhook posts notifications as JSON. Only a 2xx response counts as an
// acknowledged delivery.
type Webhook struct {
	url        string
	token      string
	httpClient *http.Client
}

type Option func(*Webhook)

func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) { w.httpClient = c }
}

// WithBearerToken authenticates requests to the webhook.
func WithBearerToken(token string) Option {
	return func(w *Webhook) { w.token = strings.TrimSpace(token) }
}

// New returns a Webhook for url. An empty url yields a notifier that always
// fails with ErrNoChannel.
func New(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Send implements crisis.Notifier.
func (w *Webhook) Send(ctx context.Context, contactID string, n crisis.Notification) error {
	if w.url == "" {
		return ErrNoChannel
	}
	body, err := json.Marshal(payload{
		ContactID: contactID,
		EventID:   n.EventID,
		UserID:    n.UserID,
		Level:     n.Level,
		CreatedAt: n.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Lets the receiver drop duplicate deliveries of the same event.
	req.Header.Set("Idempotency-Key", n.EventID)
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	res, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return &StatusError{StatusCode: res.StatusCode, Body: string(buf)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
	return nil
}
