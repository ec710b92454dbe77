package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seaside-charters/api/internal/domain"
)

const (
	defaultTimeout    = 5 * time.Second
	idempotencyHeader = "Idempotency-Key"
	maxErrorBody      = 512
)

// ErrNotConfigured is returned when the client has no webhook URL.
var ErrNotConfigured = errors.New("leads: webhook url is not configured")

// WebhookClient forwards leads to the CRM's inbound webhook.
type WebhookClient struct {
	endpoint string
	http     *http.Client
}

// Option customises the client.
type Option func(*WebhookClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *WebhookClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *WebhookClient) {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
	}
}

// NewWebhookClient validates the endpoint and constructs the client.
func NewWebhookClient(endpoint string, opts ...Option) (*WebhookClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, ErrNotConfigured
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("leads: invalid webhook url %q", endpoint)
	}
	client := &WebhookClient{
		endpoint: parsed.String(),
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// CaptureLead posts the lead as JSON. Any non-2xx response is an error.
func (c *WebhookClient) CaptureLead(ctx context.Context, lead domain.Lead) error {
	if c == nil || c.endpoint == "" {
		return ErrNotConfigured
	}
	lead.Email = strings.TrimSpace(lead.Email)
	if lead.Email == "" {
		return errors.New("leads: email is required")
	}

	payload, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("leads: marshal lead: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if lead.OrderID != "" {
		req.Header.Set(idempotencyHeader, string(lead.Source)+":"+lead.OrderID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("leads: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("leads: status %d: %s", resp.StatusCode, drainError(resp.Body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func drainError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
