// Package infinitypay is a thin client for InfinityPay's public checkout API.
package infinitypay

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

	"github.com/cenkalti/backoff/v4"

	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
)

const checkoutLinksPath = "/invoices/public/checkout/links"

var (
	errBaseURLRequired    = errors.New("infinitypay base url is required")
	errWebhookURLRequired = errors.New("infinitypay webhook url is required")
)

// Item is one checkout line. Price is in cents.
type Item struct {
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
}

// CheckoutRequest describes a hosted checkout for one supplier handle.
type CheckoutRequest struct {
	Handle   string
	Items    []Item
	OrderNSU string
}

// CheckoutLink is the created hosted checkout.
type CheckoutLink struct {
	URL string `json:"url"`
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("infinitypay returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

type checkoutBody struct {
	Handle     string `json:"handle"`
	Items      []Item `json:"items"`
	OrderNSU   string `json:"order_nsu"`
	WebhookURL string `json:"webhook_url"`
}

// Client wraps the HTTP transport plus gateway settings.
type Client struct {
	http          *http.Client
	baseURL       string
	webhookURL    string
	signingSecret string
	maxRetries    uint64
	newBackOff    func() backoff.BackOff
	logg          *logger.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBackOff overrides the retry schedule.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) {
		if fn != nil {
			c.newBackOff = fn
		}
	}
}

// NewClient validates cfg and builds a gateway client.
func NewClient(ctx context.Context, cfg config.InfinityPayConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errWebhookURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		http:          &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		webhookURL:    webhookURL,
		signingSecret: strings.TrimSpace(cfg.WebhookSecret),
		maxRetries:    cfg.MaxRetries,
		newBackOff:    defaultBackOff,
		logg:          logg,
	}
	for _, opt := range opts {
		opt(c)
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("infinitypay client initialized (%s)", baseURL))
	}
	return c, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 15 * time.Second
	return b
}

// HTTPClient exposes the transport, mainly for test mocking.
func (c *Client) HTTPClient() *http.Client {
	if c == nil {
		return nil
	}
	return c.http
}

// SigningSecret returns the webhook HMAC secret; empty disables verification.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// CreateCheckoutLink creates a hosted checkout. Network errors, 429 and 5xx
// responses are retried; other 4xx responses fail immediately.
func (c *Client) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(checkoutBody{
		Handle:     req.Handle,
		Items:      req.Items,
		OrderNSU:   req.OrderNSU,
		WebhookURL: c.webhookURL,
	})
	if err != nil {
		return nil, fmt.Errorf("encode checkout request: %w", err)
	}

	var link *CheckoutLink
	attempt := 0
	operation := func() error {
		attempt++
		out, err := c.post(ctx, payload)
		if err != nil {
			var permanent *backoff.PermanentError
			if errors.As(err, &permanent) {
				return err
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if c.logg != nil {
				c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
					"order_nsu": req.OrderNSU,
					"attempt":   attempt,
					"error":     err.Error(),
				}), "infinitypay checkout attempt failed")
			}
			return err
		}
		link = out
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("create checkout link: %w", err)
	}
	return link, nil
}

func (c *Client) post(ctx context.Context, payload []byte) (*CheckoutLink, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+checkoutLinksPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var link CheckoutLink
	if err := json.Unmarshal(body, &link); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if strings.TrimSpace(link.URL) == "" {
		return nil, backoff.Permanent(errors.New("infinitypay response missing url"))
	}
	return &link, nil
}

func validateRequest(req CheckoutRequest) error {
	if strings.TrimSpace(req.Handle) == "" {
		return errors.New("handle is required")
	}
	if len(req.Items) == 0 {
		return errors.New("items cannot be empty")
	}
	if strings.TrimSpace(req.OrderNSU) == "" {
		return errors.New("order nsu is required")
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d]: quantity must be positive", i)
		}
		if item.Price < 0 {
			return fmt.Errorf("items[%d]: price must not be negative", i)
		}
	}
	return nil
}
