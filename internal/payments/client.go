// Package payments creates hosted checkout sessions at a third-party payment
// provider. It shares no state with the bot conversation.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// CheckoutRequest describes the session to create.
type CheckoutRequest struct {
	Amount    string `json:"amount" validate:"required"`
	Currency  string `json:"currency" validate:"required"`
	OrderID   string `json:"order_id,omitempty"`
	ReturnURL string `json:"return_url,omitempty"`
}

// CheckoutSession is the provider's hosted checkout page.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type providerError struct {
	Message string `json:"message"`
}

// Client talks to the payment provider's REST API.
type Client struct {
	logger  *slog.Logger
	http    *http.Client
	baseURL string
	apiKey  string
}

func NewClient(log *slog.Logger, baseURL, apiKey string) *Client {
	return &Client{
		logger:  log.With(slog.String("service", "payments")),
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// CreateCheckout opens a hosted checkout session and returns its URL.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("encode checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("build checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create checkout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var perr providerError
		_ = json.NewDecoder(resp.Body).Decode(&perr)
		c.logger.Warn("checkout rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("message", perr.Message),
		)
		return CheckoutSession{}, fmt.Errorf("checkout status %d: %s", resp.StatusCode, perr.Message)
	}

	var sess CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode checkout response: %w", err)
	}
	return sess, nil
}
