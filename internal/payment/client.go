// Package payment is a client for the external payment gateway.
//
// The gateway exposes two operations keyed by its own transaction id:
//
//	POST /v1/payments            create a payment, returns id and checkout url
//	POST /v1/payments/{id}/refund refund a completed payment
//
// Both requests carry an Idempotency-Key so a retried call never charges or
// refunds twice.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
)

// Client talks to the gateway over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *slog.Logger
}

// NewClient constructs a Client. timeout bounds every round trip.
func NewClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type createPaymentRequest struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type createPaymentResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
}

type refundRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type refundResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreatePayment opens a payment for a registration.
func (c *Client) CreatePayment(ctx context.Context, registrationID string, amount model.Money) (*model.PaymentIntent, error) {
	var out createPaymentResponse
	err := c.post(ctx, "/v1/payments", "create-"+registrationID, createPaymentRequest{
		Reference: registrationID,
		Amount:    amount.Amount,
		Currency:  amount.Currency,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create payment: gateway returned no id")
	}
	return &model.PaymentIntent{ExternalID: out.ID, CheckoutURL: out.CheckoutURL, Amount: amount}, nil
}

// Refund returns amount of the payment identified by externalID and reports
// the gateway's refund id.
func (c *Client) Refund(ctx context.Context, externalID string, amount model.Money) (string, error) {
	var out refundResponse
	path := "/v1/payments/" + url.PathEscape(externalID) + "/refund"
	err := c.post(ctx, path, "refund-"+externalID, refundRequest{
		Amount:   amount.Amount,
		Currency: amount.Currency,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("refund payment %s: %w", externalID, err)
	}
	return out.ID, nil
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.DebugContext(ctx, "payment gateway call",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("gateway status %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("gateway status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
