package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"paytrack/internal/domain/payment"
	"paytrack/internal/provider/base"
)

// ProviderError is returned for non-2xx answers from the status endpoints.
type ProviderError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment status provider: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("payment status provider: %d: %s", e.StatusCode, e.Message)
}

// Error codes
const (
	ErrNotFound     = "not_found"
	ErrUnauthorized = "unauthorized"
	ErrProviderDown = "provider_down"
	ErrUnknownError = "unknown_error"
)

// Client talks to the Payment Status Provider.
type Client struct {
	http *base.HTTPClient
}

// New creates a client rooted at baseURL. transport may carry auth.
func New(baseURL string, timeout time.Duration, transport http.RoundTripper) *Client {
	return &Client{http: base.NewHTTPClient("payment-status", baseURL, timeout, transport)}
}

// FetchStatus returns the current payload for a payment token.
func (c *Client) FetchStatus(ctx context.Context, token payment.Token) (*payment.Payload, error) {
	if token.Empty() {
		return nil, errors.New("payment status provider: empty token")
	}
	return c.fetch(ctx, "/payments/status/"+url.PathEscape(token.String()))
}

// FetchPayment returns the payload for an internal payment id.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*payment.Payload, error) {
	if paymentID == "" {
		return nil, errors.New("payment status provider: empty payment id")
	}
	return c.fetch(ctx, "/payments/"+url.PathEscape(paymentID))
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*payment.Payload, error) {
	resp, err := c.http.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, toProviderError(resp)
	}

	body := resp.Body
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && !bytes.Equal(envelope.Data, []byte("null")) {
		body = envelope.Data
	}

	var p payment.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode payment payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func toProviderError(resp *base.HTTPResponse) *ProviderError {
	pe := &ProviderError{StatusCode: resp.StatusCode}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := resp.UnmarshalJSON(&body); err == nil {
		pe.Code = body.Code
		pe.Message = body.Message
		if pe.Message == "" {
			pe.Message = body.Error
		}
	}
	if pe.Code == "" {
		switch {
		case resp.StatusCode == http.StatusNotFound:
			pe.Code = ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			pe.Code = ErrUnauthorized
		case resp.StatusCode >= 500:
			pe.Code = ErrProviderDown
		default:
			pe.Code = ErrUnknownError
		}
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(resp.StatusCode)
	}
	return pe
}
