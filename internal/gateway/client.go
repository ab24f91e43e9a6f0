package gateway

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/logger"
)

// ErrRejected marks a request the gateway refused outright. Retrying it
// cannot succeed.
var ErrRejected = fmt.Errorf("%w: payment gateway rejected the request", domain.ErrExternalDependency)

// Client is a JSON client for the payment gateway. Requests carry the API key
// as a bearer token and W3C trace headers.
type Client struct {
	hc      *http.Client
	baseURL string
	apiKey  string
}

func New(cfg config.GatewayConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

type createPaymentRequest struct {
	Reference     string `json:"reference"`
	ReservationID int64  `json:"reservation_id"`
	AmountCents   int64  `json:"amount_cents"`
	Description   string `json:"description"`
	Customer      string `json:"customer"`
}

// Payment is the gateway's view of one payment.
type Payment struct {
	ID      string                `json:"payment_id"`
	Status  domain.PaymentOutcome `json:"status"`
	Token   string                `json:"token"`
	PayerID string                `json:"payer_id"`
}

type refundRequest struct {
	Token       string `json:"token"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// CreatePayment submits the intent and returns the gateway's payment id. The
// record id is sent as the idempotency key, so a resubmission after a lost
// response yields the same payment.
func (c *Client) CreatePayment(ctx context.Context, rec *domain.PaymentRecord) (string, error) {
	logger.ExternalServiceCall("payment-gateway", "CreatePayment", "record_id", rec.ID, "reservation_id", rec.ReservationID)
	var p Payment
	err := c.do(ctx, http.MethodPost, "/payments", rec.ID.String(), createPaymentRequest{
		Reference:     rec.ID.String(),
		ReservationID: rec.ReservationID,
		AmountCents:   rec.AmountCents,
		Description:   rec.Description,
		Customer:      rec.Customer,
	}, &p)
	if err == nil && p.ID == "" {
		err = fmt.Errorf("%w: payment gateway returned no payment id", domain.ErrExternalDependency)
	}
	logger.ExternalServiceResult("payment-gateway", "CreatePayment", err, "record_id", rec.ID, "payment_id", p.ID)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	logger.ExternalServiceCall("payment-gateway", "GetPayment", "payment_id", paymentID)
	var p Payment
	err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), "", nil, &p)
	logger.ExternalServiceResult("payment-gateway", "GetPayment", err, "payment_id", paymentID, "status", p.Status)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = paymentID
	}
	return &p, nil
}

// Refund returns a captured payment identified by its token.
func (c *Client) Refund(ctx context.Context, token string, amountCents int64, reason string) error {
	return c.do(ctx, http.MethodPost, "/refunds", "refund-"+token, refundRequest{
		Token:       token,
		AmountCents: amountCents,
		Reason:      reason,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrExternalDependency, method, path, err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrExternalDependency, err)
	}

	if res.StatusCode >= 400 {
		var e errorResponse
		_ = json.Unmarshal(b, &e)
		kind := domain.ErrExternalDependency
		if permanent(res.StatusCode) {
			kind = ErrRejected
		}
		if e.Message != "" {
			return fmt.Errorf("%w: %s %s: %s (status=%d)", kind, method, path, e.Message, res.StatusCode)
		}
		return fmt.Errorf("%w: %s %s (status=%d)", kind, method, path, res.StatusCode)
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrExternalDependency, err)
	}
	return nil
}

func permanent(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
}

// IsRejected reports whether err is a permanent gateway refusal.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
