package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bidme/bidme/internal/retry"
)

const polarBaseURL = "https://api.polar.sh/v1"

// PolarGateway talks to the Polar-style API (JSON requests and responses).
// Used for the polar-own provider mode.
type PolarGateway struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
	retryDelay  time.Duration
}

// NewPolarGateway creates a gateway using the given access token.
func NewPolarGateway(accessToken string) *PolarGateway {
	return &PolarGateway{
		accessToken: accessToken,
		baseURL:     polarBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		retryDelay:  2 * time.Second,
	}
}

// Provider implements Gateway.
func (g *PolarGateway) Provider() string { return "polar" }

// CreateCustomer implements Gateway.
func (g *PolarGateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*Customer, error) {
	payload := map[string]any{"email": email}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}

	var out struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := g.do(ctx, http.MethodPost, "/customers", payload, "", &out); err != nil {
		return nil, err
	}
	return &Customer{ID: out.ID, Email: out.Email}, nil
}

// CreateSetupSession implements Gateway. Polar's hosted flow hands the
// caller a redirect URL.
func (g *PolarGateway) CreateSetupSession(ctx context.Context, customerID string) (*SetupSession, error) {
	payload := map[string]any{"customer_id": customerID}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := g.do(ctx, http.MethodPost, "/checkouts", payload, "", &out); err != nil {
		return nil, err
	}
	return &SetupSession{ID: out.ID, URL: out.URL}, nil
}

// Charge implements Gateway. The idempotency key rides in the request body
// per Polar's API convention.
func (g *PolarGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payload := map[string]any{
		"customer_id":       req.CustomerID,
		"payment_method_id": req.PaymentMethodID,
		"amount":            req.Amount,
		"currency":          req.Currency,
	}
	if req.IdempotencyKey != "" {
		payload["idempotency_key"] = req.IdempotencyKey
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}

	var out struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
	}
	if err := g.do(ctx, http.MethodPost, "/charges", payload, req.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	return &ChargeResult{ID: out.ID, Amount: out.Amount, Currency: out.Currency, Status: out.Status}, nil
}

// GetPaymentMethod implements Gateway.
func (g *PolarGateway) GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	var out struct {
		ID    string `json:"id"`
		Brand string `json:"brand"`
		Last4 string `json:"last4"`
	}
	if err := g.do(ctx, http.MethodGet, "/payment-methods/"+id, nil, "", &out); err != nil {
		return nil, err
	}
	return &PaymentMethod{ID: out.ID, Brand: out.Brand, Last4: out.Last4}, nil
}

// do performs one API call with transport-level retries, mirroring the
// Stripe gateway's error mapping.
func (g *PolarGateway) do(ctx context.Context, method, path string, payload any, idempotencyKey string, out any) error {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return &Error{Code: ErrCodeAPIError, Message: "encode request", Provider: g.Provider(), Err: err}
		}
	}

	resp, err := retry.Do(ctx, func() (*http.Response, error) {
		var body io.Reader
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+g.accessToken)
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}
		return g.httpClient.Do(req)
	}, retry.Options{Delay: g.retryDelay})
	if err != nil {
		return &Error{
			Code:     ErrCodeAPIError,
			Message:  fmt.Sprintf("%s %s failed", method, path),
			Provider: g.Provider(),
			Err:      err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Code: ErrCodeAPIError, Message: "read response body", Provider: g.Provider(), Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Code: ErrCodeAPIError, Message: "decode response", Provider: g.Provider(), Err: err}
		}
		return nil
	}

	return g.apiError(resp.StatusCode, data)
}

func (g *PolarGateway) apiError(status int, body []byte) *Error {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	message := payload.Detail
	if message == "" {
		message = payload.Error
	}
	if message == "" {
		message = fmt.Sprintf("provider returned status %d", status)
	}

	code := ErrCodeAPIError
	switch status {
	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		code = ErrCodeDeclined
	case http.StatusForbidden, http.StatusTooManyRequests:
		code = ErrCodeRateLimited
	}

	return &Error{
		Code:     code,
		Message:  message,
		Provider: g.Provider(),
		Status:   status,
	}
}
