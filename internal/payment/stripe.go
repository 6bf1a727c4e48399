package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bidme/bidme/internal/retry"
)

const stripeBaseURL = "https://api.stripe.com/v1"

// StripeGateway talks to the Stripe-style API (form-encoded requests,
// JSON responses). Used for the bidme-managed provider mode.
type StripeGateway struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	retryDelay time.Duration
}

// NewStripeGateway creates a gateway using the given secret key.
func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{
		secretKey:  secretKey,
		baseURL:    stripeBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryDelay: 2 * time.Second,
	}
}

// Provider implements Gateway.
func (g *StripeGateway) Provider() string { return "stripe" }

// CreateCustomer implements Gateway.
func (g *StripeGateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*Customer, error) {
	form := url.Values{}
	form.Set("email", email)
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var out struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := g.do(ctx, http.MethodPost, "/customers", form, "", &out); err != nil {
		return nil, err
	}
	return &Customer{ID: out.ID, Email: out.Email}, nil
}

// CreateSetupSession implements Gateway. Stripe's embedded flow hands the
// caller a SetupIntent client secret.
func (g *StripeGateway) CreateSetupSession(ctx context.Context, customerID string) (*SetupSession, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("usage", "off_session")

	var out struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := g.do(ctx, http.MethodPost, "/setup_intents", form, "", &out); err != nil {
		return nil, err
	}
	return &SetupSession{ID: out.ID, ClientSecret: out.ClientSecret}, nil
}

// Charge implements Gateway via an off-session, immediately confirmed
// PaymentIntent. The idempotency key is forwarded in the Idempotency-Key
// header so a resumed close cannot double-charge.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", req.Amount))
	form.Set("currency", req.Currency)
	form.Set("customer", req.CustomerID)
	form.Set("payment_method", req.PaymentMethodID)
	form.Set("off_session", "true")
	form.Set("confirm", "true")
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var out struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
	}
	if err := g.do(ctx, http.MethodPost, "/payment_intents", form, req.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	return &ChargeResult{ID: out.ID, Amount: out.Amount, Currency: out.Currency, Status: out.Status}, nil
}

// GetPaymentMethod implements Gateway.
func (g *StripeGateway) GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	var out struct {
		ID   string `json:"id"`
		Card struct {
			Brand string `json:"brand"`
			Last4 string `json:"last4"`
		} `json:"card"`
	}
	if err := g.do(ctx, http.MethodGet, "/payment_methods/"+id, nil, "", &out); err != nil {
		return nil, err
	}
	return &PaymentMethod{ID: out.ID, Brand: out.Card.Brand, Last4: out.Card.Last4}, nil
}

// do performs one API call. Transport-level failures are retried with a
// fixed delay; API-level failures (including declines) are terminal and
// mapped to typed errors.
func (g *StripeGateway) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	resp, err := retry.Do(ctx, func() (*http.Response, error) {
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+g.secretKey)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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

// apiError maps a non-2xx Stripe response to a typed error. 402 is a card
// decline, 403/429 are rate limits, everything else is a provider/API fault.
func (g *StripeGateway) apiError(status int, body []byte) *Error {
	var payload struct {
		Error struct {
			Type        string `json:"type"`
			Code        string `json:"code"`
			Message     string `json:"message"`
			DeclineCode string `json:"decline_code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	message := payload.Error.Message
	if message == "" {
		message = fmt.Sprintf("provider returned status %d", status)
	}
	details := map[string]string{}
	if payload.Error.Code != "" {
		details["code"] = payload.Error.Code
	}
	if payload.Error.DeclineCode != "" {
		details["decline_code"] = payload.Error.DeclineCode
	}

	code := ErrCodeAPIError
	switch {
	case status == http.StatusPaymentRequired || payload.Error.Type == "card_error":
		code = ErrCodeDeclined
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		code = ErrCodeRateLimited
	}

	return &Error{
		Code:     code,
		Message:  message,
		Provider: g.Provider(),
		Status:   status,
		Details:  details,
	}
}
