// Package payment abstracts the two interchangeable payment providers behind
// a single capability interface. The period manager never branches on
// provider identity; the implementation is selected once at startup from
// config and credentials.
package payment

import (
	"context"
	"os"

	"log/slog"

	"github.com/bidme/bidme/internal/config"
)

// Environment variables carrying provider credentials.
const (
	EnvStripeSecretKey  = "STRIPE_SECRET_KEY"
	EnvPolarAccessToken = "POLAR_ACCESS_TOKEN"
)

// Optional base URL overrides, for sandbox endpoints.
const (
	EnvStripeAPIURL = "STRIPE_API_URL"
	EnvPolarAPIURL  = "POLAR_API_URL"
)

// Customer is a provider-side customer record.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SetupSession is a provider-hosted payment-method linking session. Exactly
// one of ClientSecret (embedded flows) or URL (hosted redirect) is set,
// depending on the provider.
type SetupSession struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret,omitempty"`
	URL          string `json:"url,omitempty"`
}

// PaymentMethod is a linked payment instrument.
type PaymentMethod struct {
	ID    string `json:"id"`
	Brand string `json:"brand,omitempty"`
	Last4 string `json:"last4,omitempty"`
}

// ChargeRequest describes one charge attempt. IdempotencyKey is forwarded to
// the provider so a re-run after a partial failure cannot double-charge.
type ChargeRequest struct {
	CustomerID      string
	PaymentMethodID string
	Amount          int64
	Currency        string
	IdempotencyKey  string
	Metadata        map[string]string
}

// ChargeResult is a completed charge.
type ChargeResult struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// Gateway is the capability interface over a payment provider. Every method
// that reaches the network goes through the retry framework and returns a
// typed *Error on failure.
type Gateway interface {
	// Provider names the implementation, for logging only.
	Provider() string

	// CreateCustomer creates (or upserts) a provider-side customer.
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (*Customer, error)

	// CreateSetupSession starts a payment-method linking session for a
	// customer.
	CreateSetupSession(ctx context.Context, customerID string) (*SetupSession, error)

	// Charge charges a customer's payment method.
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)

	// GetPaymentMethod fetches a payment method by ID.
	GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error)
}

// FromConfig selects and constructs the gateway for the configured provider.
// Missing credentials degrade to an unconfigured gateway that logs a warning
// and fails closed on any paid operation.
func FromConfig(cfg config.PaymentConfig, logger *slog.Logger) Gateway {
	switch cfg.Provider {
	case config.ProviderPolarOwn:
		token := os.Getenv(EnvPolarAccessToken)
		if token == "" {
			logger.Warn("payment gateway not configured", "provider", cfg.Provider, "missing", EnvPolarAccessToken)
			return &UnconfiguredGateway{}
		}
		gw := NewPolarGateway(token)
		if base := os.Getenv(EnvPolarAPIURL); base != "" {
			gw.baseURL = base
		}
		return gw
	case config.ProviderBidmeManaged:
		key := os.Getenv(EnvStripeSecretKey)
		if key == "" {
			logger.Warn("payment gateway not configured", "provider", cfg.Provider, "missing", EnvStripeSecretKey)
			return &UnconfiguredGateway{}
		}
		gw := NewStripeGateway(key)
		if base := os.Getenv(EnvStripeAPIURL); base != "" {
			gw.baseURL = base
		}
		return gw
	default:
		logger.Warn("unknown payment provider", "provider", cfg.Provider)
		return &UnconfiguredGateway{}
	}
}
