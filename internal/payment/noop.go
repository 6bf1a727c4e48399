package payment

import "context"

// UnconfiguredGateway is the fallback when no provider credentials are
// present. Every paid operation fails closed with ErrCodeNotConfigured so a
// close run cannot silently skip a charge.
type UnconfiguredGateway struct{}

// Provider implements Gateway.
func (*UnconfiguredGateway) Provider() string { return "none" }

func (*UnconfiguredGateway) CreateCustomer(context.Context, string, map[string]string) (*Customer, error) {
	return nil, notConfigured("create customer")
}

func (*UnconfiguredGateway) CreateSetupSession(context.Context, string) (*SetupSession, error) {
	return nil, notConfigured("create setup session")
}

func (*UnconfiguredGateway) Charge(context.Context, ChargeRequest) (*ChargeResult, error) {
	return nil, notConfigured("charge")
}

func (*UnconfiguredGateway) GetPaymentMethod(context.Context, string) (*PaymentMethod, error) {
	return nil, notConfigured("get payment method")
}

func notConfigured(op string) *Error {
	return &Error{
		Code:     ErrCodeNotConfigured,
		Message:  op + " requires payment provider credentials",
		Provider: "none",
	}
}
