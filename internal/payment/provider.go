package payment

import (
	"context"
)

// InitializeParams captures the information required to open a transaction
// with the gateway. Amount is in minor units (kobo).
type InitializeParams struct {
	Email       string
	AmountMinor int64
	OrderNumber string
	CallbackURL string
}

// InitializeResult is the minimal surface the checkout flow needs back from
// the gateway: where to send the customer and how to find the transaction
// again later.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	AccessCode       string `json:"access_code"`
}

// VerifyResult is the normalised outcome of a transaction lookup.
type VerifyResult struct {
	Reference       string
	Status          string
	AmountMinor     int64
	GatewayResponse string
}

// Provider abstracts the operations required from the upstream payment gateway.
type Provider interface {
	Initialize(ctx context.Context, arg InitializeParams) (InitializeResult, error)
	Verify(ctx context.Context, reference string) (VerifyResult, error)
	VerifyWebhookSignature(body []byte, signature string) bool
}
