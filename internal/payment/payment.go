package payment

import "context"

// Gateway is the payments provider as seen by this service: read-only access to checkout
// sessions plus webhook verification.
type Gateway interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	ParseWebhook(payload []byte, signatureHeader string) (*Event, error)
}

const SignatureHeader = "provider-signature"
