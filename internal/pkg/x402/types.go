package x402

import (
	"encoding/json"
	"fmt"
)

// X402Version is the protocol version this client speaks.
const X402Version = 1

// PaymentRequirements describes what a resource costs. It is embedded in 402
// challenges and sent to the facilitator alongside the payment proof.
type PaymentRequirements struct {
	Scheme            string          `json:"scheme"`
	Network           string          `json:"network"`
	MaxAmountRequired string          `json:"maxAmountRequired"`
	Resource          string          `json:"resource"`
	Description       string          `json:"description"`
	MimeType          string          `json:"mimeType"`
	PayTo             string          `json:"payTo"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds"`
	Asset             string          `json:"asset"`
	Extra             json.RawMessage `json:"extra,omitempty"`
}

// SettleRequest is the facilitator /settle request body. The payment payload
// is the base64-decoded X-PAYMENT header, passed through unparsed.
type SettleRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      json.RawMessage     `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// SettleResponse is the facilitator /settle response. Payer is the
// authoritative buyer address.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Payer       string `json:"payer,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
}

// PaymentRequiredResponse is the 402 challenge body served when a request
// arrives without a payment header.
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// PassthroughError carries a facilitator rejection whose status code and body
// must reach the client byte-for-byte; the x402 client SDK keys its retry
// behavior off the exact shape.
type PassthroughError struct {
	StatusCode int
	Body       []byte
}

func (e *PassthroughError) Error() string {
	return fmt.Sprintf("facilitator rejected settlement (status %d)", e.StatusCode)
}
