package x402

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrSettlementAmbiguous marks a settlement whose outcome is unknown (the
// facilitator call timed out after the payment may have landed on-chain).
// Callers must surface it distinctly from a definite rejection.
var ErrSettlementAmbiguous = errors.New("settlement outcome ambiguous")

// ErrInvalidPaymentHeader marks a payment header that is not base64-encoded
// JSON. It is rejected locally, before the facilitator is contacted.
var ErrInvalidPaymentHeader = errors.New("invalid payment header")

// FacilitatorClient talks to an external x402 payment facilitator.
type FacilitatorClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewFacilitatorClient creates a facilitator client with a bounded timeout.
func NewFacilitatorClient(baseURL, apiKey string, timeout time.Duration) *FacilitatorClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FacilitatorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// DecodePaymentHeader base64-decodes an X-PAYMENT header into the JSON
// payment payload. The payload itself is never inspected.
func DecodePaymentHeader(header string) (json.RawMessage, error) {
	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, ErrInvalidPaymentHeader
	}
	if !json.Valid(decoded) {
		return nil, ErrInvalidPaymentHeader
	}
	return json.RawMessage(decoded), nil
}

// Settle submits a payment proof for on-chain settlement. On a facilitator
// rejection the raw status and body come back as a *PassthroughError; on a
// timeout the error wraps ErrSettlementAmbiguous.
func (c *FacilitatorClient) Settle(ctx context.Context, paymentHeader string, requirements PaymentRequirements) (*SettleResponse, error) {
	payload, err := DecodePaymentHeader(paymentHeader)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(SettleRequest{
		X402Version:         X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isAmbiguous(err) {
			return nil, fmt.Errorf("facilitator settle: %w", ErrSettlementAmbiguous)
		}
		return nil, fmt.Errorf("facilitator settle: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isAmbiguous(err) {
			return nil, fmt.Errorf("facilitator settle read: %w", ErrSettlementAmbiguous)
		}
		return nil, fmt.Errorf("facilitator settle read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &PassthroughError{StatusCode: resp.StatusCode, Body: respBody}
	}

	var out SettleResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("facilitator settle decode: %w", err)
	}
	if !out.Success {
		// A 200 with success=false is still a rejection; preserve the body
		// for the client SDK.
		return nil, &PassthroughError{StatusCode: http.StatusPaymentRequired, Body: respBody}
	}
	return &out, nil
}

// isAmbiguous reports whether a transport failure leaves the settlement
// outcome unknown. A timed-out or cancelled call may already have reached
// the facilitator and settled on-chain.
func isAmbiguous(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
