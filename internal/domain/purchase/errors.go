package purchase

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrSettlementInFlight means the same payment proof is already being
	// settled by a concurrent request.
	ErrSettlementInFlight = errors.New("settlement already in progress for this payment")
	// ErrSecretUnavailable is the reconciliation edge: payment settled but
	// the secret could not be resolved.
	ErrSecretUnavailable = errors.New("payment settled but secret unavailable")
)
