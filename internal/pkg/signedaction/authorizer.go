package signedaction

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog/log"

	"github.com/apoorvlathey/invite-markets-api/internal/pkg/ethsig"
)

// ErrUnauthorized is the single error surfaced for every failed authorization
// attempt. Callers map it to a generic 401; the specific failing check is
// logged server-side only.
var ErrUnauthorized = errors.New("unauthorized")

// Authorizer validates that a request claiming to act as an address was
// actually authorized by the holder of that address. It is stateless apart
// from the consumed-nonce ledger.
type Authorizer struct {
	verifier ethsig.Verifier
	domain   apitypes.TypedDataDomain
	nonces   NonceLedger
}

// NewAuthorizer creates an authorizer bound to one chain. A nil ledger
// disables nonce deduplication.
func NewAuthorizer(verifier ethsig.Verifier, chainID int64, nonces NonceLedger) *Authorizer {
	if nonces == nil {
		nonces = NoopNonceLedger{}
	}
	return &Authorizer{
		verifier: verifier,
		domain:   TypedDomain(chainID),
		nonces:   nonces,
	}
}

// AuthorizeTyped verifies an EIP-712 signed action against the address the
// action is being performed on behalf of. The signed nonce is consumed so a
// captured signature cannot be replayed.
func (a *Authorizer) AuthorizeTyped(ctx context.Context, action TypedAction, signature string, expected common.Address) error {
	if action.Actor() != expected {
		log.Debug().
			Str("claimed", action.Actor().Hex()).
			Str("expected", expected.Hex()).
			Msg("typed action actor mismatch")
		return ErrUnauthorized
	}

	typedData := apitypes.TypedData{
		Types:       action.Types(),
		PrimaryType: action.PrimaryType(),
		Domain:      a.domain,
		Message:     action.Message(),
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		log.Debug().Err(err).Str("action", action.PrimaryType()).Msg("typed data hash failed")
		return ErrUnauthorized
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return ErrUnauthorized
	}

	ok, err := a.verifier.Verify(ctx, expected, hash, sig)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug().Str("action", action.PrimaryType()).Str("signer", expected.Hex()).Msg("typed signature invalid")
		return ErrUnauthorized
	}

	consumed, err := a.nonces.Consume(ctx, expected.Hex(), action.ActionNonce())
	if err != nil {
		return err
	}
	if !consumed {
		log.Warn().Str("signer", expected.Hex()).Str("nonce", action.ActionNonce()).Msg("nonce replay rejected")
		return ErrUnauthorized
	}
	return nil
}
