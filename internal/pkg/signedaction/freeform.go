package signedaction

import (
	"context"
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog/log"
)

// Freeform messages embed a Timestamp and an Address line; the template
// around them is a client concern and is ignored here.
var (
	timestampRe = regexp.MustCompile(`Timestamp:\s*(\d+)`)
	addressRe   = regexp.MustCompile(`Address:\s*(0x[0-9a-fA-F]{40})`)
)

const (
	// clockSkewAllowance tolerates client clocks running ahead of ours.
	clockSkewAllowance = 30 * time.Second
	// freshnessWindow is how long a signed message stays valid.
	freshnessWindow = 5 * time.Minute
)

// FreeformOptions controls optional freeform checks.
type FreeformOptions struct {
	// RequireTimestamp rejects messages without a parseable Timestamp line.
	RequireTimestamp bool
}

// AuthorizeFreeform verifies a personal_sign signature over a base64-encoded
// human-readable message and the temporal/address constraints embedded in it.
// Every failure collapses to ErrUnauthorized.
func (a *Authorizer) AuthorizeFreeform(ctx context.Context, encodedMessage, signature string, expected common.Address, opts FreeformOptions) error {
	// Base64 is transport encoding only, not part of the security check.
	decoded, err := base64.StdEncoding.DecodeString(encodedMessage)
	if err != nil {
		return ErrUnauthorized
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return ErrUnauthorized
	}

	ok, err := a.verifier.Verify(ctx, expected, accounts.TextHash(decoded), sig)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug().Str("signer", expected.Hex()).Msg("freeform signature invalid")
		return ErrUnauthorized
	}

	if err := checkTimestamp(string(decoded), opts.RequireTimestamp); err != nil {
		return err
	}
	return checkEmbeddedAddress(string(decoded), expected)
}

func checkTimestamp(message string, required bool) error {
	m := timestampRe.FindStringSubmatch(message)
	if m == nil {
		if required {
			return ErrUnauthorized
		}
		return nil
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		if required {
			return ErrUnauthorized
		}
		return nil
	}

	now := time.Now().UnixMilli()
	if ts > now+clockSkewAllowance.Milliseconds() {
		return ErrUnauthorized
	}
	if now-ts > freshnessWindow.Milliseconds() {
		return ErrUnauthorized
	}
	return nil
}

func checkEmbeddedAddress(message string, expected common.Address) error {
	m := addressRe.FindStringSubmatch(message)
	if m == nil {
		return nil
	}
	if !strings.EqualFold(m[1], expected.Hex()) {
		return ErrUnauthorized
	}
	return nil
}
