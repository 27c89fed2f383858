package signedaction

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/apoorvlathey/invite-markets-api/internal/pkg/ethsig"
)

// signFreeform mirrors a wallet's personal_sign over the raw message; the
// transport encoding is base64.
func signFreeform(t *testing.T, key *ecdsa.PrivateKey, message string) (encoded, signature string) {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	return base64.StdEncoding.EncodeToString([]byte(message)), hexutil.Encode(sig)
}

func revealMessage(addr common.Address, ts time.Time) string {
	return fmt.Sprintf("Reveal purchased secret\nAddress: %s\nTimestamp: %d", addr.Hex(), ts.UnixMilli())
}

func TestAuthorizeFreeformFresh(t *testing.T) {
	key, addr := newSigner(t)
	a := NewAuthorizer(ethsig.NewDualVerifier(nil), baseChainID, nil)

	msg, sig := signFreeform(t, key, revealMessage(addr, time.Now()))
	err := a.AuthorizeFreeform(context.Background(), msg, sig, addr, FreeformOptions{RequireTimestamp: true})
	if err != nil {
		t.Fatalf("expected fresh message to authorize, got %v", err)
	}
}

func TestAuthorizeFreeformStale(t *testing.T) {
	key, addr := newSigner(t)
	a := NewAuthorizer(ethsig.NewDualVerifier(nil), baseChainID, nil)

	msg, sig := signFreeform(t, key, revealMessage(addr, time.Now().Add(-6*time.Minute)))
	err := a.AuthorizeFreeform(context.Background(), msg, sig, addr, FreeformOptions{RequireTimestamp: true})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected stale message to be unauthorized, got %v", err)
	}
}

func TestAuthorizeFreeformNearExpiryStillValid(t *testing.T) {
	key, addr := newSigner(t)
	a := NewAuthorizer(ethsig.NewDualVerifier(nil), baseChainID, nil)

	msg, sig := signFreeform(t, key, revealMessage(addr, time.Now().Add(-4*time.Minute)))
	err := a.AuthorizeFreeform(context.Background(), msg, sig, addr, FreeformOptions{RequireTimestamp: true})
	if err != nil {
		t.Fatalf("expected 4-minute-old message to authorize, got %v", err)
	}
}

func TestAuthorizeFreeformFutureWithinSkew(t *testing.T) {
	key, addr := newSigner(t)
	a := NewAuthorizer(ethsig.NewDualVerifier(nil), baseChainID, nil)

	msg, sig := signFreeform(t, key, revealMessage(addr, time.Now().Add(20*time.Second)))
	err := a.AuthorizeFreeform(context.Background(), msg, sig, addr, FreeformOptions{RequireTimestamp: true})
	if err != nil {
		t.Fatalf("expected slightly-ahead clock to be tolerated, got %v", err)
	}
}

func TestAuthorizeFreeformFutureBeyondSkew(t *testing.T) {
	key, addr := newSigner(t)
	a := NewAuthorizer(ethsig.NewDualVerifier(nil), baseChainID, nil)

	msg, sig := signFreeform(t, key, revealMessage(addr, time.Now().Add(2*time.Minute)))
	err := a.AuthorizeFreeform(context.Background(), msg, sig, addr, FreeformOptions{RequireTimestamp: true})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected far-future timestamp to be unauthorized, got %v", err)
	}
}

func TestAuthorizeFreeformMissingTimestampRequired(t *testing.T) {
	key, addr := newSigner(t)
	a := NewAuthorizer(ethsig.NewDualVerifier(nil), baseChainID, nil)

	msg, sig := signFreeform(t, key, "Reveal purchased secret\nAddress: "+addr.Hex())
	err := a.AuthorizeFreeform(context.Background(), msg, sig, addr, FreeformOptions{RequireTimestamp: true})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected missing timestamp to be unauthorized, got %v", err)
	}
}

func TestAuthorizeFreeformMissingTimestampOptional(t *testing.T) {
	key, addr := newSigner(t)
	a := NewAuthorizer(ethsig.NewDualVerifier(nil), baseChainID, nil)

	msg, sig := signFreeform(t, key, "Prove wallet ownership\nAddress: "+addr.Hex())
	err := a.AuthorizeFreeform(context.Background(), msg, sig, addr, FreeformOptions{})
	if err != nil {
		t.Fatalf("expected timestamp-free message to authorize when optional, got %v", err)
	}
}

func TestAuthorizeFreeformEmbeddedAddressMismatch(t *testing.T) {
	key, addr := newSigner(t)
	_, other := newSigner(t)
	a := NewAuthorizer(ethsig.NewDualVerifier(nil), baseChainID, nil)

	// Signed by addr but claims to act for a different embedded address.
	msg, sig := signFreeform(t, key, revealMessage(other, time.Now()))
	err := a.AuthorizeFreeform(context.Background(), msg, sig, addr, FreeformOptions{RequireTimestamp: true})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected embedded address mismatch to be unauthorized, got %v", err)
	}
}

func TestAuthorizeFreeformWrongSigner(t *testing.T) {
	key, _ := newSigner(t)
	_, victim := newSigner(t)
	a := NewAuthorizer(ethsig.NewDualVerifier(nil), baseChainID, nil)

	msg, sig := signFreeform(t, key, revealMessage(victim, time.Now()))
	err := a.AuthorizeFreeform(context.Background(), msg, sig, victim, FreeformOptions{RequireTimestamp: true})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected wrong signer to be unauthorized, got %v", err)
	}
}

func TestAuthorizeFreeformBadBase64(t *testing.T) {
	_, addr := newSigner(t)
	a := NewAuthorizer(ethsig.NewDualVerifier(nil), baseChainID, nil)

	err := a.AuthorizeFreeform(context.Background(), "%%%not-base64%%%", "0x00", addr, FreeformOptions{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected invalid base64 to be unauthorized, got %v", err)
	}
}
