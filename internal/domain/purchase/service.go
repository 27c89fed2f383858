package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/apoorvlathey/invite-markets-api/internal/domain/listing"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/signedaction"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/x402"
)

// Facilitator settles x402 payment proofs. *x402.FacilitatorClient is the
// production implementation.
type Facilitator interface {
	Settle(ctx context.Context, paymentHeader string, requirements x402.PaymentRequirements) (*x402.SettleResponse, error)
}

// Guard deduplicates concurrent settlements of the same payment proof.
// Implemented by *x402.SettlementGuard; nil disables the check.
type Guard interface {
	Begin(ctx context.Context, paymentHeader string) (bool, error)
	Clear(ctx context.Context, paymentHeader string) error
	Complete(ctx context.Context, paymentHeader string) error
}

// ChainConfig is the settlement-relevant chain context, threaded in at
// startup rather than read from a global.
type ChainConfig struct {
	ChainID           int64
	Network           string
	USDCAddress       string
	PublicBaseURL     string
	MaxTimeoutSeconds int
}

// Service mediates payment-gated purchases and the buyer reveal path.
type Service struct {
	listings     listing.Repository
	transactions Repository
	facilitator  Facilitator
	authorizer   *signedaction.Authorizer
	guard        Guard
	chain        ChainConfig
}

// NewService creates purchase service. guard may be nil.
func NewService(listings listing.Repository, transactions Repository, facilitator Facilitator, authorizer *signedaction.Authorizer, guard Guard, chain ChainConfig) *Service {
	return &Service{
		listings:     listings,
		transactions: transactions,
		facilitator:  facilitator,
		authorizer:   authorizer,
		guard:        guard,
		chain:        chain,
	}
}

// PaymentChallenge builds the 402 challenge for a listing, after the same
// availability checks the settlement path performs. No payment is attempted.
func (s *Service) PaymentChallenge(ctx context.Context, slug string) (*x402.PaymentRequiredResponse, error) {
	l, err := s.loadAvailable(ctx, slug)
	if err != nil {
		return nil, err
	}
	reqs, err := s.requirementsFor(l)
	if err != nil {
		return nil, err
	}
	return &x402.PaymentRequiredResponse{
		X402Version: x402.X402Version,
		Error:       "X-PAYMENT header is required",
		Accepts:     []x402.PaymentRequirements{reqs},
	}, nil
}

// Settle gates release of the listing secret behind proof of payment,
// exactly once per paid unit of inventory. Inventory is reserved before the
// facilitator is contacted so a lost race never charges the buyer.
func (s *Service) Settle(ctx context.Context, slug, paymentHeader string) (listing.SecretPayload, error) {
	l, err := s.loadAvailable(ctx, slug)
	if err != nil {
		return nil, err
	}

	reqs, err := s.requirementsFor(l)
	if err != nil {
		return nil, err
	}

	// Malformed proofs are rejected locally, before any guard state or
	// inventory reservation exists to unwind.
	if _, err := x402.DecodePaymentHeader(paymentHeader); err != nil {
		return nil, err
	}

	if s.guard != nil {
		ok, gerr := s.guard.Begin(ctx, paymentHeader)
		if gerr != nil {
			// The guard is an extension; settlement proceeds without it.
			log.Warn().Err(gerr).Str("slug", slug).Msg("settlement guard unavailable")
		} else if !ok {
			return nil, ErrSettlementInFlight
		}
	}

	reserved, err := s.listings.ReserveUse(ctx, slug)
	if err != nil {
		s.clearGuard(ctx, paymentHeader)
		return nil, err
	}
	if !reserved {
		// Lost the race for the last unit; no payment was attempted.
		s.clearGuard(ctx, paymentHeader)
		return nil, listing.ErrListingNotAvailable
	}

	// A unit is reserved and payment is about to move. From here the flow
	// is detached from the request context: a client disconnect must not
	// read as a facilitator rejection, because the facilitator may already
	// have the proof and complete the payment. The facilitator client's
	// own timeout still bounds the call.
	bg := context.WithoutCancel(ctx)

	receipt, err := s.facilitator.Settle(bg, paymentHeader, reqs)
	if err != nil {
		return nil, s.settlementFailed(bg, slug, paymentHeader, err)
	}

	// Payment has been taken. Bookkeeping failures never deny the buyer
	// their purchase.
	s.record(bg, l, receipt)
	if s.guard != nil {
		if gerr := s.guard.Complete(bg, paymentHeader); gerr != nil {
			log.Warn().Err(gerr).Str("slug", slug).Msg("settlement guard complete failed")
		}
	}

	fresh, err := s.listings.GetBySlug(bg, slug)
	if err != nil || fresh == nil {
		log.Error().Err(err).Str("slug", slug).Msg("post-settlement listing reload failed")
		fresh = l
	}
	secret, err := fresh.Secret()
	if err != nil {
		log.Error().Err(err).Str("slug", slug).Msg("payment settled but secret unresolvable")
		return nil, ErrSecretUnavailable
	}
	return secret, nil
}

// settlementFailed unwinds a reservation after a facilitator error. An
// ambiguous outcome (timeout) keeps the reservation: the payment may have
// landed, and releasing would oversell.
func (s *Service) settlementFailed(ctx context.Context, slug, paymentHeader string, err error) error {
	if errors.Is(err, x402.ErrSettlementAmbiguous) {
		log.Error().Err(err).Str("slug", slug).Msg("settlement outcome ambiguous, reservation kept for reconciliation")
		return err
	}

	if rerr := s.listings.ReleaseUse(ctx, slug); rerr != nil {
		log.Error().Err(rerr).Str("slug", slug).Msg("failed to release reserved inventory")
	}
	s.clearGuard(ctx, paymentHeader)

	var pass *x402.PassthroughError
	if errors.As(err, &pass) {
		return err
	}
	if errors.Is(err, x402.ErrInvalidPaymentHeader) {
		return err
	}
	return fmt.Errorf("settlement failed: %w", err)
}

// record inserts the transaction using the payer from the facilitator
// receipt. Insert failure is a bookkeeping gap, not grounds to deny the
// buyer; it is logged for manual reconciliation.
func (s *Service) record(ctx context.Context, l *listing.Listing, receipt *x402.SettleResponse) {
	t := &Transaction{
		ID:            uuid.New(),
		ListingSlug:   l.Slug,
		SellerAddress: l.SellerAddress,
		BuyerAddress:  strings.ToLower(receipt.Payer),
		PriceUSDC:     l.PriceUSDC,
		AppID:         l.AppID,
		ChainID:       s.chain.ChainID,
		TxHash:        receipt.Transaction,
	}
	if err := s.transactions.Create(ctx, t); err != nil {
		log.Error().Err(err).
			Str("slug", l.Slug).
			Str("payer", receipt.Payer).
			Str("tx_hash", receipt.Transaction).
			Msg("transaction record insert failed, manual reconciliation needed")
	}
}

// Reveal re-derives a buyer's entitlement from their transaction and a fresh
// freeform signature. Purely an authorization-gated read.
func (s *Service) Reveal(ctx context.Context, transactionID, message, signature string) (listing.SecretPayload, error) {
	id, err := uuid.Parse(transactionID)
	if err != nil {
		return nil, ErrTransactionNotFound
	}
	t, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	if t.ChainID != s.chain.ChainID {
		return nil, ErrTransactionNotFound
	}

	err = s.authorizer.AuthorizeFreeform(ctx, message, signature,
		common.HexToAddress(t.BuyerAddress), signedaction.FreeformOptions{RequireTimestamp: true})
	if err != nil {
		return nil, err
	}

	l, err := s.listings.GetBySlug(ctx, t.ListingSlug)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, listing.ErrListingNotFound
	}
	return l.Secret()
}

// History returns a buyer's purchase records. Secret payloads are not
// included; they require the reveal flow.
func (s *Service) History(ctx context.Context, buyerAddress string, limit, offset int) ([]*Transaction, error) {
	return s.transactions.ListByBuyer(ctx, buyerAddress, limit, offset)
}

func (s *Service) loadAvailable(ctx context.Context, slug string) (*listing.Listing, error) {
	l, err := s.listings.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, listing.ErrListingNotFound
	}
	if !l.Available() {
		return nil, listing.ErrListingNotAvailable
	}
	return l, nil
}

func (s *Service) requirementsFor(l *listing.Listing) (x402.PaymentRequirements, error) {
	resource := fmt.Sprintf("%s/api/v1/listings/%s/purchase", strings.TrimRight(s.chain.PublicBaseURL, "/"), l.Slug)
	description := fmt.Sprintf("%s access on %s", l.ListingType, l.AppName)
	return x402.BuildRequirements(x402.RequirementsConfig{
		Network:           s.chain.Network,
		Asset:             s.chain.USDCAddress,
		MaxTimeoutSeconds: s.chain.MaxTimeoutSeconds,
	}, resource, description, l.SellerAddress, l.PriceUSDC)
}

func (s *Service) clearGuard(ctx context.Context, paymentHeader string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Clear(ctx, paymentHeader); err != nil {
		log.Warn().Err(err).Msg("settlement guard clear failed")
	}
}
