package listing

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/apoorvlathey/invite-markets-api/internal/pkg/signedaction"
)

// Service handles listing business logic. Every mutation is gated by an
// EIP-712 signed action; the seller reveal path by a freeform signature.
type Service struct {
	repo       Repository
	authorizer *signedaction.Authorizer
}

// NewService creates listing service
func NewService(repo Repository, authorizer *signedaction.Authorizer) *Service {
	return &Service{repo: repo, authorizer: authorizer}
}

const slugCreateAttempts = 3

// Create inserts a new listing after verifying the seller's CreateListing
// signature. The slug is generated server-side.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Listing, error) {
	seller := common.HexToAddress(req.SellerAddress)

	action := signedaction.CreateListing{
		ListingType:   req.ListingType,
		InviteURL:     req.InviteURL,
		AppURL:        req.AppURL,
		AccessCode:    req.AccessCode,
		PriceUSDC:     req.PriceUSDC,
		SellerAddress: seller,
		AppID:         req.AppID,
		AppName:       req.AppName,
		Description:   req.Description,
		MaxUses:       req.MaxUses,
		Nonce:         req.Nonce,
	}
	if err := s.authorizer.AuthorizeTyped(ctx, action, req.Signature, seller); err != nil {
		return nil, err
	}

	l := &Listing{
		ListingType:   Type(req.ListingType),
		PriceUSDC:     req.PriceUSDC,
		SellerAddress: strings.ToLower(req.SellerAddress),
		AppID:         req.AppID,
		AppName:       req.AppName,
		Status:        StatusActive,
		MaxUses:       normalizeMaxUses(req.MaxUses),
		PurchaseCount: 0,
		InviteURL:     nullString(req.InviteURL),
		AppURL:        nullString(req.AppURL),
		AccessCode:    nullString(req.AccessCode),
		Description:   nullString(req.Description),
	}
	if _, err := l.Secret(); err != nil {
		return nil, ErrMissingSecret
	}

	for i := 0; i < slugCreateAttempts; i++ {
		slug, err := newSlug()
		if err != nil {
			return nil, err
		}
		l.Slug = slug
		err = s.repo.Create(ctx, l)
		if err == nil {
			return l, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		log.Warn().Str("slug", slug).Msg("slug collision, retrying")
	}
	return nil, ErrSlugExhausted
}

// GetBySlug returns a listing or ErrListingNotFound.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Listing, error) {
	l, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrListingNotFound
	}
	return l, nil
}

// List returns listings matching the filter. Callers get public views only.
func (s *Service) List(ctx context.Context, f Filter) ([]*Listing, error) {
	f.SellerAddress = strings.ToLower(f.SellerAddress)
	return s.repo.List(ctx, f)
}

// Update applies a seller's signed mutation to their own listing. Omitted
// optional fields keep their stored values; max_uses 0 means unchanged.
func (s *Service) Update(ctx context.Context, slug string, req UpdateRequest) (*Listing, error) {
	l, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	seller := common.HexToAddress(req.SellerAddress)
	if !strings.EqualFold(l.SellerAddress, req.SellerAddress) {
		return nil, signedaction.ErrUnauthorized
	}

	action := signedaction.UpdateListing{
		Slug:          slug,
		InviteURL:     req.InviteURL,
		AppURL:        req.AppURL,
		AccessCode:    req.AccessCode,
		PriceUSDC:     req.PriceUSDC,
		Description:   req.Description,
		MaxUses:       req.MaxUses,
		SellerAddress: seller,
		Nonce:         req.Nonce,
	}
	if err := s.authorizer.AuthorizeTyped(ctx, action, req.Signature, seller); err != nil {
		return nil, err
	}

	l.PriceUSDC = req.PriceUSDC
	if req.MaxUses != 0 {
		l.MaxUses = req.MaxUses
	}
	if req.InviteURL != "" {
		l.InviteURL = nullString(req.InviteURL)
	}
	if req.AppURL != "" {
		l.AppURL = nullString(req.AppURL)
	}
	if req.AccessCode != "" {
		l.AccessCode = nullString(req.AccessCode)
	}
	if req.Description != "" {
		l.Description = nullString(req.Description)
	}

	if _, err := l.Secret(); err != nil {
		return nil, ErrMissingSecret
	}
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Delete cancels a listing after verifying the seller's signed DeleteListing.
// The row survives as status=cancelled.
func (s *Service) Delete(ctx context.Context, slug string, req DeleteRequest) error {
	l, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}

	seller := common.HexToAddress(req.SellerAddress)
	if !strings.EqualFold(l.SellerAddress, req.SellerAddress) {
		return signedaction.ErrUnauthorized
	}

	action := signedaction.DeleteListing{
		Slug:          slug,
		SellerAddress: seller,
		Nonce:         req.Nonce,
	}
	if err := s.authorizer.AuthorizeTyped(ctx, action, req.Signature, seller); err != nil {
		return err
	}

	return s.repo.Cancel(ctx, slug)
}

// RevealToSeller returns the listing's secret payload to its verified seller.
// Used by the edit session on the client.
func (s *Service) RevealToSeller(ctx context.Context, slug string, req SecretRequest) (SecretPayload, error) {
	l, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(l.SellerAddress, req.Address) {
		return nil, signedaction.ErrUnauthorized
	}

	err = s.authorizer.AuthorizeFreeform(ctx, req.Message, req.Signature,
		common.HexToAddress(l.SellerAddress), signedaction.FreeformOptions{RequireTimestamp: true})
	if err != nil {
		return nil, err
	}
	return l.Secret()
}

func normalizeMaxUses(maxUses int) int {
	if maxUses == 0 {
		return 1
	}
	return maxUses
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}
