package listing

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/apoorvlathey/invite-markets-api/internal/pkg/ethsig"
	"github.com/apoorvlathey/invite-markets-api/internal/pkg/signedaction"
)

const testChainID = 8453

type memRepo struct {
	mu    sync.Mutex
	items map[string]*Listing
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[string]*Listing{}}
}

func (r *memRepo) Create(ctx context.Context, l *Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[l.Slug]; ok {
		return errors.New(`duplicate key value violates unique constraint "listings_pkey"`)
	}
	cp := *l
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.items[l.Slug] = &cp
	return nil
}

func (r *memRepo) GetBySlug(ctx context.Context, slug string) (*Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.items[slug]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *memRepo) List(ctx context.Context, f Filter) ([]*Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Listing
	for _, l := range r.items {
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.AppID != "" && l.AppID != f.AppID {
			continue
		}
		if f.SellerAddress != "" && l.SellerAddress != f.SellerAddress {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRepo) Update(ctx context.Context, l *Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[l.Slug]
	if !ok || cur.Status != StatusActive {
		return ErrListingNotActive
	}
	cur.PriceUSDC = l.PriceUSDC
	cur.InviteURL = l.InviteURL
	cur.AppURL = l.AppURL
	cur.AccessCode = l.AccessCode
	cur.Description = l.Description
	cur.MaxUses = l.MaxUses
	cur.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) Cancel(ctx context.Context, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[slug]
	if !ok || cur.Status != StatusActive {
		return ErrListingNotActive
	}
	cur.Status = StatusCancelled
	return nil
}

func (r *memRepo) ReserveUse(ctx context.Context, slug string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[slug]
	if !ok || cur.Status != StatusActive {
		return false, nil
	}
	if cur.MaxUses != UnlimitedUses && cur.PurchaseCount >= cur.MaxUses {
		return false, nil
	}
	cur.PurchaseCount++
	if cur.MaxUses != UnlimitedUses && cur.PurchaseCount >= cur.MaxUses {
		cur.Status = StatusSold
	}
	return true, nil
}

func (r *memRepo) ReleaseUse(ctx context.Context, slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[slug]
	if !ok {
		return nil
	}
	if cur.PurchaseCount > 0 {
		cur.PurchaseCount--
	}
	if cur.Status == StatusSold {
		cur.Status = StatusActive
	}
	return nil
}

func newSellerKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func signAction(t *testing.T, key *ecdsa.PrivateKey, action signedaction.TypedAction) string {
	t.Helper()
	typedData := apitypes.TypedData{
		Types:       action.Types(),
		PrimaryType: action.PrimaryType(),
		Domain:      signedaction.TypedDomain(testChainID),
		Message:     action.Message(),
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		t.Fatalf("typed data hash: %v", err)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig)
}

func newTestService(repo Repository) *Service {
	authorizer := signedaction.NewAuthorizer(ethsig.NewDualVerifier(nil), testChainID, nil)
	return NewService(repo, authorizer)
}

func signedCreateRequest(t *testing.T, key *ecdsa.PrivateKey, seller common.Address) CreateRequest {
	req := CreateRequest{
		ListingType:   string(TypeInviteLink),
		InviteURL:     "https://discord.gg/abc123",
		PriceUSDC:     "1.50",
		SellerAddress: seller.Hex(),
		AppID:         "discord",
		AppName:       "Discord",
		Description:   "Private server",
		MaxUses:       3,
		Nonce:         "1724000000001",
	}
	req.Signature = signAction(t, key, signedaction.CreateListing{
		ListingType:   req.ListingType,
		InviteURL:     req.InviteURL,
		PriceUSDC:     req.PriceUSDC,
		SellerAddress: seller,
		AppID:         req.AppID,
		AppName:       req.AppName,
		Description:   req.Description,
		MaxUses:       req.MaxUses,
		Nonce:         req.Nonce,
	})
	return req
}

func TestCreateListingWithValidSignature(t *testing.T) {
	key, seller := newSellerKey(t)
	repo := newMemRepo()
	svc := newTestService(repo)

	l, err := svc.Create(context.Background(), signedCreateRequest(t, key, seller))
	if err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}
	if l.Slug == "" {
		t.Fatal("expected server-generated slug")
	}
	if l.SellerAddress != strings.ToLower(seller.Hex()) {
		t.Fatalf("expected lowercased seller address, got %s", l.SellerAddress)
	}
	if l.Status != StatusActive {
		t.Fatalf("expected active status, got %s", l.Status)
	}
	stored, _ := repo.GetBySlug(context.Background(), l.Slug)
	if stored == nil || stored.InviteURL.String != "https://discord.gg/abc123" {
		t.Fatal("expected secret to be persisted")
	}
}

func TestCreateListingRejectsForgedSignature(t *testing.T) {
	_, seller := newSellerKey(t)
	attackerKey, _ := newSellerKey(t)
	svc := newTestService(newMemRepo())

	req := signedCreateRequest(t, attackerKey, seller)
	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, signedaction.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateListingRequiresSecret(t *testing.T) {
	key, seller := newSellerKey(t)
	svc := newTestService(newMemRepo())

	req := signedCreateRequest(t, key, seller)
	req.InviteURL = ""
	req.Signature = signAction(t, key, signedaction.CreateListing{
		ListingType:   req.ListingType,
		PriceUSDC:     req.PriceUSDC,
		SellerAddress: seller,
		AppID:         req.AppID,
		AppName:       req.AppName,
		Description:   req.Description,
		MaxUses:       req.MaxUses,
		Nonce:         req.Nonce,
	})

	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestUpdateRejectsNonSeller(t *testing.T) {
	key, seller := newSellerKey(t)
	otherKey, other := newSellerKey(t)
	repo := newMemRepo()
	svc := newTestService(repo)

	created, err := svc.Create(context.Background(), signedCreateRequest(t, key, seller))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := UpdateRequest{
		PriceUSDC:     "0.01",
		SellerAddress: other.Hex(),
		MaxUses:       created.MaxUses,
		Nonce:         "2",
	}
	req.Signature = signAction(t, otherKey, signedaction.UpdateListing{
		Slug:          created.Slug,
		PriceUSDC:     req.PriceUSDC,
		MaxUses:       req.MaxUses,
		SellerAddress: other,
		Nonce:         req.Nonce,
	})

	_, err = svc.Update(context.Background(), created.Slug, req)
	if !errors.Is(err, signedaction.ErrUnauthorized) {
		t.Fatalf("expected non-seller update to be unauthorized, got %v", err)
	}
}

func TestUpdateBySellerApplies(t *testing.T) {
	key, seller := newSellerKey(t)
	repo := newMemRepo()
	svc := newTestService(repo)

	created, err := svc.Create(context.Background(), signedCreateRequest(t, key, seller))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := UpdateRequest{
		PriceUSDC:     "2.00",
		Description:   "Updated",
		SellerAddress: seller.Hex(),
		MaxUses:       5,
		Nonce:         "3",
	}
	req.Signature = signAction(t, key, signedaction.UpdateListing{
		Slug:          created.Slug,
		PriceUSDC:     req.PriceUSDC,
		Description:   req.Description,
		MaxUses:       req.MaxUses,
		SellerAddress: seller,
		Nonce:         req.Nonce,
	})

	updated, err := svc.Update(context.Background(), created.Slug, req)
	if err != nil {
		t.Fatalf("expected update to succeed, got %v", err)
	}
	if updated.PriceUSDC != "2.00" || updated.MaxUses != 5 {
		t.Fatalf("update not applied: %+v", updated)
	}
	// Omitted secret fields keep their previous value.
	if updated.InviteURL.String != "https://discord.gg/abc123" {
		t.Fatalf("expected invite url preserved, got %q", updated.InviteURL.String)
	}
}

func TestUpdatePriceOnlyPreservesOtherFields(t *testing.T) {
	key, seller := newSellerKey(t)
	repo := newMemRepo()
	svc := newTestService(repo)

	req := signedCreateRequest(t, key, seller)
	req.MaxUses = UnlimitedUses
	req.Signature = signAction(t, key, signedaction.CreateListing{
		ListingType:   req.ListingType,
		InviteURL:     req.InviteURL,
		PriceUSDC:     req.PriceUSDC,
		SellerAddress: seller,
		AppID:         req.AppID,
		AppName:       req.AppName,
		Description:   req.Description,
		MaxUses:       req.MaxUses,
		Nonce:         req.Nonce,
	})
	created, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	upd := UpdateRequest{
		PriceUSDC:     "9.99",
		SellerAddress: seller.Hex(),
		Nonce:         "8",
	}
	upd.Signature = signAction(t, key, signedaction.UpdateListing{
		Slug:          created.Slug,
		PriceUSDC:     upd.PriceUSDC,
		SellerAddress: seller,
		Nonce:         upd.Nonce,
	})

	updated, err := svc.Update(context.Background(), created.Slug, upd)
	if err != nil {
		t.Fatalf("expected price-only update to succeed, got %v", err)
	}
	if updated.PriceUSDC != "9.99" {
		t.Fatalf("price not applied: %+v", updated)
	}
	if updated.MaxUses != UnlimitedUses {
		t.Fatalf("omitted max_uses must keep the stored value, got %d", updated.MaxUses)
	}
	if updated.Description.String != "Private server" {
		t.Fatalf("omitted description must keep the stored value, got %q", updated.Description.String)
	}
}

func TestCreateDefaultsMaxUsesToOne(t *testing.T) {
	key, seller := newSellerKey(t)
	svc := newTestService(newMemRepo())

	req := signedCreateRequest(t, key, seller)
	req.MaxUses = 0
	req.Signature = signAction(t, key, signedaction.CreateListing{
		ListingType:   req.ListingType,
		InviteURL:     req.InviteURL,
		PriceUSDC:     req.PriceUSDC,
		SellerAddress: seller,
		AppID:         req.AppID,
		AppName:       req.AppName,
		Description:   req.Description,
		Nonce:         req.Nonce,
	})

	created, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.MaxUses != 1 {
		t.Fatalf("expected max_uses to default to 1, got %d", created.MaxUses)
	}
}

func TestDeleteCancelsListing(t *testing.T) {
	key, seller := newSellerKey(t)
	repo := newMemRepo()
	svc := newTestService(repo)

	created, err := svc.Create(context.Background(), signedCreateRequest(t, key, seller))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := DeleteRequest{SellerAddress: seller.Hex(), Nonce: "4"}
	req.Signature = signAction(t, key, signedaction.DeleteListing{
		Slug:          created.Slug,
		SellerAddress: seller,
		Nonce:         req.Nonce,
	})

	if err := svc.Delete(context.Background(), created.Slug, req); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	stored, _ := repo.GetBySlug(context.Background(), created.Slug)
	if stored.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", stored.Status)
	}
}

func TestRevealToSellerWithFreshSignature(t *testing.T) {
	key, seller := newSellerKey(t)
	repo := newMemRepo()
	svc := newTestService(repo)

	created, err := svc.Create(context.Background(), signedCreateRequest(t, key, seller))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	message := fmt.Sprintf("View listing secret\nAddress: %s\nTimestamp: %d", seller.Hex(), time.Now().UnixMilli())
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27

	secret, err := svc.RevealToSeller(context.Background(), created.Slug, SecretRequest{
		Address:   seller.Hex(),
		Message:   base64.StdEncoding.EncodeToString([]byte(message)),
		Signature: hexutil.Encode(sig),
	})
	if err != nil {
		t.Fatalf("expected seller reveal to succeed, got %v", err)
	}
	payload, ok := secret.(InviteLinkSecret)
	if !ok {
		t.Fatalf("expected InviteLinkSecret, got %T", secret)
	}
	if payload.InviteURL != "https://discord.gg/abc123" {
		t.Fatalf("unexpected secret %+v", payload)
	}
}

func TestRevealToSellerRejectsNonSeller(t *testing.T) {
	key, seller := newSellerKey(t)
	_, other := newSellerKey(t)
	repo := newMemRepo()
	svc := newTestService(repo)

	created, err := svc.Create(context.Background(), signedCreateRequest(t, key, seller))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.RevealToSeller(context.Background(), created.Slug, SecretRequest{
		Address:   other.Hex(),
		Message:   base64.StdEncoding.EncodeToString([]byte("whatever")),
		Signature: "0x00",
	})
	if !errors.Is(err, signedaction.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPublicViewOmitsSecrets(t *testing.T) {
	l := &Listing{
		Slug:          "abcd234567",
		ListingType:   TypeAccessCode,
		PriceUSDC:     "5",
		SellerAddress: "0x1111111111111111111111111111111111111111",
		AppID:         "cursor",
		AppName:       "Cursor",
		Status:        StatusActive,
		MaxUses:       1,
		AppURL:        nullString("https://cursor.com"),
		AccessCode:    nullString("SECRET-CODE"),
		InviteURL:     nullString("https://example.com/secret-invite"),
	}

	raw, err := json.Marshal(ToPublicView(l))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(raw)
	if strings.Contains(out, "SECRET-CODE") || strings.Contains(out, "secret-invite") {
		t.Fatalf("public view leaked secret: %s", out)
	}
	if !strings.Contains(out, "https://cursor.com") {
		t.Fatalf("expected app_url public for access_code listings: %s", out)
	}

	// invite_link listings keep even the app_url out of the public view.
	l.ListingType = TypeInviteLink
	raw, _ = json.Marshal(ToPublicView(l))
	if strings.Contains(string(raw), "cursor.com") {
		t.Fatalf("expected app_url hidden for invite_link listings: %s", raw)
	}
}

func TestSlugGeneration(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		slug, err := newSlug()
		if err != nil {
			t.Fatalf("newSlug: %v", err)
		}
		if len(slug) != slugLength {
			t.Fatalf("expected %d-char slug, got %q", slugLength, slug)
		}
		for _, c := range slug {
			if !strings.ContainsRune(slugAlphabet, c) {
				t.Fatalf("slug %q contains %q outside alphabet", slug, c)
			}
		}
		if seen[slug] {
			t.Fatalf("slug collision within 100 draws: %s", slug)
		}
		seen[slug] = true
	}
}
