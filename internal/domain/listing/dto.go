package listing

import "time"

// CreateRequest is the body for POST /listings. The signature covers every
// field except itself, typed per the CreateListing EIP-712 schema.
type CreateRequest struct {
	ListingType   string `json:"listing_type" validate:"required,listing_type"`
	InviteURL     string `json:"invite_url" validate:"omitempty,url,max=2000"`
	AppURL        string `json:"app_url" validate:"omitempty,url,max=2000"`
	AccessCode    string `json:"access_code" validate:"omitempty,max=500"`
	PriceUSDC     string `json:"price_usdc" validate:"required,usdc_amount"`
	SellerAddress string `json:"seller_address" validate:"required,eth_address"`
	AppID         string `json:"app_id" validate:"required,max=100"`
	AppName       string `json:"app_name" validate:"required,max=200"`
	Description   string `json:"description" validate:"omitempty,max=2000"`
	MaxUses       int    `json:"max_uses" validate:"omitempty,gte=-1"`
	Nonce         string `json:"nonce" validate:"required,number"`
	Signature     string `json:"signature" validate:"required"`
}

// UpdateRequest is the body for PUT /listings/{slug}.
type UpdateRequest struct {
	InviteURL     string `json:"invite_url" validate:"omitempty,url,max=2000"`
	AppURL        string `json:"app_url" validate:"omitempty,url,max=2000"`
	AccessCode    string `json:"access_code" validate:"omitempty,max=500"`
	PriceUSDC     string `json:"price_usdc" validate:"required,usdc_amount"`
	Description   string `json:"description" validate:"omitempty,max=2000"`
	MaxUses       int    `json:"max_uses" validate:"omitempty,gte=-1"`
	SellerAddress string `json:"seller_address" validate:"required,eth_address"`
	Nonce         string `json:"nonce" validate:"required,number"`
	Signature     string `json:"signature" validate:"required"`
}

// DeleteRequest is the body for DELETE /listings/{slug}.
type DeleteRequest struct {
	SellerAddress string `json:"seller_address" validate:"required,eth_address"`
	Nonce         string `json:"nonce" validate:"required,number"`
	Signature     string `json:"signature" validate:"required"`
}

// SecretRequest is the body for POST /listings/{slug}/secret (seller-side
// reveal, freeform signed message).
type SecretRequest struct {
	Address   string `json:"address" validate:"required,eth_address"`
	Message   string `json:"message" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// PublicView is the listing projection safe for any requester. Secret fields
// are never present; app_url is public for access_code listings.
type PublicView struct {
	Slug          string    `json:"slug"`
	ListingType   Type      `json:"listing_type"`
	PriceUSDC     string    `json:"price_usdc"`
	SellerAddress string    `json:"seller_address"`
	AppID         string    `json:"app_id"`
	AppName       string    `json:"app_name"`
	Status        Status    `json:"status"`
	MaxUses       int       `json:"max_uses"`
	PurchaseCount int       `json:"purchase_count"`
	AppURL        string    `json:"app_url,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ToPublicView strips secrets from a listing for public reads.
func ToPublicView(l *Listing) PublicView {
	v := PublicView{
		Slug:          l.Slug,
		ListingType:   l.ListingType,
		PriceUSDC:     l.PriceUSDC,
		SellerAddress: l.SellerAddress,
		AppID:         l.AppID,
		AppName:       l.AppName,
		Status:        l.Status,
		MaxUses:       l.MaxUses,
		PurchaseCount: l.PurchaseCount,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	if l.ListingType == TypeAccessCode && l.AppURL.Valid {
		v.AppURL = l.AppURL.String
	}
	if l.Description.Valid {
		v.Description = l.Description.String
	}
	return v
}

// ToPublicViews maps a slice of listings.
func ToPublicViews(ls []*Listing) []PublicView {
	out := make([]PublicView, 0, len(ls))
	for _, l := range ls {
		out = append(out, ToPublicView(l))
	}
	return out
}
