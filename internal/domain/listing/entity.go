package listing

import (
	"database/sql"
	"fmt"
	"time"
)

// Type discriminates what a listing sells.
type Type string

const (
	TypeInviteLink Type = "invite_link"
	TypeAccessCode Type = "access_code"
)

// Status represents listing lifecycle state. Valid transitions are
// active -> sold (inventory exhausted) and active -> cancelled (signed
// delete); listings are never hard-deleted.
type Status string

const (
	StatusActive    Status = "active"
	StatusSold      Status = "sold"
	StatusCancelled Status = "cancelled"
)

// UnlimitedUses marks a listing with no inventory cap.
const UnlimitedUses = -1

// Listing is a sale offer created by a seller. Secret columns are never
// serialized directly; they leave the server only through SecretPayload.
type Listing struct {
	Slug          string         `db:"slug" json:"slug"`
	ListingType   Type           `db:"listing_type" json:"listing_type"`
	PriceUSDC     string         `db:"price_usdc" json:"price_usdc"`
	SellerAddress string         `db:"seller_address" json:"seller_address"`
	AppID         string         `db:"app_id" json:"app_id"`
	AppName       string         `db:"app_name" json:"app_name"`
	Status        Status         `db:"status" json:"status"`
	MaxUses       int            `db:"max_uses" json:"max_uses"`
	PurchaseCount int            `db:"purchase_count" json:"purchase_count"`
	InviteURL     sql.NullString `db:"invite_url" json:"-"`
	AppURL        sql.NullString `db:"app_url" json:"-"`
	AccessCode    sql.NullString `db:"access_code" json:"-"`
	Description   sql.NullString `db:"description" json:"-"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Available reports whether the listing can still be purchased.
func (l *Listing) Available() bool {
	if l.Status != StatusActive {
		return false
	}
	return l.MaxUses == UnlimitedUses || l.PurchaseCount < l.MaxUses
}

// SecretPayload is the type-tagged secret released to a verified buyer or the
// seller. Exactly one variant exists per listing type.
type SecretPayload interface {
	secretPayload()
}

// InviteLinkSecret is the payload for invite_link listings.
type InviteLinkSecret struct {
	ListingType Type   `json:"listingType"`
	InviteURL   string `json:"inviteUrl"`
}

func (InviteLinkSecret) secretPayload() {}

// AccessCodeSecret is the payload for access_code listings. AppURL is public
// on its own; the access code is not.
type AccessCodeSecret struct {
	ListingType Type   `json:"listingType"`
	AppURL      string `json:"appUrl"`
	AccessCode  string `json:"accessCode"`
}

func (AccessCodeSecret) secretPayload() {}

// Secret returns the listing's secret payload, matched exhaustively on the
// listing type.
func (l *Listing) Secret() (SecretPayload, error) {
	switch l.ListingType {
	case TypeInviteLink:
		if !l.InviteURL.Valid || l.InviteURL.String == "" {
			return nil, fmt.Errorf("listing %s has no invite url", l.Slug)
		}
		return InviteLinkSecret{ListingType: TypeInviteLink, InviteURL: l.InviteURL.String}, nil
	case TypeAccessCode:
		if !l.AccessCode.Valid || l.AccessCode.String == "" {
			return nil, fmt.Errorf("listing %s has no access code", l.Slug)
		}
		return AccessCodeSecret{
			ListingType: TypeAccessCode,
			AppURL:      l.AppURL.String,
			AccessCode:  l.AccessCode.String,
		}, nil
	default:
		return nil, fmt.Errorf("listing %s has unknown type %q", l.Slug, l.ListingType)
	}
}
