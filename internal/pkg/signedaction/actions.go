package signedaction

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP-712 domain shared by all listing mutations. The chain ID is bound into
// the domain so a signature for one network cannot be replayed on another.
const (
	DomainName    = "Invite Markets"
	DomainVersion = "1"
)

var eip712DomainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
}

// TypedDomain builds the EIP-712 domain for the given chain.
func TypedDomain(chainID int64) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:    DomainName,
		Version: DomainVersion,
		ChainId: math.NewHexOrDecimal256(chainID),
	}
}

// TypedAction is one EIP-712 signed listing mutation. Each action enumerates
// its exact field set; the actor address and nonce are part of the signed
// payload.
type TypedAction interface {
	PrimaryType() string
	Types() apitypes.Types
	Message() apitypes.TypedDataMessage
	Actor() common.Address
	ActionNonce() string
}

// CreateListing is the signed payload for listing creation.
type CreateListing struct {
	ListingType   string
	InviteURL     string
	AppURL        string
	AccessCode    string
	PriceUSDC     string
	SellerAddress common.Address
	AppID         string
	AppName       string
	Description   string
	MaxUses       int
	Nonce         string
}

func (CreateListing) PrimaryType() string { return "CreateListing" }

func (CreateListing) Types() apitypes.Types {
	return apitypes.Types{
		"EIP712Domain": eip712DomainType,
		"CreateListing": []apitypes.Type{
			{Name: "listingType", Type: "string"},
			{Name: "inviteUrl", Type: "string"},
			{Name: "appUrl", Type: "string"},
			{Name: "accessCode", Type: "string"},
			{Name: "priceUsdc", Type: "string"},
			{Name: "sellerAddress", Type: "address"},
			{Name: "appId", Type: "string"},
			{Name: "appName", Type: "string"},
			{Name: "description", Type: "string"},
			{Name: "maxUses", Type: "string"},
			{Name: "nonce", Type: "uint256"},
		},
	}
}

func (a CreateListing) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"listingType":   a.ListingType,
		"inviteUrl":     a.InviteURL,
		"appUrl":        a.AppURL,
		"accessCode":    a.AccessCode,
		"priceUsdc":     a.PriceUSDC,
		"sellerAddress": a.SellerAddress.Hex(),
		"appId":         a.AppID,
		"appName":       a.AppName,
		"description":   a.Description,
		"maxUses":       strconv.Itoa(a.MaxUses),
		"nonce":         a.Nonce,
	}
}

func (a CreateListing) Actor() common.Address { return a.SellerAddress }
func (a CreateListing) ActionNonce() string   { return a.Nonce }

// UpdateListing is the signed payload for mutating an existing listing.
type UpdateListing struct {
	Slug          string
	InviteURL     string
	AppURL        string
	AccessCode    string
	PriceUSDC     string
	Description   string
	MaxUses       int
	SellerAddress common.Address
	Nonce         string
}

func (UpdateListing) PrimaryType() string { return "UpdateListing" }

func (UpdateListing) Types() apitypes.Types {
	return apitypes.Types{
		"EIP712Domain": eip712DomainType,
		"UpdateListing": []apitypes.Type{
			{Name: "slug", Type: "string"},
			{Name: "inviteUrl", Type: "string"},
			{Name: "appUrl", Type: "string"},
			{Name: "accessCode", Type: "string"},
			{Name: "priceUsdc", Type: "string"},
			{Name: "description", Type: "string"},
			{Name: "maxUses", Type: "string"},
			{Name: "sellerAddress", Type: "address"},
			{Name: "nonce", Type: "uint256"},
		},
	}
}

func (a UpdateListing) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"slug":          a.Slug,
		"inviteUrl":     a.InviteURL,
		"appUrl":        a.AppURL,
		"accessCode":    a.AccessCode,
		"priceUsdc":     a.PriceUSDC,
		"description":   a.Description,
		"maxUses":       strconv.Itoa(a.MaxUses),
		"sellerAddress": a.SellerAddress.Hex(),
		"nonce":         a.Nonce,
	}
}

func (a UpdateListing) Actor() common.Address { return a.SellerAddress }
func (a UpdateListing) ActionNonce() string   { return a.Nonce }

// DeleteListing is the signed payload for cancelling a listing.
type DeleteListing struct {
	Slug          string
	SellerAddress common.Address
	Nonce         string
}

func (DeleteListing) PrimaryType() string { return "DeleteListing" }

func (DeleteListing) Types() apitypes.Types {
	return apitypes.Types{
		"EIP712Domain": eip712DomainType,
		"DeleteListing": []apitypes.Type{
			{Name: "slug", Type: "string"},
			{Name: "sellerAddress", Type: "address"},
			{Name: "nonce", Type: "uint256"},
		},
	}
}

func (a DeleteListing) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"slug":          a.Slug,
		"sellerAddress": a.SellerAddress.Hex(),
		"nonce":         a.Nonce,
	}
}

func (a DeleteListing) Actor() common.Address { return a.SellerAddress }
func (a DeleteListing) ActionNonce() string   { return a.Nonce }
