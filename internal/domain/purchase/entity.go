package purchase

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is the immutable record of one completed purchase. The buyer
// address comes exclusively from the facilitator's settlement receipt.
type Transaction struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ListingSlug   string    `db:"listing_slug" json:"listing_slug"`
	SellerAddress string    `db:"seller_address" json:"seller_address"`
	BuyerAddress  string    `db:"buyer_address" json:"buyer_address"`
	PriceUSDC     string    `db:"price_usdc" json:"price_usdc"`
	AppID         string    `db:"app_id" json:"app_id"`
	ChainID       int64     `db:"chain_id" json:"chain_id"`
	TxHash        string    `db:"tx_hash" json:"tx_hash,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
