package purchase

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines transaction data access. Transactions are append-only;
// there is no update or delete.
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListByBuyer(ctx context.Context, buyerAddress string, limit, offset int) ([]*Transaction, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates transaction repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, t *Transaction) error {
	query := `
		INSERT INTO transactions (id, listing_slug, seller_address, buyer_address, price_usdc, app_id, chain_id, tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.ListingSlug,
		t.SellerAddress,
		t.BuyerAddress,
		t.PriceUSDC,
		t.AppID,
		t.ChainID,
		t.TxHash,
	)
	return err
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	query := `SELECT * FROM transactions WHERE id = $1`
	var t Transaction
	err := r.db.GetContext(ctx, &t, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerAddress string, limit, offset int) ([]*Transaction, error) {
	query := `
		SELECT * FROM transactions
		WHERE buyer_address = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var txs []*Transaction
	err := r.db.SelectContext(ctx, &txs, query, strings.ToLower(buyerAddress), limit, offset)
	return txs, err
}
