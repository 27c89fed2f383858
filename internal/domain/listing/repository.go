package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Filter narrows listing queries.
type Filter struct {
	AppID         string
	SellerAddress string
	Status        Status
	Limit         int
	Offset        int
}

// Repository defines listing data access. ReserveUse and ReleaseUse are the
// only operations that touch inventory; both are single conditional updates
// so concurrent settlements cannot race past max_uses.
type Repository interface {
	Create(ctx context.Context, l *Listing) error
	GetBySlug(ctx context.Context, slug string) (*Listing, error)
	List(ctx context.Context, f Filter) ([]*Listing, error)
	Update(ctx context.Context, l *Listing) error
	Cancel(ctx context.Context, slug string) error
	ReserveUse(ctx context.Context, slug string) (bool, error)
	ReleaseUse(ctx context.Context, slug string) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates listing repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, l *Listing) error {
	query := `
		INSERT INTO listings (slug, listing_type, price_usdc, seller_address, app_id, app_name,
		                      status, max_uses, purchase_count, invite_url, app_url, access_code,
		                      description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		l.Slug,
		l.ListingType,
		l.PriceUSDC,
		l.SellerAddress,
		l.AppID,
		l.AppName,
		l.Status,
		l.MaxUses,
		l.PurchaseCount,
		l.InviteURL,
		l.AppURL,
		l.AccessCode,
		l.Description,
	)
	return err
}

func (r *repository) GetBySlug(ctx context.Context, slug string) (*Listing, error) {
	query := `SELECT * FROM listings WHERE slug = $1`
	var l Listing
	err := r.db.GetContext(ctx, &l, query, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *repository) List(ctx context.Context, f Filter) ([]*Listing, error) {
	query := `SELECT * FROM listings WHERE 1=1`
	args := []interface{}{}
	idx := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.AppID != "" {
		query += fmt.Sprintf(" AND app_id = $%d", idx)
		args = append(args, f.AppID)
		idx++
	}
	if f.SellerAddress != "" {
		query += fmt.Sprintf(" AND seller_address = $%d", idx)
		args = append(args, f.SellerAddress)
		idx++
	}

	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	var listings []*Listing
	err := r.db.SelectContext(ctx, &listings, query, args...)
	return listings, err
}

func (r *repository) Update(ctx context.Context, l *Listing) error {
	query := `
		UPDATE listings
		SET price_usdc = $2, invite_url = $3, app_url = $4, access_code = $5,
		    description = $6, max_uses = $7, updated_at = NOW()
		WHERE slug = $1 AND status = 'active'
	`
	result, err := r.db.ExecContext(ctx, query,
		l.Slug,
		l.PriceUSDC,
		l.InviteURL,
		l.AppURL,
		l.AccessCode,
		l.Description,
		l.MaxUses,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrListingNotActive
	}
	return nil
}

// Cancel soft-deletes the listing; the row is kept so buyer reveals of past
// transactions keep working.
func (r *repository) Cancel(ctx context.Context, slug string) error {
	query := `UPDATE listings SET status = 'cancelled', updated_at = NOW() WHERE slug = $1 AND status = 'active'`
	result, err := r.db.ExecContext(ctx, query, slug)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrListingNotActive
	}
	return nil
}

// ReserveUse atomically claims one unit of inventory. The guard in the WHERE
// clause is the authoritative exhaustion check; the affected-row count says
// whether the claim won.
func (r *repository) ReserveUse(ctx context.Context, slug string) (bool, error) {
	query := `
		UPDATE listings
		SET purchase_count = purchase_count + 1,
		    status = CASE WHEN max_uses != -1 AND purchase_count + 1 >= max_uses THEN 'sold' ELSE status END,
		    updated_at = NOW()
		WHERE slug = $1
		  AND status = 'active'
		  AND (max_uses = -1 OR purchase_count < max_uses)
	`
	result, err := r.db.ExecContext(ctx, query, slug)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ReleaseUse returns a reserved unit after a definite settlement failure.
func (r *repository) ReleaseUse(ctx context.Context, slug string) error {
	query := `
		UPDATE listings
		SET purchase_count = GREATEST(purchase_count - 1, 0),
		    status = CASE WHEN status = 'sold' THEN 'active' ELSE status END,
		    updated_at = NOW()
		WHERE slug = $1 AND status IN ('active', 'sold')
	`
	_, err := r.db.ExecContext(ctx, query, slug)
	return err
}
