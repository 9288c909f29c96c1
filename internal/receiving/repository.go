package receiving

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbook-app/stockbook/internal/platform/db"
)

// Repository persists purchase items in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `
	id, invoice_id, invoice_number, invoice_item_id, product_id, has_symbol,
	piece, weight, piece_without, weight_without, piece_with, weight_with,
	status, inventory_applied_at, production_run_id, created_at, updated_at`

// CreateBatch inserts the extracted items on the caller's querier so they
// commit together with the purchase invoice.
func (r *Repository) CreateBatch(ctx context.Context, q db.Querier, items []PurchaseItem) error {
	for _, item := range items {
		_, err := q.Exec(ctx, `
			INSERT INTO purchase_items (
				invoice_id, invoice_number, invoice_item_id, product_id, has_symbol,
				piece, weight, piece_without, weight_without, piece_with, weight_with,
				status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`,
			item.InvoiceID, item.InvoiceNumber, item.InvoiceItemID, item.ProductID, item.HasSymbol,
			item.Piece, item.Weight, item.PieceWithout, item.WeightWithout, item.PieceWith, item.WeightWith,
			item.Status,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Get loads one purchase item.
func (r *Repository) Get(ctx context.Context, id int64) (PurchaseItem, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM purchase_items WHERE id = $1`, id))
}

// GetForUpdate loads one purchase item with a row lock, so a concurrent
// terminal transition on the same item waits for this one to commit. On the
// sequential fallback the lock only spans the single statement.
func (r *Repository) GetForUpdate(ctx context.Context, q db.Querier, id int64) (PurchaseItem, error) {
	return r.scanOne(q.QueryRow(ctx, `SELECT `+itemColumns+` FROM purchase_items WHERE id = $1 FOR UPDATE`, id))
}

// SetInProduction links the item to a run and moves it to in_production.
func (r *Repository) SetInProduction(ctx context.Context, q db.Querier, id int64, runID int64) error {
	tag, err := q.Exec(ctx, `
		UPDATE purchase_items
		SET status = $2, production_run_id = $3, updated_at = NOW()
		WHERE id = $1`,
		id, StatusInProduction, runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveTransition writes the fields a terminal transition owns: status, the
// applied marker and the run link.
func (r *Repository) SaveTransition(ctx context.Context, q db.Querier, item PurchaseItem) error {
	tag, err := q.Exec(ctx, `
		UPDATE purchase_items
		SET status = $2, inventory_applied_at = $3, production_run_id = $4, updated_at = NOW()
		WHERE id = $1`,
		item.ID, item.Status, item.InventoryAppliedAt, item.ProductionRunID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFilter narrows List.
type ListFilter struct {
	Status        Status
	InvoiceNumber int64
	Limit         int
	Offset        int
}

// List returns purchase items, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]PurchaseItem, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM purchase_items
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = 0 OR invoice_number = $2)
		ORDER BY id DESC
		LIMIT $3 OFFSET $4`,
		string(filter.Status), filter.InvoiceNumber, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PurchaseItem
	for rows.Next() {
		item, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) scanOne(row pgx.Row) (PurchaseItem, error) {
	var item PurchaseItem
	err := row.Scan(
		&item.ID, &item.InvoiceID, &item.InvoiceNumber, &item.InvoiceItemID, &item.ProductID, &item.HasSymbol,
		&item.Piece, &item.Weight, &item.PieceWithout, &item.WeightWithout, &item.PieceWith, &item.WeightWith,
		&item.Status, &item.InventoryAppliedAt, &item.ProductionRunID, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseItem{}, ErrNotFound
		}
		return PurchaseItem{}, err
	}
	return item, nil
}
