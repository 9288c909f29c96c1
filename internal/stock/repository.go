package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbook-app/stockbook/internal/platform/db"
)

// Repository persists stock rows in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const applyDeltaSQL = `
INSERT INTO stock_rows (product_id, with_symbol, piece_qty, weight_qty, last_applied_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (product_id, with_symbol)
DO UPDATE SET piece_qty = stock_rows.piece_qty + EXCLUDED.piece_qty,
              weight_qty = stock_rows.weight_qty + EXCLUDED.weight_qty,
              last_applied_at = NOW()`

// ApplyDelta performs the atomic upsert-increment for one key. The single
// statement is the atomicity boundary; no caller reads then writes quantities.
func (r *Repository) ApplyDelta(ctx context.Context, key VariantKey, delta Delta) error {
	return r.ApplyDeltaIn(ctx, r.pool, key, delta)
}

// ApplyDeltaIn is ApplyDelta running on a caller-provided querier, used when
// the increment must commit or roll back together with other writes.
func (r *Repository) ApplyDeltaIn(ctx context.Context, q db.Querier, key VariantKey, delta Delta) error {
	_, err := q.Exec(ctx, applyDeltaSQL, key.ProductID, key.WithSymbol, delta.Piece, delta.Weight)
	return err
}

// GetRow returns the ledger row for the key.
func (r *Repository) GetRow(ctx context.Context, key VariantKey) (Row, error) {
	var row Row
	err := r.pool.QueryRow(ctx, `
		SELECT product_id, with_symbol, piece_qty, weight_qty, last_applied_at
		FROM stock_rows WHERE product_id = $1 AND with_symbol = $2`,
		key.ProductID, key.WithSymbol,
	).Scan(&row.ProductID, &row.WithSymbol, &row.PieceQty, &row.WeightQty, &row.LastAppliedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, ErrRowNotFound
		}
		return Row{}, err
	}
	return row, nil
}

// ListRows returns ledger rows, optionally scoped to one product.
func (r *Repository) ListRows(ctx context.Context, productID int64) ([]Row, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, with_symbol, piece_qty, weight_qty, last_applied_at
		FROM stock_rows
		WHERE ($1 = 0 OR product_id = $1)
		ORDER BY product_id, with_symbol`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ProductID, &row.WithSymbol, &row.PieceQty, &row.WeightQty, &row.LastAppliedAt); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
