package production

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbook-app/stockbook/internal/platform/db"
)

// Repository persists production runs in PostgreSQL. Steps live in a jsonb
// column and are replaced wholesale on every write.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const runColumns = `
	id, product_id, has_symbol, purchase_item_id, piece, weight, barcode_text,
	steps, status, completed_at, created_at, updated_at`

// Insert stores a new run and returns its id.
func (r *Repository) Insert(ctx context.Context, run Run) (int64, error) {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO production_runs (
			product_id, has_symbol, purchase_item_id, piece, weight, barcode_text,
			steps, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`,
		run.ProductID, run.HasSymbol, run.PurchaseItemID, run.Piece, run.Weight, run.BarcodeText,
		steps, run.Status,
	).Scan(&id)
	return id, err
}

// Get loads one run.
func (r *Repository) Get(ctx context.Context, id int64) (Run, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM production_runs WHERE id = $1`, id))
}

// GetForUpdate loads one run with a row lock.
func (r *Repository) GetForUpdate(ctx context.Context, q db.Querier, id int64) (Run, error) {
	return r.scanOne(q.QueryRow(ctx, `SELECT `+runColumns+` FROM production_runs WHERE id = $1 FOR UPDATE`, id))
}

// SaveSteps replaces the steps array.
func (r *Repository) SaveSteps(ctx context.Context, q db.Querier, id int64, steps []Step) error {
	payload, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `
		UPDATE production_runs SET steps = $2, updated_at = NOW() WHERE id = $1`,
		id, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCompleted moves the run to completed. Already-completed runs are left
// untouched; the returned count tells the caller whether this call did the
// transition.
func (r *Repository) MarkCompleted(ctx context.Context, q db.Querier, id int64) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE production_runs
		SET status = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status <> $2`,
		id, RunStatusCompleted)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListFilter narrows List.
type ListFilter struct {
	Status RunStatus
	Limit  int
	Offset int
}

// List returns runs, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Run, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM production_runs
		WHERE ($1 = '' OR status = $1)
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`,
		string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *Repository) scanOne(row pgx.Row) (Run, error) {
	var run Run
	var steps []byte
	err := row.Scan(
		&run.ID, &run.ProductID, &run.HasSymbol, &run.PurchaseItemID, &run.Piece, &run.Weight, &run.BarcodeText,
		&steps, &run.Status, &run.CompletedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, err
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &run.Steps); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}
