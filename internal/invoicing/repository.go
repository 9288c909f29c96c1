package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbook-app/stockbook/internal/platform/db"
)

// Repository persists invoices in PostgreSQL. Line items live in jsonb
// columns: edits replace the arrays wholesale and the stock effect is always
// recomputed from the stored shape, so relational line tables buy nothing.
type Repository struct {
	pool   *pgxpool.Pool
	runner db.TxRunner
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, runner db.TxRunner) *Repository {
	return &Repository{pool: pool, runner: runner}
}

// WithTx runs fn under the store's transaction capability.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, q db.Querier) error) error {
	return r.runner.RunInTx(ctx, fn)
}

// NextNumber allocates the next invoice number from a single-row atomic
// counter. The increment-and-return is one statement, so concurrent creates
// never observe the same value.
func (r *Repository) NextNumber(ctx context.Context, q db.Querier) (int64, error) {
	var number int64
	err := q.QueryRow(ctx, `
		INSERT INTO invoice_sequences (name, value) VALUES ('invoice_number', 1)
		ON CONFLICT (name) DO UPDATE SET value = invoice_sequences.value + 1
		RETURNING value`).Scan(&number)
	if err != nil {
		return 0, fmt.Errorf("invoicing: next number: %w", err)
	}
	return number, nil
}

// Insert stores a new invoice and returns its id.
func (r *Repository) Insert(ctx context.Context, q db.Querier, inv Invoice) (int64, error) {
	items, xlItems, err := marshalLines(inv)
	if err != nil {
		return 0, err
	}
	var id int64
	err = q.QueryRow(ctx, `
		INSERT INTO invoices (number, type, date, customer_id, items, xl_items,
			total_without, total_with, xl_total, grand_total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id`,
		inv.Number, string(inv.Type), inv.Date, inv.CustomerID, items, xlItems,
		inv.TotalWithout, inv.TotalWith, inv.XLTotal, inv.GrandTotal,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("invoicing: insert: %w", err)
	}
	return id, nil
}

// Update replaces the mutable fields of an invoice. It reports how many rows
// matched so the caller can detect a concurrent delete.
func (r *Repository) Update(ctx context.Context, q db.Querier, inv Invoice) (int64, error) {
	items, xlItems, err := marshalLines(inv)
	if err != nil {
		return 0, err
	}
	tag, err := q.Exec(ctx, `
		UPDATE invoices
		SET date = $2, customer_id = $3, items = $4, xl_items = $5,
			total_without = $6, total_with = $7, xl_total = $8, grand_total = $9,
			updated_at = NOW()
		WHERE id = $1`,
		inv.ID, inv.Date, inv.CustomerID, items, xlItems,
		inv.TotalWithout, inv.TotalWith, inv.XLTotal, inv.GrandTotal,
	)
	if err != nil {
		return 0, fmt.Errorf("invoicing: update: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Get loads one invoice by id.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, selectInvoiceSQL+` WHERE id = $1`, id))
}

// Delete removes the invoice record.
func (r *Repository) Delete(ctx context.Context, q db.Querier, id int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("invoicing: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Type   Type
	Limit  int
	Offset int
}

// List returns invoices newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, selectInvoiceSQL+`
		WHERE ($1 = '' OR type = $1)
		ORDER BY number DESC
		LIMIT $2 OFFSET $3`, string(filter.Type), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

const selectInvoiceSQL = `
	SELECT id, number, type, date, customer_id, items, xl_items,
		total_without, total_with, xl_total, grand_total, created_at, updated_at
	FROM invoices`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var typ string
	var items, xlItems []byte
	var customerID *int64
	var createdAt, updatedAt time.Time
	err := row.Scan(&inv.ID, &inv.Number, &typ, &inv.Date, &customerID, &items, &xlItems,
		&inv.TotalWithout, &inv.TotalWith, &inv.XLTotal, &inv.GrandTotal, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, err
	}
	inv.Type = Type(typ)
	inv.CustomerID = customerID
	inv.CreatedAt = createdAt
	inv.UpdatedAt = updatedAt
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return Invoice{}, fmt.Errorf("invoicing: decode items: %w", err)
	}
	if err := json.Unmarshal(xlItems, &inv.XLItems); err != nil {
		return Invoice{}, fmt.Errorf("invoicing: decode xl items: %w", err)
	}
	return inv, nil
}

func marshalLines(inv Invoice) ([]byte, []byte, error) {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return nil, nil, fmt.Errorf("invoicing: encode items: %w", err)
	}
	xlItems, err := json.Marshal(inv.XLItems)
	if err != nil {
		return nil, nil, fmt.Errorf("invoicing: encode xl items: %w", err)
	}
	return items, xlItems, nil
}
