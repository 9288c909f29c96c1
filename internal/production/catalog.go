package production

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Catalog reads manufacturing step templates from the product catalog, which
// is owned elsewhere and consulted read-only here.
type Catalog struct {
	pool *pgxpool.Pool
}

// NewCatalog constructs Catalog.
func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// StepTemplate returns the product's step names. Products without a template
// yield an empty slice, not an error.
func (c *Catalog) StepTemplate(ctx context.Context, productID int64) ([]string, error) {
	var payload []byte
	err := c.pool.QueryRow(ctx,
		`SELECT production_steps FROM products WHERE id = $1`, productID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(payload) == 0 {
		return nil, nil
	}
	var steps []string
	if err := json.Unmarshal(payload, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}
