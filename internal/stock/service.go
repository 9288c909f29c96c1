package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stockbook-app/stockbook/internal/platform/db"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	ApplyDelta(ctx context.Context, key VariantKey, delta Delta) error
	ApplyDeltaIn(ctx context.Context, q db.Querier, key VariantKey, delta Delta) error
	GetRow(ctx context.Context, key VariantKey) (Row, error)
	ListRows(ctx context.Context, productID int64) ([]Row, error)
}

// MetricsPort counts ledger increment attempts.
type MetricsPort interface {
	CountLedgerApply(path string, err error)
}

// Service coordinates ledger reads and writes.
type Service struct {
	repo    RepositoryPort
	cache   *Cache
	metrics MetricsPort
	logger  *slog.Logger
}

// NewService builds Service. The cache is optional.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// SetMetrics attaches the optional increment counter.
func (s *Service) SetMetrics(m MetricsPort) {
	s.metrics = m
}

// ApplyDelta applies one signed increment and invalidates the cached row.
func (s *Service) ApplyDelta(ctx context.Context, key VariantKey, delta Delta) error {
	if delta.IsZero() {
		return nil
	}
	err := s.repo.ApplyDelta(ctx, key, delta)
	if s.metrics != nil {
		s.metrics.CountLedgerApply("direct", err)
	}
	if err != nil {
		return fmt.Errorf("stock: apply delta %s: %w", key, err)
	}
	s.invalidate(ctx, key)
	return nil
}

// ApplyDeltaIn applies one increment on the caller's querier so it shares the
// caller's transaction boundary.
func (s *Service) ApplyDeltaIn(ctx context.Context, q db.Querier, key VariantKey, delta Delta) error {
	if delta.IsZero() {
		return nil
	}
	err := s.repo.ApplyDeltaIn(ctx, q, key, delta)
	if s.metrics != nil {
		s.metrics.CountLedgerApply("transactional", err)
	}
	if err != nil {
		return fmt.Errorf("stock: apply delta %s: %w", key, err)
	}
	s.invalidate(ctx, key)
	return nil
}

// ApplyDeltas applies a batch as independent per-key increments. It is not a
// multi-key transaction: keys applied before a failure stay applied, and the
// error reports which keys remain. Callers needing cross-key atomicity use
// ApplyDeltaIn inside their own transaction.
func (s *Service) ApplyDeltas(ctx context.Context, deltas map[VariantKey]Delta) error {
	var failed []VariantKey
	var firstErr error
	for key, delta := range deltas {
		if delta.IsZero() {
			continue
		}
		if err := s.ApplyDelta(ctx, key, delta); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed = append(failed, key)
		}
	}
	if firstErr != nil {
		return fmt.Errorf("stock: %d of %d increments failed (first: %w)", len(failed), len(deltas), firstErr)
	}
	return nil
}

// GetRow returns the ledger row for the key, serving from cache when possible.
// A missing row reads as zero quantities: rows are created lazily on the first
// increment, so absence is not an error for readers.
func (s *Service) GetRow(ctx context.Context, key VariantKey) (Row, error) {
	if s.cache != nil {
		if row, ok := s.cache.Get(ctx, key); ok {
			return row, nil
		}
	}
	row, err := s.repo.GetRow(ctx, key)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return Row{ProductID: key.ProductID, WithSymbol: key.WithSymbol}, nil
		}
		return Row{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, row)
	}
	return row, nil
}

// ListRows lists ledger rows, optionally filtered by product.
func (s *Service) ListRows(ctx context.Context, productID int64) ([]Row, error) {
	return s.repo.ListRows(ctx, productID)
}

func (s *Service) invalidate(ctx context.Context, key VariantKey) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, key); err != nil && s.logger != nil {
		s.logger.Warn("stock cache invalidate", slog.String("key", key.String()), slog.Any("error", err))
	}
}
