package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockbook-app/stockbook/internal/shared"
	"github.com/stockbook-app/stockbook/internal/stock"
)

// LedgerPort is the stock increment the retry handler drives.
type LedgerPort interface {
	ApplyDelta(ctx context.Context, key stock.VariantKey, delta stock.Delta) error
}

// LedgerRetryHandler replays failed invoice-path increments. Each payload key
// passes through the idempotency store once, so a task delivered twice still
// increments the ledger exactly once.
type LedgerRetryHandler struct {
	ledger      LedgerPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
}

// NewLedgerRetryHandler constructs the handler.
func NewLedgerRetryHandler(ledger LedgerPort, idem *shared.IdempotencyStore, logger *slog.Logger) *LedgerRetryHandler {
	return &LedgerRetryHandler{ledger: ledger, idempotency: idem, logger: logger}
}

// Handle processes TaskLedgerRetry tasks.
func (h *LedgerRetryHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerRetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Key == "" {
		return asynq.SkipRetry
	}

	if h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(ctx, payload.Key, "jobs.ledger_retry"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil
			}
			return err
		}
	}

	key := stock.VariantKey{ProductID: payload.ProductID, WithSymbol: payload.WithSymbol}
	delta := stock.Delta{Piece: payload.Piece, Weight: payload.Weight}
	if err := h.ledger.ApplyDelta(ctx, key, delta); err != nil {
		// Release the key so the next delivery attempts the increment again.
		if h.idempotency != nil {
			_ = h.idempotency.Delete(ctx, payload.Key)
		}
		h.logger.Warn("ledger retry failed",
			slog.String("key", key.String()),
			slog.String("reason", payload.Reason),
			slog.Any("error", err),
		)
		return err
	}
	h.logger.Info("ledger retry applied",
		slog.String("key", key.String()),
		slog.String("reason", payload.Reason),
	)
	return nil
}
