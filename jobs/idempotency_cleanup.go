package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockbook-app/stockbook/internal/shared"
)

// idempotencyRetention keeps keys long enough to outlive any retry schedule.
const idempotencyRetention = 7 * 24 * time.Hour

// IdempotencyCleanupHandler prunes processed keys on the nightly schedule.
type IdempotencyCleanupHandler struct {
	store  *shared.IdempotencyStore
	logger *slog.Logger
}

// NewIdempotencyCleanupHandler constructs the handler.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, logger *slog.Logger) *IdempotencyCleanupHandler {
	return &IdempotencyCleanupHandler{store: store, logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (h *IdempotencyCleanupHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := h.store.Cleanup(ctx, idempotencyRetention); err != nil {
		h.logger.Warn("idempotency cleanup", slog.Any("error", err))
		return err
	}
	return nil
}
