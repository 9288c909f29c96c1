package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerRetry retries a stock increment that failed on the invoice path.
	TaskLedgerRetry = "stock:ledger_retry"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ledgerRetryMaxAttempts bounds the retry budget. The increment is
// idempotent-safe to retry because each delivery is deduplicated by Key.
const ledgerRetryMaxAttempts = 5

// LedgerRetryPayload carries one failed increment. Key is assigned at enqueue
// time and stays stable across redeliveries.
type LedgerRetryPayload struct {
	Key        string  `json:"key"`
	ProductID  int64   `json:"product_id"`
	WithSymbol bool    `json:"with_symbol"`
	Piece      float64 `json:"piece"`
	Weight     float64 `json:"weight"`
	Reason     string  `json:"reason"`
}

// NewLedgerRetryTask constructs an Asynq task for one increment.
func NewLedgerRetryTask(payload LedgerRetryPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRetry, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(ledgerRetryMaxAttempts),
	), nil
}

// IdempotencyCleanupPayload carries scheduling metadata.
type IdempotencyCleanupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIdempotencyCleanupTask constructs the nightly cleanup task.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
