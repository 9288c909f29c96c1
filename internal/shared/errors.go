package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrLedgerApply indicates the atomic stock increment itself failed.
	ErrLedgerApply = errors.New("ledger apply failed")
)
