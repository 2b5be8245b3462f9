package database

import (
	"context"
	"time"
)

// RecordRepository is the single capability surface over persisted content
// records. Every mutation is a conditional or atomic write against the store;
// callers never read-modify-write.
type RecordRepository interface {
	// Lookup returns nil when no record exists for the id.
	Lookup(ctx context.Context, id string) (*RecordStatus, error)

	// Create inserts a brand-new record together with its first observation.
	// Returns ErrConflict when the id already exists; the caller retries the
	// operation as Append.
	Create(ctx context.Context, record ContentRecord, first Observation) error

	// Append atomically appends an observation to the record's ledger and
	// overwrites the current engagement counters. Returns the resulting
	// ledger length (1-indexed). Concurrent appends to the same id must both
	// succeed without losing either update.
	Append(ctx context.Context, id string, obs Observation) (int, error)

	// MarkPosted flips the posted flag. Idempotent: marking an already
	// posted record is a no-op, not an error.
	MarkPosted(ctx context.Context, id string) error

	GetStats(ctx context.Context) ([]CommunityStats, error)
}

// AccountRepository manages per-account publication budgets.
type AccountRepository interface {
	// EnsureAccount creates the account row if it does not exist yet.
	EnsureAccount(ctx context.Context, accountID string) error

	// Acquire atomically consumes one unit of the account's daily budget.
	// When the budget window has elapsed the counter is reset in the same
	// statement. Returns the new counter value and false when the budget is
	// exhausted (counter unchanged).
	Acquire(ctx context.Context, accountID string, budget int, window time.Duration) (int, bool, error)

	GetStates(ctx context.Context) ([]AccountState, error)
}
