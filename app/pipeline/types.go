package pipeline

import (
	"context"

	"github.com/contentloop/crossposter/app/limiter"
	"github.com/contentloop/crossposter/app/publisher"
)

// Outcome is the single result emitted for one observation.
type Outcome int

const (
	// OutcomeSkipped: snapshot hit or the observation could not be processed.
	OutcomeSkipped Outcome = iota
	// OutcomeCreated: a new record was created and not published.
	OutcomeCreated
	// OutcomeUpdated: an existing record's ledger grew and nothing was published.
	OutcomeUpdated
	// OutcomePublished: publication was approved and performed on the primary channel.
	OutcomePublished
	// OutcomeDeferred: content was eligible but the account budget was exhausted.
	OutcomeDeferred
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skip"
	case OutcomeCreated:
		return "created-unposted"
	case OutcomeUpdated:
		return "updated"
	case OutcomePublished:
		return "publish-approved"
	case OutcomeDeferred:
		return "publish-deferred"
	default:
		return "unknown"
	}
}

// SeenSet is the previous run's snapshot: a coarse pre-filter consulted
// before the record store.
type SeenSet interface {
	Contains(id string) bool
}

// BudgetGate hands out publication approvals against an account budget.
type BudgetGate interface {
	Acquire(ctx context.Context, accountID string) (limiter.Decision, error)
}

// AssetManager is the slice of the asset pipeline the processor drives.
type AssetManager interface {
	Available(ctx context.Context, community, id string) (bool, error)
	Ensure(ctx context.Context, community, id string) (string, error)
	Capture(ctx context.Context, community, id, locator, source string) error
	Bucket() string
}

// Publisher performs the downstream publication call.
type Publisher interface {
	Publish(ctx context.Context, req publisher.Request) error
}

// Summary aggregates one run's outcomes for logging.
type Summary struct {
	Total     int
	Skipped   int
	Created   int
	Updated   int
	Published int
	Deferred  int
	Failed    int
}
