package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/contentloop/crossposter/app/database"
)

type Decision int

const (
	// DecisionApproved authorizes one publication against the primary
	// channel; the account's daily counter was incremented.
	DecisionApproved Decision = iota
	// DecisionDeferred means the account's budget is exhausted for this
	// window. The counter is unchanged.
	DecisionDeferred
)

func (d Decision) String() string {
	if d == DecisionApproved {
		return "publish-approved"
	}
	return "publish-deferred"
}

// Limiter gates publications behind a per-account daily budget. The budget
// window is a rolling 24 hours anchored at the account's window_start; the
// store resets the counter atomically when the window elapses.
type Limiter struct {
	accounts database.AccountRepository
	budget   int
	window   time.Duration
}

func NewLimiter(accounts database.AccountRepository, budget int) *Limiter {
	return &Limiter{
		accounts: accounts,
		budget:   budget,
		window:   24 * time.Hour,
	}
}

func (l *Limiter) Acquire(ctx context.Context, accountID string) (Decision, error) {
	if accountID == "" {
		return DecisionDeferred, fmt.Errorf("account id is empty")
	}

	// Lazy creation on first publication attempt for the account
	if err := l.accounts.EnsureAccount(ctx, accountID); err != nil {
		return DecisionDeferred, err
	}

	postsToday, acquired, err := l.accounts.Acquire(ctx, accountID, l.budget, l.window)
	if err != nil {
		return DecisionDeferred, err
	}

	if !acquired {
		slog.Debug("Publication budget exhausted", "account", accountID, "budget", l.budget)
		return DecisionDeferred, nil
	}

	slog.Debug("Publication budget acquired", "account", accountID, "posts_today", postsToday, "budget", l.budget)
	return DecisionApproved, nil
}
