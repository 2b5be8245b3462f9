package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type accountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) EnsureAccount(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO account_states (account_id, posts_today, window_start)
		VALUES ($1, 0, NOW())
		ON CONFLICT (account_id) DO NOTHING
	`, accountID)
	if err != nil {
		return fmt.Errorf("failed to ensure account state: %w", err)
	}

	return nil
}

// Acquire consumes one unit of the account's budget with a single conditional
// UPDATE: an atomic add, never a read-then-write, so overlapping invocations
// publishing for the same account cannot overshoot the budget. When the
// window has elapsed the same statement resets the counter and re-anchors
// window_start.
func (r *accountRepository) Acquire(ctx context.Context, accountID string, budget int, window time.Duration) (int, bool, error) {
	windowSeconds := int64(window.Seconds())

	var postsToday int
	err := r.db.QueryRowContext(ctx, `
		UPDATE account_states
		SET posts_today = CASE
				WHEN window_start <= NOW() - ($3 * INTERVAL '1 second') THEN 1
				ELSE posts_today + 1
			END,
			window_start = CASE
				WHEN window_start <= NOW() - ($3 * INTERVAL '1 second') THEN NOW()
				ELSE window_start
			END
		WHERE account_id = $1
		  AND (posts_today < $2 OR window_start <= NOW() - ($3 * INTERVAL '1 second'))
		RETURNING posts_today
	`, accountID, budget, windowSeconds).Scan(&postsToday)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to acquire budget for account %s: %w", accountID, err)
	}

	return postsToday, true, nil
}

func (r *accountRepository) GetStates(ctx context.Context) ([]AccountState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, posts_today, window_start
		FROM account_states
		ORDER BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get account states: %w", err)
	}
	defer rows.Close()

	var states []AccountState
	for rows.Next() {
		var s AccountState
		if err := rows.Scan(&s.AccountID, &s.PostsToday, &s.WindowStart); err != nil {
			return nil, fmt.Errorf("failed to scan account state row: %w", err)
		}
		states = append(states, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account state rows: %w", err)
	}

	return states, nil
}
