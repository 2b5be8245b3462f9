package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrConflict is returned by Create when a record with the same id already
// exists. Two concurrent first-observations of the same content race on the
// primary key; the loser retries as Append.
var ErrConflict = errors.New("record already exists")

// appendRetries bounds the number of times Append re-runs its statement after
// losing the unique (content_id, seq) race to a concurrent append.
const appendRetries = 5

type recordRepository struct {
	db *DB
}

func NewRecordRepository(db *DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) Lookup(ctx context.Context, id string) (*RecordStatus, error) {
	var status RecordStatus
	err := r.db.QueryRowContext(ctx, `
		SELECT r.posted, COUNT(o.seq)
		FROM content_records r
		LEFT JOIN observations o ON o.content_id = r.id
		WHERE r.id = $1
		GROUP BY r.posted
	`, id).Scan(&status.Posted, &status.LedgerLength)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up record: %w", err)
	}

	return &status, nil
}

func (r *recordRepository) Create(ctx context.Context, record ContentRecord, first Observation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO content_records (
			id, community, community_size, content_source, title, locator,
			asset_key, asset_bucket, current_score, current_comment_count,
			posted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11)
		ON CONFLICT (id) DO NOTHING
	`, record.ID, record.Community, record.CommunitySize, record.ContentSource,
		record.Title, record.Locator, record.AssetKey, record.AssetBucket,
		record.CurrentScore, record.CurrentCommentCount, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO observations (content_id, seq, observed_at, score, comment_count)
		VALUES ($1, 1, $2, $3, $4)
	`, record.ID, first.ObservedAt, first.Score, first.CommentCount)
	if err != nil {
		return fmt.Errorf("failed to insert first observation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record creation: %w", err)
	}

	return nil
}

// Append assigns the next ledger position and updates the current counters in
// a single statement. The UNIQUE (content_id, seq) constraint turns the
// position assignment into a compare-and-swap: when two appends race, one
// hits a unique violation and re-runs against the new ledger length, so both
// observations land and neither update is lost.
func (r *recordRepository) Append(ctx context.Context, id string, obs Observation) (int, error) {
	var lastErr error

	for attempt := 0; attempt < appendRetries; attempt++ {
		var seq int
		err := r.db.QueryRowContext(ctx, `
			WITH next AS (
				SELECT COALESCE(MAX(seq), 0) + 1 AS seq
				FROM observations
				WHERE content_id = $1
			), ins AS (
				INSERT INTO observations (content_id, seq, observed_at, score, comment_count)
				SELECT $1, next.seq, $2, $3, $4 FROM next
				RETURNING seq
			)
			UPDATE content_records
			SET current_score = $3, current_comment_count = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING (SELECT seq FROM ins)
		`, id, obs.ObservedAt, obs.Score, obs.CommentCount).Scan(&seq)

		if err == nil {
			return seq, nil
		}
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("cannot append to unknown record %s", id)
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			lastErr = err
			continue
		}

		return 0, fmt.Errorf("failed to append observation: %w", err)
	}

	return 0, fmt.Errorf("append contention on record %s after %d attempts: %w", id, appendRetries, lastErr)
}

func (r *recordRepository) MarkPosted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE content_records
		SET posted = TRUE, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark record as posted: %w", err)
	}

	return nil
}

func (r *recordRepository) GetStats(ctx context.Context) ([]CommunityStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT community,
		       COUNT(*) AS total,
		       SUM(CASE WHEN posted THEN 1 ELSE 0 END) AS posted
		FROM content_records
		GROUP BY community
		ORDER BY community
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get record stats: %w", err)
	}
	defer rows.Close()

	var stats []CommunityStats
	for rows.Next() {
		var s CommunityStats
		if err := rows.Scan(&s.Community, &s.Total, &s.Posted); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats rows: %w", err)
	}

	return stats, nil
}
