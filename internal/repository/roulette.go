package repository

import (
	"context"
	"fmt"

	"heartsync-backend/internal/models"
)

// RouletteRepository handles database operations for roulette entries
type RouletteRepository struct {
	db Querier
}

// NewRouletteRepository creates a new roulette repository
func NewRouletteRepository(db Querier) *RouletteRepository {
	return &RouletteRepository{db: db}
}

// Create appends an entry
func (r *RouletteRepository) Create(ctx context.Context, entry *models.RouletteEntry) error {
	query := `
		INSERT INTO roulette_entries (id, user_id, activity_date, activity, lock_duration_seconds,
			next_available_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.UserID, entry.ActivityDate, entry.Activity, entry.LockDuration,
		entry.NextAvailableAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create roulette entry: %w", err)
	}
	return nil
}

// ListByUser retrieves the latest entries of a user, newest first
func (r *RouletteRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.RouletteEntry, error) {
	query := `
		SELECT id, user_id, activity_date, activity, lock_duration_seconds, next_available_at, created_at
		FROM roulette_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get roulette entries: %w", err)
	}
	defer rows.Close()

	entries := []*models.RouletteEntry{}
	for rows.Next() {
		var entry models.RouletteEntry
		err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.ActivityDate, &entry.Activity,
			&entry.LockDuration, &entry.NextAvailableAt, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan roulette entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roulette entries: %w", err)
	}

	return entries, nil
}
