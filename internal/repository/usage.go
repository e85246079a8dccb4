package repository

import (
	"context"
	"fmt"
	"time"

	"heartsync-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// UsageRepository handles database operations for app usage reports
type UsageRepository struct {
	db Querier
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db Querier) *UsageRepository {
	return &UsageRepository{db: db}
}

// ReplaceDay swaps the stored rows of one user and day for stats. The batch
// runs as a single implicit transaction.
func (r *UsageRepository) ReplaceDay(ctx context.Context, userID string, day time.Time, stats []models.AppUsage) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM app_usage WHERE user_id = $1 AND day = $2`, userID, day)
	for _, s := range stats {
		batch.Queue(`
			INSERT INTO app_usage (user_id, day, package_name, app_name, foreground_ms, last_time_used, system_app)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (user_id, day, package_name) DO UPDATE
			SET app_name = EXCLUDED.app_name,
				foreground_ms = EXCLUDED.foreground_ms,
				last_time_used = EXCLUDED.last_time_used,
				system_app = EXCLUDED.system_app,
				reported_at = now()
		`, userID, day, s.PackageName, s.AppName, s.ForegroundMs, s.LastTimeUsed, s.SystemApp)
	}

	results := r.db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to store app usage: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to store app usage: %w", err)
	}
	return nil
}

// ListDay returns one user's usage for a day, longest foreground time first
func (r *UsageRepository) ListDay(ctx context.Context, userID string, day time.Time) ([]models.AppUsage, error) {
	query := `
		SELECT package_name, app_name, foreground_ms, last_time_used, system_app
		FROM app_usage
		WHERE user_id = $1 AND day = $2
		ORDER BY foreground_ms DESC, package_name
	`
	rows, err := r.db.Query(ctx, query, userID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to get app usage: %w", err)
	}
	defer rows.Close()

	stats := []models.AppUsage{}
	for rows.Next() {
		var s models.AppUsage
		if err := rows.Scan(&s.PackageName, &s.AppName, &s.ForegroundMs, &s.LastTimeUsed, &s.SystemApp); err != nil {
			return nil, fmt.Errorf("failed to scan app usage: %w", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating app usage: %w", err)
	}

	return stats, nil
}
