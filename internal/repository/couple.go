package repository

import (
	"context"
	"fmt"

	"heartsync-backend/internal/models"
)

// CoupleRepository handles database operations for couples
type CoupleRepository struct {
	db Querier
}

// NewCoupleRepository creates a new couple repository
func NewCoupleRepository(db Querier) *CoupleRepository {
	return &CoupleRepository{db: db}
}

// Create creates a new couple
func (r *CoupleRepository) Create(ctx context.Context, couple *models.Couple) error {
	query := `
		INSERT INTO couples (id, user_a_id, user_b_id, connection_code, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, couple.ID, couple.UserAID, couple.UserBID, couple.ConnectionCode, couple.CreatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "couples_connection_code_key" {
			return ErrCodeTaken
		}
		return fmt.Errorf("failed to create couple: %w", err)
	}
	return nil
}

// GetByUserID retrieves the couple a user belongs to
func (r *CoupleRepository) GetByUserID(ctx context.Context, userID string) (*models.Couple, error) {
	query := `
		SELECT id, user_a_id, user_b_id, connection_code, created_at
		FROM couples
		WHERE user_a_id = $1 OR user_b_id = $1
		LIMIT 1
	`
	var couple models.Couple
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&couple.ID, &couple.UserAID, &couple.UserBID, &couple.ConnectionCode, &couple.CreatedAt,
	)
	if err != nil {
		return nil, notFound("couple", err)
	}
	return &couple, nil
}

// CodeExists checks if a connection code is already used
func (r *CoupleRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM couples WHERE connection_code = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check connection code: %w", err)
	}
	return exists, nil
}

// Delete deletes a couple by ID
func (r *CoupleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM couples WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete couple: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("couple not found: %w", ErrNotFound)
	}
	return nil
}
