package repository

import (
	"context"
	"fmt"
	"time"

	"heartsync-backend/internal/models"
)

// VerificationRepository handles database operations for email verification codes
type VerificationRepository struct {
	db Querier
}

// NewVerificationRepository creates a new verification code repository
func NewVerificationRepository(db Querier) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create stores a new code
func (r *VerificationRepository) Create(ctx context.Context, code *models.VerificationCode) error {
	query := `
		INSERT INTO verification_codes (id, email, code, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, code.ID, code.Email, code.Code, code.ExpiresAt, code.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create verification code: %w", err)
	}
	return nil
}

// Find returns the most recent row matching email and code
func (r *VerificationRepository) Find(ctx context.Context, email, code string) (*models.VerificationCode, error) {
	query := `
		SELECT id, email, code, expires_at, created_at
		FROM verification_codes
		WHERE email = $1 AND code = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var vc models.VerificationCode
	err := r.db.QueryRow(ctx, query, email, code).Scan(
		&vc.ID, &vc.Email, &vc.Code, &vc.ExpiresAt, &vc.CreatedAt,
	)
	if err != nil {
		return nil, notFound("verification code", err)
	}
	return &vc, nil
}

// Delete removes a code and reports whether this call removed it
func (r *VerificationRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM verification_codes WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete verification code: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// DeleteExpired purges every code whose expiry is before now
func (r *VerificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM verification_codes WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge verification codes: %w", err)
	}
	return result.RowsAffected(), nil
}
