package repository

import (
	"context"
	"fmt"
	"time"

	"heartsync-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, name, email, birth_date, password_hash, has_photo, photo_url, heartcode,
	connected, push_token, streak, last_streak_date, created_at, updated_at`

// UserRepository handles database operations for users
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new user repository
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.BirthDate, &user.PasswordHash,
		&user.HasPhoto, &user.PhotoURL, &user.Heartcode, &user.Connected, &user.PushToken,
		&user.Streak, &user.LastStreakDate, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, email, birth_date, password_hash, has_photo, photo_url,
			heartcode, connected, streak, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.Name, user.Email, user.BirthDate, user.PasswordHash, user.HasPhoto,
		user.PhotoURL, user.Heartcode, user.Connected, user.Streak, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case "users_email_key":
				return ErrEmailTaken
			case "users_heartcode_key":
				return ErrHeartcodeTaken
			}
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// GetByHeartcode retrieves a user by heartcode
func (r *UserRepository) GetByHeartcode(ctx context.Context, heartcode string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE heartcode = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, heartcode))
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// HeartcodeExists checks if a heartcode already exists
func (r *UserRepository) HeartcodeExists(ctx context.Context, heartcode string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE heartcode = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, heartcode).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check heartcode existence: %w", err)
	}
	return exists, nil
}

// Lock selects one user FOR UPDATE
func (r *UserRepository) Lock(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// LockPair selects both users FOR UPDATE. Rows are locked in id order so two
// transactions pairing the same users cannot deadlock.
func (r *UserRepository) LockPair(ctx context.Context, idA, idB string) (*models.User, *models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`
	rows, err := r.db.Query(ctx, query, idA, idB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock users: %w", err)
	}
	defer rows.Close()

	var userA, userB *models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan user: %w", err)
		}
		switch user.ID {
		case idA:
			userA = user
		case idB:
			userB = user
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating users: %w", err)
	}
	if userA == nil || userB == nil {
		return nil, nil, fmt.Errorf("user not found: %w", ErrNotFound)
	}
	return userA, userB, nil
}

// UpdateProfile updates name, email and birth date
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET name = $1, email = $2, birth_date = $3, updated_at = $4
		WHERE id = $5
	`
	result, err := r.db.Exec(ctx, query, user.Name, user.Email, user.BirthDate, user.UpdatedAt, user.ID)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "users_email_key" {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", ErrNotFound)
	}
	return nil
}

// SetPhoto stores the profile photo URL and flags the user as having a photo
func (r *UserRepository) SetPhoto(ctx context.Context, id, photoURL string) error {
	query := `UPDATE users SET has_photo = TRUE, photo_url = $1, updated_at = now() WHERE id = $2`
	return r.execOne(ctx, "set photo", query, photoURL, id)
}

// SetPushToken updates the push token for a user
func (r *UserRepository) SetPushToken(ctx context.Context, id string, pushToken *string) error {
	query := `UPDATE users SET push_token = $1, updated_at = now() WHERE id = $2`
	return r.execOne(ctx, "update push token", query, pushToken, id)
}

// SetConnected flips the pairing flag
func (r *UserRepository) SetConnected(ctx context.Context, id string, connected bool) error {
	query := `UPDATE users SET connected = $1, updated_at = now() WHERE id = $2`
	return r.execOne(ctx, "update connection status", query, connected, id)
}

// SetStreak stores the streak counter and last streak date
func (r *UserRepository) SetStreak(ctx context.Context, id string, streak int, lastStreakDate *time.Time) error {
	query := `UPDATE users SET streak = $1, last_streak_date = $2, updated_at = now() WHERE id = $3`
	return r.execOne(ctx, "update streak", query, streak, lastStreakDate, id)
}

// IncrementStreak bumps the streak without a read-modify-write, so concurrent
// increments are never lost
func (r *UserRepository) IncrementStreak(ctx context.Context, id string, lastStreakDate time.Time) (int, error) {
	query := `
		UPDATE users
		SET streak = streak + 1, last_streak_date = $1, updated_at = now()
		WHERE id = $2
		RETURNING streak
	`
	var streak int
	if err := r.db.QueryRow(ctx, query, lastStreakDate, id).Scan(&streak); err != nil {
		return 0, notFound("user", err)
	}
	return streak, nil
}

// Delete removes a user; couples, roulette entries and usage rows cascade
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete user", `DELETE FROM users WHERE id = $1`, id)
}

func (r *UserRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", ErrNotFound)
	}
	return nil
}
