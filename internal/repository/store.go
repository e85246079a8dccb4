package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"heartsync-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is wrapped by every lookup that matches no row
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when a user insert or update hits the email unique constraint
	ErrEmailTaken = errors.New("email already registered")
	// ErrHeartcodeTaken is returned when a user insert hits the heartcode unique constraint
	ErrHeartcodeTaken = errors.New("heartcode already in use")
	// ErrCodeTaken is returned when a couple insert hits the connection code unique constraint
	ErrCodeTaken = errors.New("connection code already in use")
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Users persists accounts, pairing flags and streak counters
type Users interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByHeartcode(ctx context.Context, heartcode string) (*models.User, error)
	HeartcodeExists(ctx context.Context, heartcode string) (bool, error)
	// Lock re-reads one user under a row lock
	Lock(ctx context.Context, id string) (*models.User, error)
	// LockPair re-reads two users under a row lock, in ascending id order
	LockPair(ctx context.Context, idA, idB string) (*models.User, *models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	SetPhoto(ctx context.Context, id, photoURL string) error
	SetPushToken(ctx context.Context, id string, pushToken *string) error
	SetConnected(ctx context.Context, id string, connected bool) error
	SetStreak(ctx context.Context, id string, streak int, lastStreakDate *time.Time) error
	// IncrementStreak adds one to the streak in a single statement and returns the new value
	IncrementStreak(ctx context.Context, id string, lastStreakDate time.Time) (int, error)
	Delete(ctx context.Context, id string) error
}

// Couples persists partner connections
type Couples interface {
	Create(ctx context.Context, couple *models.Couple) error
	GetByUserID(ctx context.Context, userID string) (*models.Couple, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// VerificationCodes persists email OTPs
type VerificationCodes interface {
	Create(ctx context.Context, code *models.VerificationCode) error
	Find(ctx context.Context, email, code string) (*models.VerificationCode, error)
	// Delete reports whether a row was removed
	Delete(ctx context.Context, id string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Roulette persists the append-only activity log
type Roulette interface {
	Create(ctx context.Context, entry *models.RouletteEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.RouletteEntry, error)
}

// Usage persists per-day app usage reports
type Usage interface {
	ReplaceDay(ctx context.Context, userID string, day time.Time, stats []models.AppUsage) error
	ListDay(ctx context.Context, userID string, day time.Time) ([]models.AppUsage, error)
}

// Tx exposes the repositories bound to a single transaction
type Tx interface {
	Users() Users
	Couples() Couples
}

// Store is the data access object injected into services
type Store interface {
	Users() Users
	Couples() Couples
	VerificationCodes() VerificationCodes
	Roulette() Roulette
	Usage() Usage
	// WithTx runs fn in one transaction; any error from fn rolls everything back
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// PostgresStore implements Store on a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new store over pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Users() Users     { return NewUserRepository(s.pool) }
func (s *PostgresStore) Couples() Couples { return NewCoupleRepository(s.pool) }
func (s *PostgresStore) Roulette() Roulette {
	return NewRouletteRepository(s.pool)
}
func (s *PostgresStore) Usage() Usage { return NewUsageRepository(s.pool) }
func (s *PostgresStore) VerificationCodes() VerificationCodes {
	return NewVerificationRepository(s.pool)
}

// WithTx runs fn inside a read-committed transaction; row locks taken by
// LockPair serialize concurrent writers on the same users.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(pgTx{tx: tx})
	})
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) Users() Users     { return NewUserRepository(t.tx) }
func (t pgTx) Couples() Couples { return NewCoupleRepository(t.tx) }

// uniqueViolation returns the constraint name when err is a unique violation
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func notFound(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s not found: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
