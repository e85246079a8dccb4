//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"heartsync-backend/internal/database"
	"heartsync-backend/internal/models"
	"heartsync-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Usage:
//   go test -tags integration ./internal/repository/...
// TEST_DATABASE_URL points the tests at an existing database instead of a container.

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	_ = godotenv.Load("../../.env")
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		container, url, err := startPostgres(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping integration tests: %v\n", err)
			return 0
		}
		defer func() { _ = container.Terminate(ctx) }()
		dsn = url
	}

	if err := database.Migrate(dsn, database.Up); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}

	pool, err := database.Open(ctx, dsn, 5)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		return 1
	}
	defer pool.Close()
	testPool = pool

	return m.Run()
}

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "heartsync",
			"POSTGRES_PASSWORD": "heartsync",
			"POSTGRES_DB":       "heartsync_test",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90*time.Second),
			wait.ForListeningPort("5432/tcp"),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", err
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", err
	}

	url := fmt.Sprintf("postgres://heartsync:heartsync@%s:%s/heartsync_test?sslmode=disable", host, port.Port())
	return container, url, nil
}

func newStore(t *testing.T) *repository.PostgresStore {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE app_usage, roulette_entries, verification_codes, couples, users`)
	require.NoError(t, err)
	return repository.NewPostgresStore(testPool)
}

func createUser(t *testing.T, store repository.Store, email, heartcode string) *models.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &models.User{
		ID:           uuid.New().String(),
		Name:         "User " + heartcode,
		Email:        email,
		BirthDate:    time.Date(1995, 4, 12, 0, 0, 0, 0, time.UTC),
		PasswordHash: "hash",
		Heartcode:    heartcode,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.Users().Create(context.Background(), user))
	return user
}

func TestUsers_UniqueConstraints(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	createUser(t, store, "ana@example.com", "AAAA1111")

	dup := &models.User{
		ID: uuid.New().String(), Name: "Other", Email: "ana@example.com",
		BirthDate: time.Now(), PasswordHash: "x", Heartcode: "BBBB2222",
	}
	assert.ErrorIs(t, store.Users().Create(ctx, dup), repository.ErrEmailTaken)

	dup.Email = "other@example.com"
	dup.Heartcode = "AAAA1111"
	assert.ErrorIs(t, store.Users().Create(ctx, dup), repository.ErrHeartcodeTaken)

	exists, err := store.Users().HeartcodeExists(ctx, "AAAA1111")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.Users().GetByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCouples_CascadeOnUserDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	ana := createUser(t, store, "ana@example.com", "AAAA1111")
	bia := createUser(t, store, "bia@example.com", "BBBB2222")

	couple := &models.Couple{
		ID: uuid.New().String(), UserAID: ana.ID, UserBID: bia.ID,
		ConnectionCode: "CONNABCDEFGH", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Couples().Create(ctx, couple))

	got, err := store.Couples().GetByUserID(ctx, bia.ID)
	require.NoError(t, err)
	assert.Equal(t, couple.ID, got.ID)
	assert.Equal(t, ana.ID, got.PartnerOf(bia.ID))

	exists, err := store.Couples().CodeExists(ctx, "CONNABCDEFGH")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Users().Delete(ctx, ana.ID))
	_, err = store.Couples().GetByUserID(ctx, bia.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	ana := createUser(t, store, "ana@example.com", "AAAA1111")
	bia := createUser(t, store, "bia@example.com", "BBBB2222")

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx repository.Tx) error {
		a, b, err := tx.Users().LockPair(ctx, bia.ID, ana.ID)
		require.NoError(t, err)
		assert.Equal(t, bia.ID, a.ID)
		assert.Equal(t, ana.ID, b.ID)

		require.NoError(t, tx.Users().SetConnected(ctx, ana.ID, true))
		require.NoError(t, tx.Users().SetConnected(ctx, bia.ID, true))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Users().GetByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.False(t, got.Connected)
}

func TestVerificationCodes_ConsumeOnce(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	live := &models.VerificationCode{ID: uuid.New().String(), Email: "ana@example.com", Code: "123456", ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now}
	stale := &models.VerificationCode{ID: uuid.New().String(), Email: "ana@example.com", Code: "654321", ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-11 * time.Minute)}
	require.NoError(t, store.VerificationCodes().Create(ctx, live))
	require.NoError(t, store.VerificationCodes().Create(ctx, stale))

	got, err := store.VerificationCodes().Find(ctx, "ana@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)

	deleted, err := store.VerificationCodes().Delete(ctx, live.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = store.VerificationCodes().Delete(ctx, live.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := store.VerificationCodes().DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRouletteAndUsage(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	ana := createUser(t, store, "ana@example.com", "AAAA1111")
	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for i, activity := range []string{"Piquenique", "Cinema"} {
		created := now.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Roulette().Create(ctx, &models.RouletteEntry{
			ID: uuid.New().String(), UserID: ana.ID, ActivityDate: day, Activity: activity,
			LockDuration: 3600, NextAvailableAt: created.Add(time.Hour), CreatedAt: created,
		}))
	}
	entries, err := store.Roulette().ListByUser(ctx, ana.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Cinema", entries[0].Activity)

	stats := []models.AppUsage{
		{PackageName: "com.a", AppName: "A", ForegroundMs: 1000, LastTimeUsed: now},
		{PackageName: "com.b", AppName: "B", ForegroundMs: 5000, LastTimeUsed: now},
	}
	require.NoError(t, store.Usage().ReplaceDay(ctx, ana.ID, day, stats))
	require.NoError(t, store.Usage().ReplaceDay(ctx, ana.ID, day, stats[:1]))

	got, err := store.Usage().ListDay(ctx, ana.ID, day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "com.a", got[0].PackageName)
}
