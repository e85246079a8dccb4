//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"heartsync-backend/internal/apperr"
	"heartsync-backend/internal/repository"
	"heartsync-backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func countCouples(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, testPool.QueryRow(context.Background(), `SELECT count(*) FROM couples`).Scan(&n))
	return n
}

func TestConnect_ConcurrentCallersShareOnePartner(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	pairs := services.NewPairService(store, nil)

	partner := createUser(t, store, "partner@example.com", "PRTN0000")
	const callers = 8
	ids := make([]string, callers)
	codes := make([]string, callers)
	for i := range callers {
		codes[i] = fmt.Sprintf("CALR%04d", i)
		ids[i] = createUser(t, store, fmt.Sprintf("caller%d@example.com", i), codes[i]).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = pairs.Connect(ctx, ids[i], services.ConnectRequest{
				UserHeartCode:    codes[i],
				PartnerHeartCode: partner.Heartcode,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, countCouples(t))

	var connected int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT count(*) FROM users WHERE connected`).Scan(&connected))
	assert.Equal(t, 2, connected)

	got, err := store.Users().GetByID(ctx, partner.ID)
	require.NoError(t, err)
	assert.True(t, got.Connected)
}

func TestDelete_RacingConnectKeepsPartnerConsistent(t *testing.T) {
	ctx := context.Background()

	for round := range 20 {
		store := newStore(t)
		users := services.NewUserService(store, nil, services.UserServiceConfig{
			JWTSecret:      "integration-secret",
			TokenTTL:       time.Hour,
			BcryptCost:     bcrypt.MinCost,
			MinPasswordLen: 6,
		})
		pairs := services.NewPairService(store, nil)

		ana := createUser(t, store, "ana@example.com", "AAAA1111")
		bia := createUser(t, store, "bia@example.com", "BBBB2222")

		var wg sync.WaitGroup
		var deleteErr, connectErr error
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			deleteErr = users.Delete(ctx, ana.ID, ana.ID)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, connectErr = pairs.Connect(ctx, bia.ID, services.ConnectRequest{
				UserHeartCode:    bia.Heartcode,
				PartnerHeartCode: ana.Heartcode,
			})
		}()
		close(start)
		wg.Wait()

		require.NoError(t, deleteErr, "round %d", round)
		if connectErr != nil {
			assert.True(t, apperr.Is(connectErr, apperr.KindNotFound), "round %d: %v", round, connectErr)
		}

		got, err := store.Users().GetByID(ctx, bia.ID)
		require.NoError(t, err)
		assert.False(t, got.Connected, "round %d: partner left connected without a couple", round)
		assert.Equal(t, 0, countCouples(t), "round %d", round)

		_, err = store.Users().GetByID(ctx, ana.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	}
}

func TestUpdateStreak_ConcurrentIncrementsAreNotLost(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	roulette := services.NewRouletteService(store, nil)
	ana := createUser(t, store, "ana@example.com", "AAAA1111")

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var seen []int
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			st, err := roulette.UpdateStreak(ctx, ana.ID, services.StreakRequest{UserID: ana.ID, LastStreakDate: "2025-03-14"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen = append(seen, st.Streak)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	got, err := store.Users().GetByID(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.Streak)

	sort.Ints(seen)
	want := make([]int, n)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, seen)
}
