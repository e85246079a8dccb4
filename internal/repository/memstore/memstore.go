// Package memstore is an in-memory repository.Store for tests. It mirrors the
// PostgreSQL constraints the services rely on: unique email and heartcode,
// unique connection code, cascading deletes and all-or-nothing transactions.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"heartsync-backend/internal/models"
	"heartsync-backend/internal/repository"
)

// Hooks inject failures into individual operations
type Hooks struct {
	SetConnected func(id string, connected bool) error
	CreateCouple func(couple *models.Couple) error
}

// Store keeps every table in maps guarded by one mutex
type Store struct {
	// txMu serializes transactions the way row locks serialize them in PostgreSQL
	txMu sync.Mutex
	mu   sync.Mutex

	users    map[string]*models.User
	couples  map[string]*models.Couple
	codes    map[string]*models.VerificationCode
	roulette []*models.RouletteEntry
	usage    map[usageKey][]models.AppUsage

	Hooks Hooks
}

type usageKey struct {
	userID string
	day    string
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:   make(map[string]*models.User),
		couples: make(map[string]*models.Couple),
		codes:   make(map[string]*models.VerificationCode),
		usage:   make(map[usageKey][]models.AppUsage),
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Users() repository.Users                         { return users{s} }
func (s *Store) Couples() repository.Couples                     { return couples{s} }
func (s *Store) VerificationCodes() repository.VerificationCodes { return codes{s} }
func (s *Store) Roulette() repository.Roulette                   { return roulette{s} }
func (s *Store) Usage() repository.Usage                         { return usage{s} }
func (s *Store) Ping(ctx context.Context) error                  { return nil }

type snapshot struct {
	users   map[string]*models.User
	couples map[string]*models.Couple
}

// WithTx runs fn with exclusive access and restores users and couples if fn fails
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := snapshot{users: make(map[string]*models.User, len(s.users)), couples: make(map[string]*models.Couple, len(s.couples))}
	for id, u := range s.users {
		snap.users[id] = cloneUser(u)
	}
	for id, c := range s.couples {
		cc := *c
		snap.couples[id] = &cc
	}
	s.mu.Unlock()

	if err := fn(tx{s}); err != nil {
		s.mu.Lock()
		s.users = snap.users
		s.couples = snap.couples
		s.mu.Unlock()
		return err
	}
	return nil
}

type tx struct{ s *Store }

func (t tx) Users() repository.Users     { return users{t.s} }
func (t tx) Couples() repository.Couples { return couples{t.s} }

// CoupleCount returns the number of stored couples
func (s *Store) CoupleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.couples)
}

// CodeCount returns the number of stored verification codes
func (s *Store) CodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.PhotoURL != nil {
		v := *u.PhotoURL
		c.PhotoURL = &v
	}
	if u.PushToken != nil {
		v := *u.PushToken
		c.PushToken = &v
	}
	if u.LastStreakDate != nil {
		v := *u.LastStreakDate
		c.LastStreakDate = &v
	}
	return &c
}

func errUserNotFound() error {
	return fmt.Errorf("user not found: %w", repository.ErrNotFound)
}

type users struct{ s *Store }

func (r users) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repository.ErrEmailTaken
		}
		if u.Heartcode == user.Heartcode {
			return repository.ErrHeartcodeTaken
		}
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r users) find(match func(u *models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, errUserNotFound()
}

func (r users) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r users) GetByHeartcode(ctx context.Context, heartcode string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Heartcode == heartcode })
}

func (r users) HeartcodeExists(ctx context.Context, heartcode string) (bool, error) {
	_, err := r.GetByHeartcode(ctx, heartcode)
	return err == nil, nil
}

func (r users) Lock(ctx context.Context, id string) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r users) LockPair(ctx context.Context, idA, idB string) (*models.User, *models.User, error) {
	a, err := r.GetByID(ctx, idA)
	if err != nil {
		return nil, nil, err
	}
	b, err := r.GetByID(ctx, idB)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (r users) update(id string, fn func(u *models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return errUserNotFound()
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (r users) UpdateProfile(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	for _, u := range r.s.users {
		if u.ID != user.ID && u.Email == user.Email {
			r.s.mu.Unlock()
			return repository.ErrEmailTaken
		}
	}
	r.s.mu.Unlock()
	return r.update(user.ID, func(u *models.User) {
		u.Name = user.Name
		u.Email = user.Email
		u.BirthDate = user.BirthDate
	})
}

func (r users) SetPhoto(ctx context.Context, id, photoURL string) error {
	return r.update(id, func(u *models.User) {
		u.HasPhoto = true
		u.PhotoURL = &photoURL
	})
}

func (r users) SetPushToken(ctx context.Context, id string, pushToken *string) error {
	return r.update(id, func(u *models.User) { u.PushToken = pushToken })
}

func (r users) SetConnected(ctx context.Context, id string, connected bool) error {
	if hook := r.s.Hooks.SetConnected; hook != nil {
		if err := hook(id, connected); err != nil {
			return err
		}
	}
	return r.update(id, func(u *models.User) { u.Connected = connected })
}

func (r users) SetStreak(ctx context.Context, id string, streak int, lastStreakDate *time.Time) error {
	return r.update(id, func(u *models.User) {
		u.Streak = streak
		u.LastStreakDate = lastStreakDate
	})
}

func (r users) IncrementStreak(ctx context.Context, id string, lastStreakDate time.Time) (int, error) {
	var streak int
	err := r.update(id, func(u *models.User) {
		u.Streak++
		d := lastStreakDate
		u.LastStreakDate = &d
		streak = u.Streak
	})
	return streak, err
}

func (r users) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return errUserNotFound()
	}
	delete(r.s.users, id)

	for cid, c := range r.s.couples {
		if c.HasMember(id) {
			delete(r.s.couples, cid)
		}
	}
	kept := r.s.roulette[:0]
	for _, e := range r.s.roulette {
		if e.UserID != id {
			kept = append(kept, e)
		}
	}
	r.s.roulette = kept
	for k := range r.s.usage {
		if k.userID == id {
			delete(r.s.usage, k)
		}
	}
	return nil
}

type couples struct{ s *Store }

func (r couples) Create(ctx context.Context, couple *models.Couple) error {
	if hook := r.s.Hooks.CreateCouple; hook != nil {
		if err := hook(couple); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.couples {
		if c.ConnectionCode == couple.ConnectionCode {
			return repository.ErrCodeTaken
		}
	}
	if _, ok := r.s.users[couple.UserAID]; !ok {
		return errUserNotFound()
	}
	if _, ok := r.s.users[couple.UserBID]; !ok {
		return errUserNotFound()
	}
	c := *couple
	r.s.couples[c.ID] = &c
	return nil
}

func (r couples) GetByUserID(ctx context.Context, userID string) (*models.Couple, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.couples {
		if c.HasMember(userID) {
			cc := *c
			return &cc, nil
		}
	}
	return nil, fmt.Errorf("couple not found: %w", repository.ErrNotFound)
}

func (r couples) CodeExists(ctx context.Context, code string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.couples {
		if c.ConnectionCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (r couples) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.couples[id]; !ok {
		return fmt.Errorf("couple not found: %w", repository.ErrNotFound)
	}
	delete(r.s.couples, id)
	return nil
}

type codes struct{ s *Store }

func (r codes) Create(ctx context.Context, code *models.VerificationCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *code
	r.s.codes[c.ID] = &c
	return nil
}

func (r codes) Find(ctx context.Context, email, code string) (*models.VerificationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *models.VerificationCode
	for _, c := range r.s.codes {
		if c.Email == email && c.Code == code && (found == nil || c.CreatedAt.After(found.CreatedAt)) {
			found = c
		}
	}
	if found == nil {
		return nil, fmt.Errorf("verification code not found: %w", repository.ErrNotFound)
	}
	cc := *found
	return &cc, nil
}

func (r codes) Delete(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.codes[id]; !ok {
		return false, nil
	}
	delete(r.s.codes, id)
	return true, nil
}

func (r codes) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, c := range r.s.codes {
		if c.ExpiresAt.Before(now) {
			delete(r.s.codes, id)
			n++
		}
	}
	return n, nil
}

type roulette struct{ s *Store }

func (r roulette) Create(ctx context.Context, entry *models.RouletteEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[entry.UserID]; !ok {
		return errUserNotFound()
	}
	e := *entry
	r.s.roulette = append(r.s.roulette, &e)
	return nil
}

func (r roulette) ListByUser(ctx context.Context, userID string, limit int) ([]*models.RouletteEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entries := []*models.RouletteEntry{}
	for i := len(r.s.roulette) - 1; i >= 0 && len(entries) < limit; i-- {
		if e := r.s.roulette[i]; e.UserID == userID {
			ec := *e
			entries = append(entries, &ec)
		}
	}
	return entries, nil
}

type usage struct{ s *Store }

func (r usage) ReplaceDay(ctx context.Context, userID string, day time.Time, stats []models.AppUsage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return errUserNotFound()
	}
	r.s.usage[usageKey{userID, day.Format(time.DateOnly)}] = append([]models.AppUsage(nil), stats...)
	return nil
}

func (r usage) ListDay(ctx context.Context, userID string, day time.Time) ([]models.AppUsage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := append([]models.AppUsage{}, r.s.usage[usageKey{userID, day.Format(time.DateOnly)}]...)
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].ForegroundMs != stats[j].ForegroundMs {
			return stats[i].ForegroundMs > stats[j].ForegroundMs
		}
		return stats[i].PackageName < stats[j].PackageName
	})
	return stats, nil
}
