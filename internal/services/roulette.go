package services

import (
	"context"
	"strings"
	"time"

	"heartsync-backend/internal/apperr"
	"heartsync-backend/internal/models"
	"heartsync-backend/internal/repository"
	"heartsync-backend/internal/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 100
)

// RouletteService stores daily activities and the streak counter.
// Streak dates come from the client; there is no server-side rollover.
type RouletteService struct {
	store    repository.Store
	notifier Notifier
	now      func() time.Time
}

// NewRouletteService creates a roulette service. notifier may be nil.
func NewRouletteService(store repository.Store, notifier Notifier) *RouletteService {
	return &RouletteService{store: store, notifier: notifier, now: time.Now}
}

// SaveActivityRequest represents a roulette spin result
type SaveActivityRequest struct {
	UserID       string `json:"userId" validate:"required"`
	ActivityDate string `json:"activityDate" validate:"omitempty,datetime=2006-01-02"`
	Activity     string `json:"activity" validate:"required,max=200"`
	LockDuration int    `json:"lockDuration" validate:"min=0,max=604800"`
}

// StreakRequest targets a user's streak; LastStreakDate is only read by UpdateStreak
type StreakRequest struct {
	UserID         string `json:"userId" validate:"required"`
	LastStreakDate string `json:"lastStreakDate" validate:"omitempty,datetime=2006-01-02"`
}

// Streak is the streak state of a user
type Streak struct {
	Streak         int     `json:"streak"`
	LastStreakDate *string `json:"lastStreakDate"`
}

func streakOf(user *models.User) *Streak {
	st := &Streak{Streak: user.Streak}
	if user.LastStreakDate != nil {
		d := user.LastStreakDate.Format(dateLayout)
		st.LastStreakDate = &d
	}
	return st
}

func (s *RouletteService) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Save appends an activity entry for the caller
func (s *RouletteService) Save(ctx context.Context, callerID string, req SaveActivityRequest) (*models.RouletteEntry, error) {
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if err := requireOwner(callerID, req.UserID); err != nil {
		return nil, err
	}

	activityDate := s.today()
	if req.ActivityDate != "" {
		activityDate, _ = time.Parse(dateLayout, req.ActivityDate)
	}

	now := s.now().UTC()
	entry := &models.RouletteEntry{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		ActivityDate:    activityDate,
		Activity:        strings.TrimSpace(req.Activity),
		LockDuration:    req.LockDuration,
		NextAvailableAt: now.Add(time.Duration(req.LockDuration) * time.Second),
		CreatedAt:       now,
	}
	if err := s.store.Roulette().Create(ctx, entry); err != nil {
		return nil, storeErr(err, "user not found", "failed to save activity")
	}
	return entry, nil
}

// UpdateStreak increments the streak and stores the client's date (today when omitted)
func (s *RouletteService) UpdateStreak(ctx context.Context, callerID string, req StreakRequest) (*Streak, error) {
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if err := requireOwner(callerID, req.UserID); err != nil {
		return nil, err
	}

	last := s.today()
	if req.LastStreakDate != "" {
		last, _ = time.Parse(dateLayout, req.LastStreakDate)
	}

	streak, err := s.store.Users().IncrementStreak(ctx, req.UserID, last)
	if err != nil {
		return nil, storeErr(err, "user not found", "failed to update streak")
	}

	log.Debug().Str("user_id", req.UserID).Int("streak", streak).Msg("Streak updated")
	date := last.Format(dateLayout)
	st := &Streak{Streak: streak, LastStreakDate: &date}
	s.notifyPartner(ctx, req.UserID, st)
	return st, nil
}

// GetStreak returns the caller's streak
func (s *RouletteService) GetStreak(ctx context.Context, callerID, userID string) (*Streak, error) {
	if err := requireOwner(callerID, userID); err != nil {
		return nil, err
	}
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user not found", "failed to get user")
	}
	return streakOf(user), nil
}

// ResetStreak sets the streak to zero and clears its date
func (s *RouletteService) ResetStreak(ctx context.Context, callerID string, req StreakRequest) (*Streak, error) {
	if req.UserID == "" {
		return nil, apperr.InvalidRequest("userId is required")
	}
	if err := requireOwner(callerID, req.UserID); err != nil {
		return nil, err
	}
	if err := s.store.Users().SetStreak(ctx, req.UserID, 0, nil); err != nil {
		return nil, storeErr(err, "user not found", "failed to reset streak")
	}

	st := &Streak{Streak: 0}
	s.notifyPartner(ctx, req.UserID, st)
	return st, nil
}

// History returns the caller's latest entries, newest first
func (s *RouletteService) History(ctx context.Context, callerID, userID string, limit int) ([]*models.RouletteEntry, error) {
	if err := requireOwner(callerID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := s.store.Roulette().ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal("failed to list activities", err)
	}
	return entries, nil
}

// notifyPartner pushes the new streak to the partner's socket; streaks never trigger APNs
func (s *RouletteService) notifyPartner(ctx context.Context, userID string, st *Streak) {
	if s.notifier == nil {
		return
	}
	couple, err := s.store.Couples().GetByUserID(ctx, userID)
	if err != nil {
		return
	}
	s.notifier.Notify(ctx, couple.PartnerOf(userID), WSMessage{Type: EventStreakUpdated, From: userID, Data: st}, "")
}
