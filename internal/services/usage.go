package services

import (
	"context"
	"strings"
	"time"

	"heartsync-backend/internal/apperr"
	"heartsync-backend/internal/models"
	"heartsync-backend/internal/repository"
	"heartsync-backend/internal/validation"
)

// UsageService stores the per-day app usage the mobile app reports
type UsageService struct {
	store repository.Store
	now   func() time.Time
}

// NewUsageService creates a usage service
func NewUsageService(store repository.Store) *UsageService {
	return &UsageService{store: store, now: time.Now}
}

// UsageStat is one app as read from the device usage stats API
type UsageStat struct {
	PackageName           string `json:"packageName" validate:"required,max=255"`
	AppName               string `json:"appName" validate:"max=255"`
	TotalTimeInForeground int64  `json:"totalTimeInForeground"`
	// LastTimeUsed is epoch milliseconds
	LastTimeUsed  int64 `json:"lastTimeUsed"`
	FlaggedSystem bool  `json:"flaggedSystem"`
	Launchable    bool  `json:"launchable"`
	IsSystemApp   *bool `json:"isSystemApp"`
}

// UsageReportRequest represents a device report
type UsageReportRequest struct {
	TZOffsetMinutes int         `json:"tzOffsetMinutes" validate:"min=-840,max=840"`
	Stats           []UsageStat `json:"stats" validate:"max=1000,dive"`
}

// UsageReport is a user's usage for one local day
type UsageReport struct {
	Day                   string            `json:"day"`
	Apps                  []models.AppUsage `json:"apps"`
	TotalTimeInForeground int64             `json:"totalTimeInForeground"`
}

// UTC-14:00 to UTC+14:00, the same bounds the report body enforces
const maxTZOffsetMinutes = 840

func checkTZOffset(minutes int) error {
	if minutes < -maxTZOffsetMinutes || minutes > maxTZOffsetMinutes {
		return apperr.InvalidRequest("tzOffsetMinutes must be between %d and %d", -maxTZOffsetMinutes, maxTZOffsetMinutes)
	}
	return nil
}

// localDay returns local midnight in the client's zone and the same calendar date at UTC midnight
func (s *UsageService) localDay(tzOffsetMinutes int) (midnight, day time.Time) {
	loc := time.FixedZone("client", tzOffsetMinutes*60)
	now := s.now().In(loc)
	midnight = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return midnight, day
}

// FilterToday keeps apps used since midnight with nonzero foreground time.
// A package reported twice keeps its larger foreground time.
func FilterToday(stats []UsageStat, midnight time.Time) []models.AppUsage {
	apps := make([]models.AppUsage, 0, len(stats))
	index := make(map[string]int, len(stats))

	for _, st := range stats {
		if st.TotalTimeInForeground <= 0 {
			continue
		}
		lastUsed := time.UnixMilli(st.LastTimeUsed)
		if lastUsed.Before(midnight) {
			continue
		}

		system := st.FlaggedSystem && !st.Launchable
		if st.IsSystemApp != nil {
			system = *st.IsSystemApp
		}
		name := strings.TrimSpace(st.AppName)
		if name == "" {
			name = st.PackageName
		}

		app := models.AppUsage{
			PackageName:  st.PackageName,
			AppName:      name,
			ForegroundMs: st.TotalTimeInForeground,
			LastTimeUsed: lastUsed.UTC(),
			SystemApp:    system,
		}
		if i, ok := index[st.PackageName]; ok {
			if app.ForegroundMs > apps[i].ForegroundMs {
				apps[i] = app
			}
			continue
		}
		index[st.PackageName] = len(apps)
		apps = append(apps, app)
	}
	return apps
}

func newUsageReport(day time.Time, apps []models.AppUsage) *UsageReport {
	report := &UsageReport{Day: day.Format(dateLayout), Apps: apps}
	if report.Apps == nil {
		report.Apps = []models.AppUsage{}
	}
	for _, a := range apps {
		if !a.SystemApp {
			report.TotalTimeInForeground += a.ForegroundMs
		}
	}
	return report
}

// Report replaces the caller's usage for the current local day
func (s *UsageService) Report(ctx context.Context, userID string, req UsageReportRequest) (*UsageReport, error) {
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}

	midnight, day := s.localDay(req.TZOffsetMinutes)
	apps := FilterToday(req.Stats, midnight)

	if err := s.store.Usage().ReplaceDay(ctx, userID, day, apps); err != nil {
		return nil, storeErr(err, "user not found", "failed to store usage")
	}

	stored, err := s.store.Usage().ListDay(ctx, userID, day)
	if err != nil {
		return nil, apperr.Internal("failed to list usage", err)
	}
	return newUsageReport(day, stored), nil
}

// Today returns the caller's usage for the local day at tzOffsetMinutes
func (s *UsageService) Today(ctx context.Context, userID string, tzOffsetMinutes int) (*UsageReport, error) {
	if err := checkTZOffset(tzOffsetMinutes); err != nil {
		return nil, err
	}
	_, day := s.localDay(tzOffsetMinutes)
	apps, err := s.store.Usage().ListDay(ctx, userID, day)
	if err != nil {
		return nil, apperr.Internal("failed to list usage", err)
	}
	return newUsageReport(day, apps), nil
}

// PartnerToday returns the partner's usage for the same local day
func (s *UsageService) PartnerToday(ctx context.Context, userID string, tzOffsetMinutes int) (*UsageReport, error) {
	if err := checkTZOffset(tzOffsetMinutes); err != nil {
		return nil, err
	}
	couple, err := s.store.Couples().GetByUserID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "you are not connected", "failed to get couple")
	}
	return s.Today(ctx, couple.PartnerOf(userID), tzOffsetMinutes)
}
