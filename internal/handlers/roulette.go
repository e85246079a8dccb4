package handlers

import (
	"net/http"
	"time"

	"heartsync-backend/internal/middleware"
	"heartsync-backend/internal/models"
	"heartsync-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// RouletteHandler handles roulette and streak HTTP requests
type RouletteHandler struct {
	responder
	rouletteService *services.RouletteService
}

// NewRouletteHandler creates a new roulette handler
func NewRouletteHandler(rouletteService *services.RouletteService, development bool) *RouletteHandler {
	return &RouletteHandler{
		responder:       responder{development: development},
		rouletteService: rouletteService,
	}
}

// RouletteEntryResponse is one stored activity
type RouletteEntryResponse struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	ActivityDate    string    `json:"activityDate"`
	Activity        string    `json:"activity"`
	LockDuration    int       `json:"lockDuration"`
	NextAvailableAt time.Time `json:"nextAvailableAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newRouletteEntryResponse(e *models.RouletteEntry) RouletteEntryResponse {
	return RouletteEntryResponse{
		ID:              e.ID,
		UserID:          e.UserID,
		ActivityDate:    e.ActivityDate.Format(dateLayout),
		Activity:        e.Activity,
		LockDuration:    e.LockDuration,
		NextAvailableAt: e.NextAvailableAt,
		CreatedAt:       e.CreatedAt,
	}
}

// Save handles POST /roulette/save
func (h *RouletteHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req services.SaveActivityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	entry, err := h.rouletteService.Save(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newRouletteEntryResponse(entry))
}

// UpdateStreak handles POST /roulette/update-streak
func (h *RouletteHandler) UpdateStreak(w http.ResponseWriter, r *http.Request) {
	var req services.StreakRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	st, err := h.rouletteService.UpdateStreak(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// GetStreak handles GET /roulette/streak/{userId}
func (h *RouletteHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	st, err := h.rouletteService.GetStreak(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// ResetStreak handles POST /roulette/reset-streak
func (h *RouletteHandler) ResetStreak(w http.ResponseWriter, r *http.Request) {
	var req services.StreakRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	st, err := h.rouletteService.ResetStreak(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// History handles GET /roulette/history/{userId}?limit=
func (h *RouletteHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	entries, err := h.rouletteService.History(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "userId"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := make([]RouletteEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, newRouletteEntryResponse(e))
	}
	respondJSON(w, http.StatusOK, resp)
}
