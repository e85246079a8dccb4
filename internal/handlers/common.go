package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"heartsync-backend/internal/apperr"
	"heartsync-backend/internal/models"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const dateLayout = "2006-01-02"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// MessageResponse is returned by endpoints with nothing else to say
type MessageResponse struct {
	Message string `json:"message"`
}

// respondJSON writes v as JSON with the given status
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// statusFor maps an error kind to its HTTP status. Conflicts are reported as 400.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidRequest, apperr.KindConflict:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// responder writes service errors; internal details are only exposed in development
type responder struct {
	development bool
}

func (h responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	message := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	if kind == apperr.KindInternal {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		if h.development {
			message = err.Error()
		} else {
			message = "Internal server error"
		}
	}

	respondJSON(w, status, ErrorResponse{Error: message, Code: string(kind)})
}

// decodeJSON reads a JSON body into v
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidRequest("request body is required")
		}
		return apperr.InvalidRequest("invalid request body")
	}
	return nil
}

// queryInt reads an integer query parameter, returning def when absent
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.InvalidRequest("%s must be an integer", name)
	}
	return n, nil
}

// UserResponse is the public shape of a user
type UserResponse struct {
	ID             string    `json:"_id"`
	Name           string    `json:"nome"`
	Email          string    `json:"email"`
	BirthDate      string    `json:"dataNascimento"`
	HasPhoto       bool      `json:"hasPhoto"`
	PhotoURL       *string   `json:"photoUrl"`
	Heartcode      string    `json:"heartcode"`
	Connected      bool      `json:"connected"`
	Streak         int       `json:"streak"`
	LastStreakDate *string   `json:"lastStreakDate"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func newUserResponse(u *models.User) UserResponse {
	resp := UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		BirthDate: u.BirthDate.Format(dateLayout),
		HasPhoto:  u.HasPhoto,
		PhotoURL:  u.PhotoURL,
		Heartcode: u.Heartcode,
		Connected: u.Connected,
		Streak:    u.Streak,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.LastStreakDate != nil {
		d := u.LastStreakDate.Format(dateLayout)
		resp.LastStreakDate = &d
	}
	return resp
}

// PartnerResponse is what a user sees of their partner
type PartnerResponse struct {
	ID       string  `json:"_id"`
	Name     string  `json:"nome"`
	HasPhoto bool    `json:"hasPhoto"`
	PhotoURL *string `json:"photoUrl"`
	Streak   int     `json:"streak"`
}

func newPartnerResponse(u *models.User) PartnerResponse {
	return PartnerResponse{ID: u.ID, Name: u.Name, HasPhoto: u.HasPhoto, PhotoURL: u.PhotoURL, Streak: u.Streak}
}
