package handlers

import (
	"errors"
	"io"
	"net/http"

	"heartsync-backend/internal/apperr"
	"heartsync-backend/internal/middleware"
	"heartsync-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// UserHandler handles profile HTTP requests
type UserHandler struct {
	responder
	userService    *services.UserService
	photoService   *services.PhotoService
	maxUploadBytes int64
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService, photoService *services.PhotoService, maxUploadBytes int64, development bool) *UserHandler {
	return &UserHandler{
		responder:      responder{development: development},
		userService:    userService,
		photoService:   photoService,
		maxUploadBytes: maxUploadBytes,
	}
}

// Me handles GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(user))
}

// Update handles PUT /users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.userService.Update(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(user))
}

// Delete handles DELETE /users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.userService.Delete(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "User deleted"})
}

// PushTokenRequest registers a device for push notifications
type PushTokenRequest struct {
	PushToken string `json:"pushToken"`
}

// SetPushToken handles PUT /users/me/push-token
func (h *UserHandler) SetPushToken(w http.ResponseWriter, r *http.Request) {
	var req PushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.userService.SetPushToken(r.Context(), middleware.GetUserID(r.Context()), req.PushToken); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Push token updated"})
}

// AvatarResponse is returned after an avatar upload
type AvatarResponse struct {
	FilePath string `json:"filePath"`
}

// UploadAvatar handles POST /users/{id}/avatar
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	filename, data, err := readUpload(w, r, services.FieldAvatar, h.maxUploadBytes)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	url, err := h.photoService.SetAvatar(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), filename, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	log.Info().Str("user_id", chi.URLParam(r, "id")).Str("url", url).Msg("Avatar updated")
	respondJSON(w, http.StatusOK, AvatarResponse{FilePath: url})
}

// readUpload reads one multipart file field, bounded by maxBytes
func readUpload(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, apperr.InvalidRequest("file exceeds %d bytes", maxBytes)
		}
		return "", nil, apperr.InvalidRequest("no file uploaded")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, apperr.InvalidRequest("no file uploaded")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, apperr.Internal("failed to read upload", err)
	}
	return header.Filename, data, nil
}
