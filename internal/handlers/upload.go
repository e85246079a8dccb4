package handlers

import (
	"net/http"

	"heartsync-backend/internal/services"
)

// UploadHandler handles anonymous profile image uploads made before registration
type UploadHandler struct {
	responder
	photoService   *services.PhotoService
	maxUploadBytes int64
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(photoService *services.PhotoService, maxUploadBytes int64, development bool) *UploadHandler {
	return &UploadHandler{
		responder:      responder{development: development},
		photoService:   photoService,
		maxUploadBytes: maxUploadBytes,
	}
}

// UploadResponse carries the URL of a stored image
type UploadResponse struct {
	ImageURL string `json:"imageUrl"`
}

// Upload handles POST /upload with multipart field profile_image
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	filename, data, err := readUpload(w, r, services.FieldProfileImage, h.maxUploadBytes)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	url, err := h.photoService.Upload(r.Context(), services.FieldProfileImage, filename, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, UploadResponse{ImageURL: url})
}
