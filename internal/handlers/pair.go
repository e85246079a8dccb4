package handlers

import (
	"net/http"
	"time"

	"heartsync-backend/internal/middleware"
	"heartsync-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// PairHandler handles pairing HTTP requests
type PairHandler struct {
	responder
	pairService *services.PairService
}

// NewPairHandler creates a new pair handler
func NewPairHandler(pairService *services.PairService, development bool) *PairHandler {
	return &PairHandler{
		responder:   responder{development: development},
		pairService: pairService,
	}
}

// ValidateHeartcode handles POST /validate-heartcode
func (h *PairHandler) ValidateHeartcode(w http.ResponseWriter, r *http.Request) {
	var req services.ConnectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	res, err := h.pairService.Connect(r.Context(), userID, req)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Pairing rejected")
		h.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// CoupleResponse is the caller's couple
type CoupleResponse struct {
	ID             string          `json:"id"`
	ConnectionCode string          `json:"codigoConexao"`
	CreatedAt      time.Time       `json:"createdAt"`
	Partner        PartnerResponse `json:"partner"`
}

// GetCouple handles GET /couples/me
func (h *PairHandler) GetCouple(w http.ResponseWriter, r *http.Request) {
	view, err := h.pairService.GetCouple(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CoupleResponse{
		ID:             view.Couple.ID,
		ConnectionCode: view.Couple.ConnectionCode,
		CreatedAt:      view.Couple.CreatedAt,
		Partner:        newPartnerResponse(view.Partner),
	})
}

// Disconnect handles DELETE /couples/me
func (h *PairHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.pairService.Disconnect(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Couple disconnected"})
}
