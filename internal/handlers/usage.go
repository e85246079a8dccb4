package handlers

import (
	"net/http"

	"heartsync-backend/internal/middleware"
	"heartsync-backend/internal/services"
)

// UsageHandler handles app usage reports from the device
type UsageHandler struct {
	responder
	usageService *services.UsageService
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(usageService *services.UsageService, development bool) *UsageHandler {
	return &UsageHandler{
		responder:    responder{development: development},
		usageService: usageService,
	}
}

// Report handles POST /usage/report
func (h *UsageHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req services.UsageReportRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	report, err := h.usageService.Report(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Today handles GET /usage/today?tzOffsetMinutes=
func (h *UsageHandler) Today(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "tzOffsetMinutes", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	report, err := h.usageService.Today(r.Context(), middleware.GetUserID(r.Context()), offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Partner handles GET /usage/partner?tzOffsetMinutes=
func (h *UsageHandler) Partner(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "tzOffsetMinutes", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	report, err := h.usageService.PartnerToday(r.Context(), middleware.GetUserID(r.Context()), offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
