package handlers

import (
	"net/http"

	"heartsync-backend/internal/services"
)

// AuthHandler handles registration, login and email verification
type AuthHandler struct {
	responder
	userService         *services.UserService
	verificationService *services.VerificationService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(userService *services.UserService, verificationService *services.VerificationService, development bool) *AuthHandler {
	return &AuthHandler{
		responder:           responder{development: development},
		userService:         userService,
		verificationService: verificationService,
	}
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.userService.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, AuthResponse{User: newUserResponse(res.User), Token: res.Token})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.userService.Login(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, AuthResponse{User: newUserResponse(res.User), Token: res.Token})
}

// SendVerificationCode handles POST /send-verification-code
func (h *AuthHandler) SendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req services.SendCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.verificationService.Send(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{Message: "Verification code sent"})
}

// VerifyCode handles POST /auth/verify-code
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req services.VerifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.verificationService.Verify(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{Message: "Email verified"})
}
