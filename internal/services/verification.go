package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"heartsync-backend/internal/apperr"
	"heartsync-backend/internal/mail"
	"heartsync-backend/internal/metrics"
	"heartsync-backend/internal/models"
	"heartsync-backend/internal/repository"
	"heartsync-backend/internal/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const verificationCodeLength = 6

var errInvalidCode = apperr.InvalidRequest("invalid verification code")

// VerificationService issues and consumes email verification codes
type VerificationService struct {
	store  repository.Store
	mailer mail.Mailer
	ttl    time.Duration

	now     func() time.Time
	newCode func() (string, error)
}

// NewVerificationService creates a verification service; codes expire after ttl
func NewVerificationService(store repository.Store, mailer mail.Mailer, ttl time.Duration) *VerificationService {
	return &VerificationService{
		store:   store,
		mailer:  mailer,
		ttl:     ttl,
		now:     time.Now,
		newCode: func() (string, error) { return randomCode(verificationCodeLength, "0123456789") },
	}
}

// SendCodeRequest represents a request for a verification email
type SendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyCodeRequest represents a code submitted for verification
type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

// Send stores a fresh code and emails it. The code is removed again if delivery fails.
func (s *VerificationService) Send(ctx context.Context, req SendCodeRequest) error {
	if err := validation.ValidateStruct(&req); err != nil {
		return err
	}

	code, err := s.newCode()
	if err != nil {
		return apperr.Internal("failed to generate code", err)
	}

	now := s.now().UTC()
	vc := &models.VerificationCode{
		ID:        uuid.New().String(),
		Email:     normalizeEmail(req.Email),
		Code:      code,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.store.VerificationCodes().Create(ctx, vc); err != nil {
		return apperr.Internal("failed to store verification code", err)
	}

	msg := mail.Message{
		To:      vc.Email,
		Subject: "Seu código de verificação",
		Body:    fmt.Sprintf("Seu código de verificação é: %s\n\nEle expira em %d minutos.", code, int(s.ttl.Minutes())),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		metrics.VerificationEmailsTotal.WithLabelValues("failed").Inc()
		if _, derr := s.store.VerificationCodes().Delete(ctx, vc.ID); derr != nil {
			log.Error().Err(derr).Str("email", vc.Email).Msg("Failed to remove undelivered verification code")
		}
		return apperr.Internal("failed to send verification email", err)
	}

	metrics.VerificationEmailsTotal.WithLabelValues("sent").Inc()
	log.Info().Str("email", vc.Email).Time("expires_at", vc.ExpiresAt).Msg("Verification code sent")
	return nil
}

// Verify consumes a code. Each code succeeds at most once.
func (s *VerificationService) Verify(ctx context.Context, req VerifyCodeRequest) error {
	if err := validation.ValidateStruct(&req); err != nil {
		return err
	}

	codes := s.store.VerificationCodes()
	vc, err := codes.Find(ctx, normalizeEmail(req.Email), req.Code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errInvalidCode
		}
		return apperr.Internal("failed to look up verification code", err)
	}

	if vc.Expired(s.now()) {
		if _, err := codes.Delete(ctx, vc.ID); err != nil {
			log.Error().Err(err).Str("code_id", vc.ID).Msg("Failed to delete expired verification code")
		}
		return apperr.InvalidRequest("verification code has expired")
	}

	// Losing a concurrent verify leaves nothing to delete
	deleted, err := codes.Delete(ctx, vc.ID)
	if err != nil {
		return apperr.Internal("failed to consume verification code", err)
	}
	if !deleted {
		return errInvalidCode
	}
	return nil
}

// PurgeExpired deletes every code past its expiry
func (s *VerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.VerificationCodes().DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge verification codes: %w", err)
	}
	metrics.VerificationCodesPurged.Add(float64(n))
	return n, nil
}
