package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"heartsync-backend/internal/apperr"
	"heartsync-backend/internal/metrics"
	"heartsync-backend/internal/models"
	"heartsync-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	connectionCodePrefix      = "CONN"
	connectionCodeLength      = 8
	maxConnectionCodeAttempts = 5
)

// PairService runs the heartcode pairing workflow
type PairService struct {
	store    repository.Store
	notifier Notifier

	now               func() time.Time
	newConnectionCode func() (string, error)
}

// NewPairService creates a new pair service. notifier may be nil.
func NewPairService(store repository.Store, notifier Notifier) *PairService {
	return &PairService{
		store:    store,
		notifier: notifier,
		now:      time.Now,
		newConnectionCode: func() (string, error) {
			code, err := randomCode(connectionCodeLength, codeChars)
			return connectionCodePrefix + code, err
		},
	}
}

// ConnectRequest represents a request to connect two heartcodes
type ConnectRequest struct {
	UserHeartCode    string `json:"userHeartCode"`
	PartnerHeartCode string `json:"partnerHeartCode"`
}

// ConnectResult is returned after a successful pairing
type ConnectResult struct {
	ConnectionCode string `json:"codigoConexao"`
	UserName       string `json:"userName"`
	PartnerName    string `json:"partnerName"`
	CoupleID       string `json:"coupleId"`
}

// CoupleView is a couple seen from one of its members
type CoupleView struct {
	Couple  *models.Couple
	Partner *models.User
}

// Connect pairs the caller's heartcode with the partner's heartcode
func (s *PairService) Connect(ctx context.Context, callerID string, req ConnectRequest) (*ConnectResult, error) {
	result, err := s.connect(ctx, callerID, req)
	if err != nil {
		metrics.PairingsTotal.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, err
	}
	metrics.PairingsTotal.WithLabelValues("success").Inc()
	return result, nil
}

func (s *PairService) connect(ctx context.Context, callerID string, req ConnectRequest) (*ConnectResult, error) {
	selfCode := strings.ToUpper(strings.TrimSpace(req.UserHeartCode))
	partnerCode := strings.ToUpper(strings.TrimSpace(req.PartnerHeartCode))
	if selfCode == "" || partnerCode == "" {
		return nil, apperr.InvalidRequest("userHeartCode and partnerHeartCode are required")
	}

	// 1. Both heartcodes must resolve
	self, err := s.store.Users().GetByHeartcode(ctx, selfCode)
	if err != nil {
		return nil, storeErr(err, "heartcode not found", "failed to look up heartcode")
	}
	partner, err := s.store.Users().GetByHeartcode(ctx, partnerCode)
	if err != nil {
		return nil, storeErr(err, "partner heartcode not found", "failed to look up heartcode")
	}

	// 2. and 3. Self-pairing by code or by aliasing to one account
	if selfCode == partnerCode {
		return nil, apperr.InvalidRequest("cannot connect to self by code")
	}
	if self.ID == partner.ID {
		return nil, apperr.InvalidRequest("cannot connect to self")
	}

	// The token decides who is asking
	if self.ID != callerID {
		return nil, apperr.Forbidden("userHeartCode does not belong to you")
	}

	var couple *models.Couple
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		// 4. Re-read both flags under row locks
		lockedSelf, lockedPartner, err := tx.Users().LockPair(ctx, self.ID, partner.ID)
		if err != nil {
			return err
		}
		if lockedSelf.Connected {
			return apperr.Conflict("you are already connected")
		}
		if lockedPartner.Connected {
			return apperr.Conflict("partner is already connected")
		}

		code, err := s.generateConnectionCode(ctx, tx.Couples())
		if err != nil {
			return err
		}

		couple = &models.Couple{
			ID:             uuid.New().String(),
			UserAID:        self.ID,
			UserBID:        partner.ID,
			ConnectionCode: code,
			CreatedAt:      s.now().UTC(),
		}
		if err := tx.Couples().Create(ctx, couple); err != nil {
			return err
		}
		if err := tx.Users().SetConnected(ctx, self.ID, true); err != nil {
			return err
		}
		return tx.Users().SetConnected(ctx, partner.ID, true)
	})
	if err != nil {
		return nil, storeErr(err, "user not found", "failed to connect couple")
	}

	log.Info().
		Str("couple_id", couple.ID).
		Str("user_a_id", couple.UserAID).
		Str("user_b_id", couple.UserBID).
		Msg("Couple created")

	if s.notifier != nil {
		s.notifier.Notify(ctx, partner.ID, WSMessage{
			Type: EventCoupleConnected,
			From: self.ID,
			Data: map[string]any{
				"coupleId":      couple.ID,
				"codigoConexao": couple.ConnectionCode,
				"partnerName":   self.Name,
			},
		}, fmt.Sprintf("%s connected with you", self.Name))
	}

	return &ConnectResult{
		ConnectionCode: couple.ConnectionCode,
		UserName:       self.Name,
		PartnerName:    partner.Name,
		CoupleID:       couple.ID,
	}, nil
}

// generateConnectionCode returns a code no couple holds yet
func (s *PairService) generateConnectionCode(ctx context.Context, couples repository.Couples) (string, error) {
	for i := 0; i < maxConnectionCodeAttempts; i++ {
		code, err := s.newConnectionCode()
		if err != nil {
			return "", err
		}
		exists, err := couples.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check connection code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique connection code after %d attempts", maxConnectionCodeAttempts)
}

// GetCouple returns the caller's couple and partner
func (s *PairService) GetCouple(ctx context.Context, userID string) (*CoupleView, error) {
	couple, err := s.store.Couples().GetByUserID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "you are not connected", "failed to get couple")
	}
	partner, err := s.store.Users().GetByID(ctx, couple.PartnerOf(userID))
	if err != nil {
		return nil, storeErr(err, "partner not found", "failed to get partner")
	}
	return &CoupleView{Couple: couple, Partner: partner}, nil
}

// Disconnect deletes the caller's couple and clears both flags
func (s *PairService) Disconnect(ctx context.Context, userID string) error {
	var partnerID string
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		couple, err := tx.Couples().GetByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("you are not connected")
			}
			return err
		}
		partnerID = couple.PartnerOf(userID)

		if _, _, err := tx.Users().LockPair(ctx, couple.UserAID, couple.UserBID); err != nil {
			return err
		}
		if err := tx.Couples().Delete(ctx, couple.ID); err != nil {
			return err
		}
		if err := tx.Users().SetConnected(ctx, couple.UserAID, false); err != nil {
			return err
		}
		return tx.Users().SetConnected(ctx, couple.UserBID, false)
	})
	if err != nil {
		return storeErr(err, "you are not connected", "failed to disconnect couple")
	}

	log.Info().Str("user_id", userID).Str("partner_id", partnerID).Msg("Couple disconnected")

	if s.notifier != nil {
		s.notifier.Notify(ctx, partnerID, WSMessage{Type: EventCoupleDisconnected, From: userID}, "Your partner disconnected")
	}
	return nil
}
