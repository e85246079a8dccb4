package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"heartsync-backend/internal/apperr"
	"heartsync-backend/internal/metrics"
	"heartsync-backend/internal/models"
	"heartsync-backend/internal/repository"
	"heartsync-backend/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	heartcodeLength      = 8
	codeChars            = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxHeartcodeAttempts = 10
	maxInsertAttempts    = 3
	maxDeleteAttempts    = 3
	dateLayout           = "2006-01-02"
)

var errInvalidCredentials = apperr.Unauthorized("invalid email or password")

// UserServiceConfig holds token and password settings
type UserServiceConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	BcryptCost     int
	MinPasswordLen int
}

// UserService handles accounts, credentials and session tokens
type UserService struct {
	store    repository.Store
	notifier Notifier
	cfg      UserServiceConfig

	now          func() time.Time
	newHeartcode func() (string, error)

	dummyOnce sync.Once
	dummyHash []byte
}

// NewUserService creates a new user service. notifier may be nil.
func NewUserService(store repository.Store, notifier Notifier, cfg UserServiceConfig) *UserService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &UserService{
		store:        store,
		notifier:     notifier,
		cfg:          cfg,
		now:          time.Now,
		newHeartcode: func() (string, error) { return randomCode(heartcodeLength, codeChars) },
	}
}

// Claims is the session token payload
type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// RegisterRequest represents a registration
type RegisterRequest struct {
	Name      string  `json:"nome" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,email,max=254"`
	BirthDate string  `json:"dataNascimento" validate:"required,datetime=2006-01-02"`
	Password  string  `json:"senha" validate:"required,max=72"`
	PhotoURL  *string `json:"photoUrl" validate:"omitempty,url"`
}

// LoginRequest represents a login. senha is accepted as an alias of password.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Senha    string `json:"senha"`
}

// UpdateUserRequest holds the profile fields to change; nil fields are kept
type UpdateUserRequest struct {
	Name      *string `json:"nome" validate:"omitempty,min=1,max=100"`
	Email     *string `json:"email" validate:"omitempty,email,max=254"`
	BirthDate *string `json:"dataNascimento" validate:"omitempty,datetime=2006-01-02"`
}

// AuthResult is returned by register and login
type AuthResult struct {
	User  *models.User
	Token string
}

// randomCode draws length characters from alphabet with crypto/rand
func randomCode(length int, alphabet string) (string, error) {
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to read random: %w", err)
		}
		code[i] = alphabet[n.Int64()]
	}
	return string(code), nil
}

// GenerateUniqueHeartcode returns a heartcode no existing user holds
func (s *UserService) GenerateUniqueHeartcode(ctx context.Context) (string, error) {
	for i := 0; i < maxHeartcodeAttempts; i++ {
		code, err := s.newHeartcode()
		if err != nil {
			return "", err
		}
		exists, err := s.store.Users().HeartcodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check heartcode existence: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique heartcode after %d attempts", maxHeartcodeAttempts)
}

// GenerateJWT signs a session token for user
func (s *UserService) GenerateJWT(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		ID:    user.ID,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT validates a token and returns its claims
func (s *UserService) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid || claims.ID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Register creates an account and signs its first token
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if len(req.Password) < s.cfg.MinPasswordLen {
		return nil, apperr.InvalidRequest("senha must be at least %d characters", s.cfg.MinPasswordLen)
	}

	email := normalizeEmail(req.Email)
	birthDate, _ := time.Parse(dateLayout, req.BirthDate)

	// Check email before paying for bcrypt
	if _, err := s.store.Users().GetByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal("failed to check email", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		BirthDate:    birthDate,
		PasswordHash: string(hash),
		PhotoURL:     req.PhotoURL,
		HasPhoto:     req.PhotoURL != nil && *req.PhotoURL != "",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// A concurrent registration can still take the heartcode between check and insert
	for attempt := 1; ; attempt++ {
		user.Heartcode, err = s.GenerateUniqueHeartcode(ctx)
		if err != nil {
			return nil, apperr.Internal("failed to generate heartcode", err)
		}

		err = s.store.Users().Create(ctx, user)
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, repository.ErrEmailTaken):
			return nil, apperr.Conflict("email already registered")
		case errors.Is(err, repository.ErrHeartcodeTaken) && attempt < maxInsertAttempts:
			log.Warn().Str("heartcode", user.Heartcode).Msg("Heartcode collision on insert, retrying")
			continue
		default:
			return nil, apperr.Internal("failed to create user", err)
		}
	}

	token, err := s.GenerateJWT(user)
	if err != nil {
		return nil, apperr.Internal("failed to generate token", err)
	}

	metrics.RegistrationsTotal.Inc()
	log.Info().Str("user_id", user.ID).Str("heartcode", user.Heartcode).Msg("User registered")

	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies credentials and issues a new token. Unknown emails and wrong
// passwords fail the same way.
func (s *UserService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	password := req.Password
	if password == "" {
		password = req.Senha
	}
	email := normalizeEmail(req.Email)
	if email == "" || password == "" {
		return nil, apperr.InvalidRequest("email and password are required")
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.compareDummy(password)
			return nil, errInvalidCredentials
		}
		return nil, apperr.Internal("failed to get user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}

	token, err := s.GenerateJWT(user)
	if err != nil {
		return nil, apperr.Internal("failed to generate token", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// compareDummy spends one bcrypt comparison at the configured cost so unknown
// emails take as long as wrong passwords.
func (s *UserService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("heartsync-dummy-password"), s.cfg.BcryptCost)
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate dummy password hash")
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
	}
}

// GetByID returns a user
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "user not found", "failed to get user")
	}
	return user, nil
}

// Update changes the caller's profile
func (s *UserService) Update(ctx context.Context, callerID, userID string, req UpdateUserRequest) (*models.User, error) {
	if err := requireOwner(callerID, userID); err != nil {
		return nil, err
	}
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		user.Email = normalizeEmail(*req.Email)
	}
	if req.BirthDate != nil {
		user.BirthDate, _ = time.Parse(dateLayout, *req.BirthDate)
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.store.Users().UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, storeErr(err, "user not found", "failed to update user")
	}
	return user, nil
}

// SetPhoto records the stored photo URL on the caller's profile
func (s *UserService) SetPhoto(ctx context.Context, userID, photoURL string) error {
	if err := s.store.Users().SetPhoto(ctx, userID, photoURL); err != nil {
		return storeErr(err, "user not found", "failed to update photo")
	}
	return nil
}

// SetPushToken registers the APNs device token; an empty token clears it
func (s *UserService) SetPushToken(ctx context.Context, userID, pushToken string) error {
	var tok *string
	if t := strings.TrimSpace(pushToken); t != "" {
		tok = &t
	}
	if err := s.store.Users().SetPushToken(ctx, userID, tok); err != nil {
		return storeErr(err, "user not found", "failed to update push token")
	}
	return nil
}

// Delete removes the caller's account. The partner, if any, is disconnected in
// the same transaction; the couple, roulette and usage rows cascade.
func (s *UserService) Delete(ctx context.Context, callerID, userID string) error {
	if err := requireOwner(callerID, userID); err != nil {
		return err
	}

	var partnerID string
	var err error
	for attempt := 0; attempt < maxDeleteAttempts; attempt++ {
		err = s.store.WithTx(ctx, func(tx repository.Tx) error {
			var err error
			partnerID, err = s.deleteLocked(ctx, tx, userID)
			return err
		})
		if !errors.Is(err, errCoupleChanged) {
			break
		}
	}
	if err != nil {
		return storeErr(err, "user not found", "failed to delete user")
	}

	log.Info().Str("user_id", userID).Str("partner_id", partnerID).Msg("User deleted")

	if partnerID != "" && s.notifier != nil {
		s.notifier.Notify(ctx, partnerID, WSMessage{Type: EventCoupleDisconnected}, "Your partner closed their account")
	}
	return nil
}

// errCoupleChanged means a pairing committed between reading the couple and locking its rows
var errCoupleChanged = errors.New("couple changed while deleting user")

// deleteLocked locks every row whose connected flag the delete can touch, in
// the same id order LockPair uses, then re-reads the couple under those locks.
// Connect and Disconnect lock both members too, so the couple cannot change
// between the re-read and the commit.
func (s *UserService) deleteLocked(ctx context.Context, tx repository.Tx, userID string) (string, error) {
	before, err := findCouple(ctx, tx.Couples(), userID)
	if err != nil {
		return "", err
	}
	if before != nil {
		if _, _, err := tx.Users().LockPair(ctx, before.UserAID, before.UserBID); err != nil {
			return "", err
		}
	} else if _, err := tx.Users().Lock(ctx, userID); err != nil {
		return "", err
	}

	couple, err := findCouple(ctx, tx.Couples(), userID)
	if err != nil {
		return "", err
	}
	if (before == nil) != (couple == nil) || (couple != nil && couple.ID != before.ID) {
		return "", errCoupleChanged
	}

	var partnerID string
	if couple != nil {
		partnerID = couple.PartnerOf(userID)
		if err := tx.Users().SetConnected(ctx, partnerID, false); err != nil {
			return "", err
		}
	}
	return partnerID, tx.Users().Delete(ctx, userID)
}

// findCouple returns the user's couple, or nil when they are not connected
func findCouple(ctx context.Context, couples repository.Couples, userID string) (*models.Couple, error) {
	couple, err := couples.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return couple, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
