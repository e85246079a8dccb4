package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"heartsync-backend/internal/apperr"
	"heartsync-backend/internal/repository/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegister(t *testing.T) {
	svc := newTestUserService(memstore.New(), nil)

	res, err := svc.Register(context.Background(), RegisterRequest{
		Name:      "Ana",
		Email:     "  Ana@Example.com ",
		BirthDate: "1995-04-12",
		Password:  "secret123",
	})
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", res.User.Email)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{8}$`), res.User.Heartcode)
	assert.NotEqual(t, "secret123", res.User.PasswordHash)
	assert.Equal(t, 0, res.User.Streak)
	assert.False(t, res.User.Connected)

	claims, err := svc.ValidateJWT(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.ID)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, testNow.Add(7*24*time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := memstore.New()
	svc := newTestUserService(store, nil)
	first := registerUser(t, svc, "Ana", "ana@example.com")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Name:      "Other",
		Email:     "ANA@example.com",
		BirthDate: "1990-01-01",
		Password:  "another1",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	u, err := store.Users().GetByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, u.ID)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestUserService(memstore.New(), nil)

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing name", RegisterRequest{Email: "a@example.com", BirthDate: "1995-04-12", Password: "secret123"}},
		{"bad email", RegisterRequest{Name: "A", Email: "nope", BirthDate: "1995-04-12", Password: "secret123"}},
		{"bad date", RegisterRequest{Name: "A", Email: "a@example.com", BirthDate: "12/04/1995", Password: "secret123"}},
		{"short password", RegisterRequest{Name: "A", Email: "a@example.com", BirthDate: "1995-04-12", Password: "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
		})
	}
}

func TestRegisterRetriesHeartcodeCollision(t *testing.T) {
	store := memstore.New()
	svc := newTestUserService(store, nil)

	codes := []string{"AAAA1111", "AAAA1111", "BBBB2222"}
	svc.newHeartcode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first := registerUser(t, svc, "Ana", "ana@example.com")
	second := registerUser(t, svc, "Bia", "bia@example.com")

	assert.Equal(t, "AAAA1111", first.Heartcode)
	assert.Equal(t, "BBBB2222", second.Heartcode)
}

func TestGenerateUniqueHeartcodeGivesUp(t *testing.T) {
	svc := newTestUserService(memstore.New(), nil)
	registerUser(t, svc, "Ana", "ana@example.com")

	taken, err := svc.store.Users().GetByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)

	calls := 0
	svc.newHeartcode = func() (string, error) {
		calls++
		return taken.Heartcode, nil
	}
	_, err = svc.GenerateUniqueHeartcode(context.Background())
	assert.Error(t, err)
	assert.Equal(t, maxHeartcodeAttempts, calls)
}

func TestLogin(t *testing.T) {
	svc := newTestUserService(memstore.New(), nil)
	user := registerUser(t, svc, "Ana", "ana@example.com")

	res, err := svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)
	assert.NotEmpty(t, res.Token)

	res, err = svc.Login(context.Background(), LoginRequest{Email: "ANA@example.com", Senha: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)

	_, err = svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "wrong-pass"})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = svc.Login(context.Background(), LoginRequest{Email: "ana@example.com"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
}

func TestLoginUnknownEmailPaysForBcrypt(t *testing.T) {
	svc := newTestUserService(memstore.New(), nil)
	registerUser(t, svc, "Ana", "ana@example.com")

	_, wrongPass := svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "wrong-pass"})
	assert.Nil(t, svc.dummyHash)

	_, unknown := svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	require.Error(t, unknown)
	assert.Equal(t, wrongPass.Error(), unknown.Error())

	require.NotNil(t, svc.dummyHash)
	cost, err := bcrypt.Cost(svc.dummyHash)
	require.NoError(t, err)
	assert.Equal(t, svc.cfg.BcryptCost, cost)
}

func TestValidateJWT(t *testing.T) {
	svc := newTestUserService(memstore.New(), nil)
	user := registerUser(t, svc, "Ana", "ana@example.com")

	token, err := svc.GenerateJWT(user)
	require.NoError(t, err)

	_, err = svc.ValidateJWT(token + "x")
	assert.Error(t, err)

	other := newTestUserService(memstore.New(), nil)
	other.cfg.JWTSecret = "different"
	_, err = other.ValidateJWT(token)
	assert.Error(t, err)

	svc.now = func() time.Time { return testNow.Add(8 * 24 * time.Hour) }
	_, err = svc.ValidateJWT(token)
	assert.Error(t, err)
}

func TestUpdate(t *testing.T) {
	svc := newTestUserService(memstore.New(), nil)
	ana := registerUser(t, svc, "Ana", "ana@example.com")
	bia := registerUser(t, svc, "Bia", "bia@example.com")

	name := "Ana Clara"
	updated, err := svc.Update(context.Background(), ana.ID, ana.ID, UpdateUserRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ana Clara", updated.Name)
	assert.Equal(t, "ana@example.com", updated.Email)

	_, err = svc.Update(context.Background(), bia.ID, ana.ID, UpdateUserRequest{Name: &name})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	email := "bia@example.com"
	_, err = svc.Update(context.Background(), ana.ID, ana.ID, UpdateUserRequest{Email: &email})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestSetPushToken(t *testing.T) {
	svc := newTestUserService(memstore.New(), nil)
	ana := registerUser(t, svc, "Ana", "ana@example.com")

	require.NoError(t, svc.SetPushToken(context.Background(), ana.ID, "device-token"))
	u, err := svc.GetByID(context.Background(), ana.ID)
	require.NoError(t, err)
	require.NotNil(t, u.PushToken)
	assert.Equal(t, "device-token", *u.PushToken)

	require.NoError(t, svc.SetPushToken(context.Background(), ana.ID, ""))
	u, err = svc.GetByID(context.Background(), ana.ID)
	require.NoError(t, err)
	assert.Nil(t, u.PushToken)
}

func TestDeleteConnectedUser(t *testing.T) {
	store := memstore.New()
	notifier := &fakeNotifier{}
	users := newTestUserService(store, notifier)
	pairs := NewPairService(store, notifier)

	ana := registerUser(t, users, "Ana", "ana@example.com")
	bia := registerUser(t, users, "Bia", "bia@example.com")
	_, err := pairs.Connect(context.Background(), ana.ID, ConnectRequest{UserHeartCode: ana.Heartcode, PartnerHeartCode: bia.Heartcode})
	require.NoError(t, err)

	err = users.Delete(context.Background(), bia.ID, ana.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	require.NoError(t, users.Delete(context.Background(), ana.ID, ana.ID))

	_, err = users.GetByID(context.Background(), ana.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	partner, err := users.GetByID(context.Background(), bia.ID)
	require.NoError(t, err)
	assert.False(t, partner.Connected)
	assert.Equal(t, 0, store.CoupleCount())

	last := notifier.last()
	assert.Equal(t, bia.ID, last.UserID)
	assert.Equal(t, EventCoupleDisconnected, last.Msg.Type)

	err = users.Delete(context.Background(), ana.ID, ana.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
