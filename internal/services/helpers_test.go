package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"heartsync-backend/internal/mail"
	"heartsync-backend/internal/models"
	"heartsync-backend/internal/repository/memstore"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type notification struct {
	UserID string
	Msg    WSMessage
	Alert  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(ctx context.Context, userID string, msg WSMessage, alert string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{UserID: userID, Msg: msg, Alert: alert})
}

func (n *fakeNotifier) last() notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

func newTestUserService(store *memstore.Store, notifier Notifier) *UserService {
	svc := NewUserService(store, notifier, UserServiceConfig{
		JWTSecret:      "test-secret",
		TokenTTL:       7 * 24 * time.Hour,
		BcryptCost:     bcrypt.MinCost,
		MinPasswordLen: 6,
	})
	svc.now = func() time.Time { return testNow }
	return svc
}

func registerUser(t *testing.T, svc *UserService, name, email string) *models.User {
	t.Helper()
	res, err := svc.Register(context.Background(), RegisterRequest{
		Name:      name,
		Email:     email,
		BirthDate: "1995-04-12",
		Password:  "secret123",
	})
	require.NoError(t, err)
	return res.User
}
