package mail

import (
	"context"
	"errors"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"heartsync-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gobreaker "github.com/sony/gobreaker/v2"
)

type failingMailer struct {
	calls int
	err   error
}

func (f *failingMailer) Send(ctx context.Context, msg Message) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return errors.New("connection refused")
}

func TestBreakerMailerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &failingMailer{}
	m := NewBreakerMailer(next, BreakerSettings{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Hour,
		FailureThreshold: 3,
	})

	for i := 0; i < 3; i++ {
		require.Error(t, m.Send(context.Background(), Message{To: "a@example.com"}))
	}
	assert.Equal(t, gobreaker.StateOpen, m.State())

	err := m.Send(context.Background(), Message{To: "a@example.com"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, next.calls)
}

func TestBreakerMailerIgnoresRejectedRecipients(t *testing.T) {
	rejected := recipientErr(&textproto.Error{Code: 550, Msg: "5.1.1 user unknown"})
	next := &failingMailer{err: rejected}
	m := NewBreakerMailer(next, BreakerSettings{
		Name:             "test-rcpt",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Hour,
		FailureThreshold: 3,
	})

	for i := 0; i < 10; i++ {
		err := m.Send(context.Background(), Message{To: "typo@example.com"})
		assert.ErrorIs(t, err, ErrRecipientRejected)
	}
	assert.Equal(t, gobreaker.StateClosed, m.State())
	assert.Equal(t, 10, next.calls)
}

func TestRecipientErr(t *testing.T) {
	permanent := recipientErr(&textproto.Error{Code: 550, Msg: "mailbox unavailable"})
	assert.ErrorIs(t, permanent, ErrRecipientRejected)
	var reply *textproto.Error
	require.ErrorAs(t, permanent, &reply)
	assert.Equal(t, 550, reply.Code)

	assert.NotErrorIs(t, recipientErr(&textproto.Error{Code: 451, Msg: "try again later"}), ErrRecipientRejected)
	assert.NotErrorIs(t, recipientErr(errors.New("broken pipe")), ErrRecipientRejected)
}

func TestNewWithoutHostLogs(t *testing.T) {
	m := New(config.SMTPConfig{})
	assert.IsType(t, LogMailer{}, m)
	assert.NoError(t, m.Send(context.Background(), Message{To: "a@example.com", Subject: "hi", Body: "code"}))
}

func TestSMTPMailerBuild(t *testing.T) {
	m := &SMTPMailer{From: "no-reply@heartsync.app", FromName: "HeartSync"}
	raw := m.build(Message{To: "ana@example.com", Subject: "Código", Body: "line1\nline2"})

	assert.Contains(t, raw, "From: HeartSync <no-reply@heartsync.app>\r\n")
	assert.Contains(t, raw, "To: ana@example.com\r\n")
	assert.Contains(t, raw, "Subject: =?utf-8?q?C=C3=B3digo?=\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nline1\r\nline2"))
}
