package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(ctx context.Context) (int64, error) {
	p.calls.Add(1)
	return 3, p.err
}

func TestAddCodePurgeRejectsBadSpec(t *testing.T) {
	s := NewScheduler()
	assert.Error(t, s.AddCodePurge("every now and then", &countingPurger{}))
}

func TestSchedulerRunsPurge(t *testing.T) {
	s := NewScheduler()
	p := &countingPurger{}
	require.NoError(t, s.AddCodePurge("@every 1s", p))

	s.Start()
	assert.Eventually(t, func() bool { return p.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestRunCodePurgeSurvivesErrors(t *testing.T) {
	p := &countingPurger{err: errors.New("db down")}
	RunCodePurge(p)
	assert.Equal(t, int32(1), p.calls.Load())
}
