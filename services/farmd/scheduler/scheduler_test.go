package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingTarget struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingTarget) Checkpoint() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *countingTarget) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type outcomes struct {
	mu   sync.Mutex
	errs []error
}

func (o *outcomes) RecordCheckpoint(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func TestRunNowRecordsOutcome(t *testing.T) {
	target := &countingTarget{err: errors.New("boom")}
	rec := &outcomes{}
	s, err := New("@every 1h", target, rec, nil)
	require.NoError(t, err)

	s.RunNow()
	require.Equal(t, 1, target.count())
	require.Len(t, rec.errs, 1)
	require.EqualError(t, rec.errs[0], "boom")
}

func TestSchedulerRunsOnSchedule(t *testing.T) {
	target := &countingTarget{}
	s, err := New("@every 1s", target, nil, nil)
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return target.count() > 0 }, 5*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("not a cron", &countingTarget{}, nil, nil)
	require.Error(t, err)

	_, err = New("@every 1m", nil, nil, nil)
	require.Error(t, err)
}
