package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }
func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := New(Config{})

	assert.ErrorIs(t, s.Register("@every 1h", nil), ErrNilJob)
	require.NoError(t, s.Register("@every 1h", &countingJob{name: "a"}))
	assert.ErrorIs(t, s.Register("@every 1h", &countingJob{name: "a"}), ErrJobAlreadyExists)
	assert.Error(t, s.Register("not a spec", &countingJob{name: "b"}))

	// five and six field specs are both accepted
	require.NoError(t, s.Register("*/5 * * * *", &countingJob{name: "c"}))
	require.NoError(t, s.Register("30 * * * * *", &countingJob{name: "d"}))

	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_RunNowRecordsResult(t *testing.T) {
	s := New(Config{JobTimeout: time.Second})
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("boom")}
	require.NoError(t, s.Register("@every 1h", ok))
	require.NoError(t, s.Register("@every 1h", bad))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(1), ok.runs.Load())

	_, err = s.RunNow(context.Background(), "bad")
	assert.EqualError(t, err, "boom")
	last, found := s.LastResult("bad")
	require.True(t, found)
	assert.False(t, last.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := New(Config{})
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register("@every 1s", job))
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrSchedulerAlreadyRunning)

	next, ok := s.NextRun("tick")
	require.True(t, ok)
	assert.False(t, next.IsZero())

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
