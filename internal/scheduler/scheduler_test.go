package scheduler

import (
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	calls int32
	err   error
}

func (j *countingJob) Run() error {
	atomic.AddInt32(&j.calls, 1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestAddJobRejectsInvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a cron expression", &countingJob{})
	assert.Error(t, err)
}

func TestAddJobAcceptsSecondsSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("0 */5 * * * *", &countingJob{}))
}

func TestRunNowExecutesImmediately(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))

	job.err = assert.AnError
	assert.Error(t, s.RunNow(job))
}

func TestScheduledFailureDoesNotPanic(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: assert.AnError}

	assert.NotPanics(t, func() { s.runJob(job) })
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
}
