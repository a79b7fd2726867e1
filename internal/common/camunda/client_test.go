package camunda

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
)

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("rpc error: code = Unavailable desc = connection refused"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("rpc error: code = NotFound desc = job not found"), false},
		{errors.New("permission denied"), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableZeebeError(tt.err))
		})
	}
}

func TestMapZeebeError(t *testing.T) {
	err := mapZeebeError(errors.New("connection refused"), "topology", 2)
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.Contains(t, err.Error(), "after 3 attempts")

	err = mapZeebeError(errors.New("rpc error: code = Unauthenticated"), "topology", 0)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
}

func TestBackoff(t *testing.T) {
	cfg := &RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, backoff(cfg, 0))
	assert.Equal(t, 4*time.Second, backoff(cfg, 2))
	assert.Equal(t, 5*time.Second, backoff(cfg, 3))
	assert.Equal(t, 5*time.Second, backoff(cfg, 70))
}

type fakeWorker struct {
	taskType string
	enabled  bool
	err      error
	closed   *[]string
}

func (f *fakeWorker) GetTaskType() string { return f.taskType }
func (f *fakeWorker) IsEnabled() bool     { return f.enabled }
func (f *fakeWorker) Register() error     { return f.err }
func (f *fakeWorker) Close()              { *f.closed = append(*f.closed, f.taskType) }

func TestWorkers(t *testing.T) {
	t.Run("skips disabled and closes in reverse", func(t *testing.T) {
		var closed []string
		w := NewWorkers(logger.NewTestLogger(t))

		err := w.Start(
			&fakeWorker{taskType: "a", enabled: true, closed: &closed},
			&fakeWorker{taskType: "b", enabled: false, closed: &closed},
			&fakeWorker{taskType: "c", enabled: true, closed: &closed},
		)
		assert.NoError(t, err)
		assert.Equal(t, 2, w.Count())

		w.Stop()
		assert.Equal(t, []string{"c", "a"}, closed)
		assert.Zero(t, w.Count())
	})

	t.Run("failure unwinds registered workers", func(t *testing.T) {
		var closed []string
		w := NewWorkers(nil)

		err := w.Start(
			&fakeWorker{taskType: "a", enabled: true, closed: &closed},
			&fakeWorker{taskType: "b", enabled: true, err: fmt.Errorf("boom"), closed: &closed},
		)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "register worker b")
		assert.Equal(t, []string{"a"}, closed)
	})
}
