package revokesession

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"store-sessions/internal/common/config"
	apperrors "store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/models"
	"store-sessions/internal/sessions"
	"store-sessions/internal/store/redisstore"
)

// ==========================
// Mock Repository
// ==========================

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockRepository) Save(ctx context.Context, p sessions.Principal) (sessions.Principal, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(sessions.Principal), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	events []sessions.Event
}

func (r *recorder) Record(_ context.Context, e sessions.Event) {
	r.events = append(r.events, e)
}

func newUser() *models.User {
	return &models.User{
		ID: "user-1",
		Sessions: []models.SessionRecord{
			{SessionID: "15", SourceAddress: "127.0.0.3", LastActivity: fixedNow.Add(-2 * time.Hour)},
			{SessionID: "42", SourceAddress: "127.0.0.1", LastActivity: fixedNow.Add(-time.Hour)},
		},
	}
}

func newTestHandler(t *testing.T, repo *MockRepository, destroyer sessions.Destroyer) (*Handler, *recorder) {
	t.Helper()
	rec := &recorder{}
	h, err := NewHandler(HandlerOptions{
		CustomConfig: DefaultConfig(),
		Logger:       logger.NewTestLogger(t),
		Users:        repo,
		Destroyer:    destroyer,
		Recorder:     rec,
	})
	require.NoError(t, err)
	h.service.now = func() time.Time { return fixedNow }
	return h, rec
}

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *redisstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redisstore.New(client)
}

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "account-security",
		ElementId:          "Activity_RevokeSession",
		CustomHeaders:      "{}",
		Worker:             "test-worker",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_ExecuteRevokes(t *testing.T) {
	mr, store := newRedisStore(t)
	mr.Set("session:15", `{"sessionId":"15"}`)

	repo := &MockRepository{}
	user := newUser()
	repo.On("FindByID", mock.Anything, "user-1").Return(user, nil)
	repo.On("Save", mock.Anything, mock.MatchedBy(func(p sessions.Principal) bool {
		list := p.SessionList()
		return len(list) == 1 && list[0].SessionID == "42"
	})).Return(user, nil)

	h, rec := newTestHandler(t, repo, store)

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", SessionID: "15", Reason: "device_lost"})
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.True(t, out.Revoked)
	assert.Equal(t, 1, out.Remaining)
	assert.Equal(t, fixedNow, out.RevokedAt)
	assert.False(t, mr.Exists("session:15"))

	require.Len(t, rec.events, 1)
	assert.Equal(t, sessions.EventSessionRevoked, rec.events[0].Type)
	assert.Equal(t, "127.0.0.3", rec.events[0].SourceAddress)
	repo.AssertExpectations(t)
}

func TestHandler_ExecuteUntrackedSessionSkipsSave(t *testing.T) {
	mr, store := newRedisStore(t)
	mr.Set("session:99", `{"sessionId":"99"}`)

	repo := &MockRepository{}
	repo.On("FindByID", mock.Anything, "user-1").Return(newUser(), nil)

	h, rec := newTestHandler(t, repo, store)

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", SessionID: "99"})
	require.NoError(t, err)

	assert.False(t, out.Revoked)
	assert.Equal(t, 2, out.Remaining)
	assert.False(t, mr.Exists("session:99"))
	assert.Empty(t, rec.events)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestHandler_ExecuteErrors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*MockRepository)
		destroyer sessions.Destroyer
		wantErr   error
		retryable bool
	}{
		{
			name: "unknown user",
			setup: func(m *MockRepository) {
				m.On("FindByID", mock.Anything, "user-1").Return(nil, apperrors.NewPrincipalNotFoundError("user-1"))
			},
			wantErr: apperrors.ErrPrincipalNotFound,
		},
		{
			name: "store destroy fails before save",
			setup: func(m *MockRepository) {
				m.On("FindByID", mock.Anything, "user-1").Return(newUser(), nil)
			},
			destroyer: sessions.DestroyFunc(func(context.Context, string) error {
				return fmt.Errorf("connection reset")
			}),
			wantErr:   apperrors.ErrStoreDestroy,
			retryable: true,
		},
		{
			name: "save fails",
			setup: func(m *MockRepository) {
				m.On("FindByID", mock.Anything, "user-1").Return(newUser(), nil)
				m.On("Save", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("deadlock detected"))
			},
			wantErr:   apperrors.ErrPersistence,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockRepository{}
			tt.setup(repo)
			h, rec := newTestHandler(t, repo, tt.destroyer)

			out, err := h.Execute(context.Background(), &Input{UserID: "user-1", SessionID: "15"})
			assert.Nil(t, out)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.retryable, apperrors.Normalize(err).Retryable)
			assert.Empty(t, rec.events)
			repo.AssertExpectations(t)
		})
	}
}

// ==========================
// Handler Plumbing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h, _ := newTestHandler(t, &MockRepository{}, nil)

	input, err := h.parseInput(createMockJob(1, map[string]interface{}{
		"userId": "user-1", "sessionId": "15", "reason": "admin",
	}))
	require.NoError(t, err)
	assert.Equal(t, &Input{UserID: "user-1", SessionID: "15", Reason: "admin"}, input)

	_, err = h.parseInput(createMockJob(2, map[string]interface{}{"userId": "user-1"}))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := NewHandler(HandlerOptions{CustomConfig: DefaultConfig()})
	assert.ErrorContains(t, err, "user repository is required")

	_, err = NewHandler(HandlerOptions{CustomConfig: &Config{Enabled: true, Timeout: time.Second}, Users: &MockRepository{}})
	assert.ErrorContains(t, err, "max_jobs_active must be positive")
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	app := &config.Config{Workers: map[string]config.WorkerConfig{
		WorkerName: {Enabled: true, MaxJobsActive: 2, Timeout: 1500},
	}}

	cfg := createConfigFromAppConfig(app, nil)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 2, cfg.MaxJobsActive)
	assert.Equal(t, 1500*time.Millisecond, cfg.Timeout)

	assert.Equal(t, DefaultConfig(), createConfigFromAppConfig(nil, nil))
}
