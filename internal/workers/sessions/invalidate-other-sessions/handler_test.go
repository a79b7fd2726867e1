package invalidateothers

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"store-sessions/internal/common/config"
	apperrors "store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/principals"
	"store-sessions/internal/sessions"
	"store-sessions/internal/store/redisstore"
)

// ==========================
// Test Fixtures
// ==========================

var (
	selectSQL = regexp.QuoteMeta(`SELECT id, email, "sessions", updated_at FROM "users" WHERE id = $1`)
	updateSQL = regexp.QuoteMeta(`UPDATE "users" SET "sessions" = $1, updated_at = $2 WHERE id = $3 RETURNING updated_at`)
	fixedNow  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

const storedSessions = `[` +
	`{"sid":"15","ip":"127.0.0.3","last_activity":"2024-03-01T10:00:00Z"},` +
	`{"sid":"42","ip":"127.0.0.1","last_activity":"2024-03-01T11:00:00Z"},` +
	`{"sid":"77","ip":"10.0.0.8","last_activity":"2024-03-01T11:30:00Z"}]`

// sessionIDs matches an encoded session list by its ids in order.
type sessionIDs []string

func (want sessionIDs) Match(v driver.Value) bool {
	raw, ok := v.([]byte)
	if !ok {
		return false
	}
	var list []map[string]interface{}
	if err := json.Unmarshal(raw, &list); err != nil || len(list) != len(want) {
		return false
	}
	for i, item := range list {
		if item["sid"] != want[i] {
			return false
		}
	}
	return true
}

type recorder struct {
	events []sessions.Event
}

func (r *recorder) Record(_ context.Context, e sessions.Event) {
	r.events = append(r.events, e)
}

type fixture struct {
	mock     sqlmock.Sqlmock
	mr       *miniredis.Miniredis
	store    *redisstore.Store
	recorder *recorder
	handler  *Handler
}

func newFixture(t *testing.T, destroyer sessions.Destroyer) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := principals.NewRepository(db, principals.Options{
		Fields: sessions.DefaultFieldNames(),
		Logger: logger.NewTestLogger(t),
		Clock:  func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := redisstore.New(client)

	if destroyer == nil {
		destroyer = store
	}
	rec := &recorder{}
	h, err := NewHandler(HandlerOptions{
		CustomConfig: createValidConfig(),
		Logger:       logger.NewTestLogger(t),
		Users:        repo,
		Liveness:     store,
		Destroyer:    destroyer,
		Recorder:     rec,
	})
	require.NoError(t, err)
	h.service.now = func() time.Time { return fixedNow }

	return &fixture{mock: mock, mr: mr, store: store, recorder: rec, handler: h}
}

func (f *fixture) signIn(sids ...string) {
	for _, sid := range sids {
		f.mr.Set("session:"+sid, `{"sessionId":"`+sid+`"}`)
	}
}

func (f *fixture) expectUser(id string) {
	rows := sqlmock.NewRows([]string{"id", "email", "sessions", "updated_at"}).
		AddRow(id, "a@example.com", []byte(storedSessions), fixedNow.Add(-time.Hour))
	f.mock.ExpectQuery(selectSQL).WithArgs(id).WillReturnRows(rows)
}

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                      key,
		Type:                     TaskType,
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "account-security",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_InvalidateOthers",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  3,
		Variables:                string(variablesJSON),
	}}
}

func createValidConfig() *Config {
	return &Config{
		Enabled:        true,
		MaxJobsActive:  5,
		Timeout:        5 * time.Second,
		MaxConcurrency: 2,
	}
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	f := newFixture(t, nil)
	f.signIn("15", "42", "77")

	f.expectUser("user-1")
	f.mock.ExpectQuery(updateSQL).
		WithArgs(sessionIDs{"42"}, fixedNow, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(fixedNow))

	out, err := f.handler.Execute(context.Background(), &Input{UserID: "user-1", SessionID: "42"})
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, 1, out.RemainingSessions)
	assert.Equal(t, []string{"15", "77"}, out.Invalidated)
	assert.Empty(t, out.DestroyFailures)
	assert.Equal(t, fixedNow, out.CompletedAt)

	assert.False(t, f.mr.Exists("session:15"))
	assert.False(t, f.mr.Exists("session:77"))
	assert.True(t, f.mr.Exists("session:42"))

	require.Len(t, f.recorder.events, 2)
	assert.Equal(t, sessions.EventSessionInvalidated, f.recorder.events[0].Type)
	assert.Equal(t, "42", f.recorder.events[0].CurrentSessionID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandler_ExecuteCurrentSessionAbsent(t *testing.T) {
	f := newFixture(t, nil)
	f.signIn("99")

	f.expectUser("user-1")
	f.mock.ExpectQuery(updateSQL).
		WithArgs(sessionIDs{}, fixedNow, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(fixedNow))

	out, err := f.handler.Execute(context.Background(), &Input{UserID: "user-1", SessionID: "99"})
	require.NoError(t, err)

	assert.Zero(t, out.RemainingSessions)
	assert.Equal(t, []string{"15", "42", "77"}, out.Invalidated)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandler_ExecuteDestroyFailureIsReported(t *testing.T) {
	destroyer := sessions.DestroyFunc(func(_ context.Context, sid string) error {
		if sid == "77" {
			return fmt.Errorf("connection reset")
		}
		return nil
	})
	f := newFixture(t, destroyer)
	f.signIn("42")

	f.expectUser("user-1")
	f.mock.ExpectQuery(updateSQL).
		WithArgs(sessionIDs{"42"}, fixedNow, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(fixedNow))

	out, err := f.handler.Execute(context.Background(), &Input{UserID: "user-1", SessionID: "42"})
	require.NoError(t, err)

	assert.Equal(t, []string{"15", "77"}, out.Invalidated)
	assert.Equal(t, []string{"77"}, out.DestroyFailures)
}

func TestHandler_ExecuteSkipsWhenSessionSignedOut(t *testing.T) {
	tests := []struct {
		name     string
		liveness sessions.Probe
	}{
		{name: "session no longer in store"},
		{
			name: "store unavailable",
			liveness: sessions.ProbeFunc(func(context.Context, string) (bool, error) {
				return false, fmt.Errorf("connection refused")
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			destroyed := 0
			f := newFixture(t, sessions.DestroyFunc(func(context.Context, string) error {
				destroyed++
				return nil
			}))
			if tt.liveness != nil {
				f.handler.service.liveness = tt.liveness
			}
			f.signIn("15", "77")

			f.expectUser("user-1")

			out, err := f.handler.Execute(context.Background(), &Input{UserID: "user-1", SessionID: "42"})
			require.NoError(t, err)

			assert.True(t, out.Skipped)
			assert.Equal(t, "session not authenticated", out.Message)
			assert.Equal(t, 3, out.RemainingSessions)
			assert.Empty(t, out.Invalidated)
			assert.Zero(t, destroyed)
			assert.True(t, f.mr.Exists("session:15"))
			assert.True(t, f.mr.Exists("session:77"))
			assert.Empty(t, f.recorder.events)
			// no UPDATE was issued
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_ExecuteErrors(t *testing.T) {
	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mock.ExpectQuery(selectSQL).WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "sessions", "updated_at"}))

		out, err := f.handler.Execute(context.Background(), &Input{UserID: "ghost", SessionID: "42"})
		assert.Nil(t, out)
		assert.ErrorIs(t, err, apperrors.ErrPrincipalNotFound)
		assert.Equal(t, "PRINCIPAL_NOT_FOUND", extractErrorCode(err))
	})

	t.Run("save fails", func(t *testing.T) {
		f := newFixture(t, nil)
		f.signIn("42")
		f.expectUser("user-1")
		f.mock.ExpectQuery(updateSQL).WillReturnError(fmt.Errorf("connection lost"))

		out, err := f.handler.Execute(context.Background(), &Input{UserID: "user-1", SessionID: "42"})
		assert.Nil(t, out)
		assert.ErrorIs(t, err, apperrors.ErrPersistence)
		assert.True(t, apperrors.Normalize(err).Retryable)
		assert.Empty(t, f.recorder.events)
	})
}

// ==========================
// Handler Plumbing Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo, err := principals.NewRepository(db, principals.Options{Fields: sessions.DefaultFieldNames()})
	require.NoError(t, err)
	liveness := sessions.ProbeFunc(func(context.Context, string) (bool, error) { return true, nil })

	tests := []struct {
		name   string
		opts   HandlerOptions
		errMsg string
	}{
		{
			name: "valid configuration",
			opts: HandlerOptions{CustomConfig: createValidConfig(), Users: repo, Liveness: liveness},
		},
		{
			name:   "missing repository",
			opts:   HandlerOptions{CustomConfig: createValidConfig(), Liveness: liveness},
			errMsg: "user repository is required",
		},
		{
			name:   "missing liveness check",
			opts:   HandlerOptions{CustomConfig: createValidConfig(), Users: repo},
			errMsg: "session liveness check is required",
		},
		{
			name: "invalid timeout",
			opts: HandlerOptions{
				CustomConfig: &Config{Enabled: true, MaxJobsActive: 5, Timeout: -time.Second},
				Users:        repo,
				Liveness:     liveness,
			},
			errMsg: "timeout must be positive",
		},
		{
			name: "invalid max jobs active",
			opts: HandlerOptions{
				CustomConfig: &Config{Enabled: true, Timeout: time.Second},
				Users:        repo,
				Liveness:     liveness,
			},
			errMsg: "max_jobs_active must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(tt.opts)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, h)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TaskType, h.GetTaskType())
			assert.True(t, h.IsEnabled())
		})
	}
}

func TestHandler_RegisterWithoutCamunda(t *testing.T) {
	f := newFixture(t, nil)
	assert.Error(t, f.handler.Register())

	f.handler.config.Enabled = false
	assert.NoError(t, f.handler.Register())
	f.handler.Close()
}

func TestHandler_ParseInput(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name    string
		vars    map[string]interface{}
		want    *Input
		wantErr bool
	}{
		{
			name: "valid with extra process variables",
			vars: map[string]interface{}{"userId": "user-1", "sessionId": "42", "reason": "password_changed", "orderId": 7},
			want: &Input{UserID: "user-1", SessionID: "42", Reason: "password_changed"},
		},
		{
			name:    "missing session id",
			vars:    map[string]interface{}{"userId": "user-1"},
			wantErr: true,
		},
		{
			name:    "empty user id",
			vars:    map[string]interface{}{"userId": "", "sessionId": "42"},
			wantErr: true,
		},
		{
			name:    "wrong type",
			vars:    map[string]interface{}{"userId": 12, "sessionId": "42"},
			wantErr: true,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := f.handler.parseInput(createMockJob(int64(i+1), tt.vars))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, input)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxConcurrency = -1
	assert.EqualError(t, cfg.Validate(), "max_concurrency must not be negative")
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	custom := createValidConfig()
	assert.Same(t, custom, createConfigFromAppConfig(nil, custom))

	app := &config.Config{
		Workers: map[string]config.WorkerConfig{
			WorkerName: {Enabled: false, MaxJobsActive: 9, Timeout: 2500},
		},
		Sessions: config.SessionsConfig{MaxConcurrency: 3},
	}
	cfg := createConfigFromAppConfig(app, nil)

	assert.False(t, cfg.Enabled)
	assert.Equal(t, 9, cfg.MaxJobsActive)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxConcurrency)

	assert.Equal(t, DefaultConfig(), createConfigFromAppConfig(&config.Config{}, nil))
}
