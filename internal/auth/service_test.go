package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/models"
	"store-sessions/internal/store/redisstore"
)

type MockRevoker struct {
	mock.Mock
}

func (m *MockRevoker) Logout(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func setup(t *testing.T, revoker TokenRevoker) (*miniredis.Miniredis, *redisstore.Store, *Service) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisstore.New(client)
	return mr, store, NewService(store, revoker, logger.NewTestLogger(t))
}

func createSession(t *testing.T, store *redisstore.Store, id, token string) *models.StoredSession {
	t.Helper()
	sess := models.StoredSession{
		SessionID:    id,
		UserID:       "user-1",
		ExpiresAt:    time.Now().Add(time.Hour),
		RefreshToken: token,
	}
	require.NoError(t, store.Create(context.Background(), sess))
	return &sess
}

func TestService_Resolve(t *testing.T) {
	_, store, svc := setup(t, nil)
	createSession(t, store, "abc", "")

	got, err := svc.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)

	got, err = svc.Resolve(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)

	got, err = svc.Resolve(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestService_ResolveStoreDown(t *testing.T) {
	mr, _, svc := setup(t, nil)
	mr.Close()

	_, err := svc.Resolve(context.Background(), "abc")
	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeExternalService, stdErr.Code)
}

func TestService_AuthenticatorTracksStore(t *testing.T) {
	_, store, svc := setup(t, nil)
	createSession(t, store, "abc", "")
	ctx := context.Background()

	a := svc.Authenticator("abc")
	assert.True(t, a.IsAuthenticated(ctx))

	require.NoError(t, store.Destroy(ctx, "abc"))
	assert.False(t, a.IsAuthenticated(ctx))

	assert.False(t, svc.Authenticator("").IsAuthenticated(ctx))
}

func TestService_Logout(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		revokeErr error
		expectRev bool
	}{
		{name: "revokes refresh token", token: "refresh-1", expectRev: true},
		{name: "revoke failure is not returned", token: "refresh-1", revokeErr: fmt.Errorf("keycloak down"), expectRev: true},
		{name: "no refresh token", token: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			revoker := &MockRevoker{}
			if tt.expectRev {
				revoker.On("Logout", mock.Anything, tt.token).Return(tt.revokeErr).Once()
			}
			mr, store, svc := setup(t, revoker)
			sess := createSession(t, store, "abc", tt.token)

			err := svc.Logout(sess)(context.Background())

			assert.NoError(t, err)
			assert.False(t, mr.Exists("session:abc"))
			revoker.AssertExpectations(t)
		})
	}
}

func TestService_LogoutNilSession(t *testing.T) {
	_, _, svc := setup(t, nil)
	assert.NoError(t, svc.Logout(nil)(context.Background()))
}
