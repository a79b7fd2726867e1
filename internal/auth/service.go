// Package auth resolves the session cookie to a stored login and supplies
// the authentication capabilities session tracking needs.
package auth

import (
	"context"

	"store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/models"
	"store-sessions/internal/sessions"
)

// SessionStore is the subset of the session store used for authentication.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*models.StoredSession, error)
	IsLive(ctx context.Context, sessionID string) (bool, error)
	Destroy(ctx context.Context, sessionID string) error
}

// TokenRevoker ends the identity provider session behind a refresh token.
type TokenRevoker interface {
	Logout(ctx context.Context, refreshToken string) error
}

type Service struct {
	store   SessionStore
	revoker TokenRevoker
	logger  logger.Logger
}

// NewService builds the service. revoker may be nil when no identity
// provider session needs ending on logout.
func NewService(store SessionStore, revoker TokenRevoker, log logger.Logger) *Service {
	return &Service{
		store:   store,
		revoker: revoker,
		logger:  logger.OrNop(log),
	}
}

// Resolve returns the stored login for sessionID, or nil when there is none.
func (s *Service) Resolve(ctx context.Context, sessionID string) (*models.StoredSession, error) {
	if sessionID == "" {
		return nil, nil
	}
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.NewExternalServiceError("session-store", err)
	}
	return sess, nil
}

// Authenticator reports whether sessionID is still live each time it is
// asked, so a logout earlier in the request is observed. Store errors count
// as not authenticated.
func (s *Service) Authenticator(sessionID string) sessions.Authenticator {
	return sessions.AuthenticatorFunc(func(ctx context.Context) bool {
		if sessionID == "" {
			return false
		}
		live, err := s.store.IsLive(ctx, sessionID)
		if err != nil {
			s.logger.Warn("Authentication check failed", map[string]interface{}{
				"sessionId": sessionID,
				"error":     err.Error(),
			})
			return false
		}
		return live
	})
}

// Logout returns the logout operation for sess: it deletes the stored
// session and revokes the refresh token. A revoke failure is logged only,
// since the local session is already gone.
func (s *Service) Logout(sess *models.StoredSession) sessions.LogoutFunc {
	return func(ctx context.Context) error {
		if sess == nil {
			return nil
		}
		if err := s.store.Destroy(ctx, sess.SessionID); err != nil {
			return errors.NewStoreDestroyError(sess.SessionID, err)
		}
		if s.revoker != nil && sess.RefreshToken != "" {
			if err := s.revoker.Logout(ctx, sess.RefreshToken); err != nil {
				s.logger.Warn("Failed to revoke refresh token", map[string]interface{}{
					"userId":    sess.UserID,
					"sessionId": sess.SessionID,
					"error":     err.Error(),
				})
			}
		}
		s.logger.Info("User logged out", map[string]interface{}{
			"userId":    sess.UserID,
			"sessionId": sess.SessionID,
		})
		return nil
	}
}
