package invalidateothers

import (
	"context"
	"fmt"
	"time"

	"store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/sessions"
)

type Service struct {
	config      *Config
	logger      logger.Logger
	users       UserRepository
	liveness    sessions.Probe
	invalidator *sessions.Invalidator
	recorder    sessions.EventRecorder
	now         func() time.Time
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	s := &Service{
		config:      config,
		logger:      logger.OrNop(deps.Logger),
		users:       deps.Users,
		liveness:    deps.Liveness,
		invalidator: sessions.NewInvalidator(deps.Destroyer, config.MaxConcurrency, deps.Logger),
		recorder:    deps.Recorder,
		now:         deps.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Execute signs the user out of every session except input.SessionID. The
// kept session need not be on the list; when it is absent the list is
// emptied. Nothing is destroyed or saved unless input.SessionID is still
// live in the store.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if s.users == nil {
		return nil, errors.NewConfigurationError("users", "user repository is required")
	}
	if s.liveness == nil {
		return nil, errors.NewConfigurationError("liveness", "session liveness check is required")
	}

	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	if !s.authenticated(ctx, input.SessionID) {
		s.logger.Info("Session not authenticated, nothing invalidated", map[string]interface{}{
			"userId":    input.UserID,
			"sessionId": input.SessionID,
			"reason":    input.Reason,
		})
		return &Output{
			Success:           true,
			Skipped:           true,
			Message:           "session not authenticated",
			RemainingSessions: len(user.SessionList()),
			CompletedAt:       s.now().UTC(),
		}, nil
	}

	out := s.invalidator.InvalidateOthers(ctx, user.SessionList(), input.SessionID)
	user.ReplaceSessions(out.Sessions)
	if _, err := s.users.Save(ctx, user); err != nil {
		return nil, errors.NewPersistenceError(fmt.Errorf("save user %s: %w", input.UserID, err))
	}

	now := s.now().UTC()
	if s.recorder != nil {
		for _, sid := range out.Removed {
			s.recorder.Record(ctx, sessions.Event{
				Type:             sessions.EventSessionInvalidated,
				PrincipalID:      input.UserID,
				SessionID:        sid,
				CurrentSessionID: input.SessionID,
				OccurredAt:       now,
			})
		}
	}

	s.logger.Info("Other sessions invalidated", map[string]interface{}{
		"userId":    input.UserID,
		"sessionId": input.SessionID,
		"count":     len(out.Removed),
		"failed":    len(out.Failed),
		"reason":    input.Reason,
	})

	return &Output{
		Success:           true,
		Message:           fmt.Sprintf("%d other session(s) invalidated", len(out.Removed)),
		RemainingSessions: len(out.Sessions),
		Invalidated:       out.Removed,
		DestroyFailures:   out.Failed,
		CompletedAt:       now,
	}, nil
}

// authenticated reports whether sessionID is still live. Store errors count
// as not authenticated.
func (s *Service) authenticated(ctx context.Context, sessionID string) bool {
	live, err := s.liveness.IsLive(ctx, sessionID)
	if err != nil {
		s.logger.Warn("Authentication check failed", map[string]interface{}{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
		return false
	}
	return live
}
