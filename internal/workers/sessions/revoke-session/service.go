package revokesession

import (
	"context"
	"fmt"
	"time"

	"store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/common/metrics"
	"store-sessions/internal/models"
	"store-sessions/internal/sessions"
)

type Service struct {
	config    *Config
	logger    logger.Logger
	users     UserRepository
	destroyer sessions.Destroyer
	recorder  sessions.EventRecorder
	now       func() time.Time
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	s := &Service{
		config:    config,
		logger:    logger.OrNop(deps.Logger),
		users:     deps.Users,
		destroyer: deps.Destroyer,
		recorder:  deps.Recorder,
		now:       deps.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Execute destroys one session in the store and removes it from the user's
// list. The store call comes first so a failed destroy leaves the record in
// place for the retry.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	if s.destroyer != nil {
		if err := s.destroyer.Destroy(ctx, input.SessionID); err != nil {
			metrics.SessionStoreFailures.WithLabelValues(metrics.OperationDestroy).Inc()
			return nil, errors.NewStoreDestroyError(input.SessionID, err)
		}
	}

	current := user.SessionList()
	kept := make([]models.SessionRecord, 0, len(current))
	var revoked *models.SessionRecord
	for i, rec := range current {
		if rec.SessionID == input.SessionID {
			if revoked == nil {
				revoked = &current[i]
			}
			continue
		}
		kept = append(kept, rec)
	}

	now := s.now().UTC()
	out := &Output{
		Success:   true,
		Remaining: len(kept),
		RevokedAt: now,
	}
	if revoked == nil {
		out.Message = "session was not tracked for user"
		return out, nil
	}

	user.ReplaceSessions(kept)
	if _, err := s.users.Save(ctx, user); err != nil {
		return nil, errors.NewPersistenceError(fmt.Errorf("save user %s: %w", input.UserID, err))
	}

	metrics.SessionsRemoved.WithLabelValues(metrics.ReasonRevoked).Inc()
	if s.recorder != nil {
		s.recorder.Record(ctx, sessions.Event{
			Type:          sessions.EventSessionRevoked,
			PrincipalID:   input.UserID,
			SessionID:     input.SessionID,
			SourceAddress: revoked.SourceAddress,
			OccurredAt:    now,
		})
	}
	s.logger.Info("Session revoked", map[string]interface{}{
		"userId":    input.UserID,
		"sessionId": input.SessionID,
		"reason":    input.Reason,
	})

	out.Revoked = true
	out.Message = "session revoked"
	return out, nil
}
