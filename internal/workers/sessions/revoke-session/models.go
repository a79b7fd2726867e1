package revokesession

import (
	"context"
	"time"

	"store-sessions/internal/common/logger"
	"store-sessions/internal/models"
	"store-sessions/internal/sessions"
)

type Input struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

type Output struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Revoked   bool      `json:"revoked"`
	Remaining int       `json:"remaining"`
	RevokedAt time.Time `json:"revokedAt"`
}

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	sessions.Persister
}

type ServiceDependencies struct {
	Users     UserRepository
	Destroyer sessions.Destroyer
	Recorder  sessions.EventRecorder
	Logger    logger.Logger
	Clock     func() time.Time
}
