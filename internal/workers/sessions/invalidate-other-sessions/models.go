package invalidateothers

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

// Output reports the invalidation. Skipped is set when the kept session was
// no longer live and nothing was changed.
type Output struct {
	Success           bool      `json:"success"`
	Message           string    `json:"message"`
	RemainingSessions int       `json:"remainingSessions"`
	Skipped           bool      `json:"skipped,omitempty"`
	Invalidated       []string  `json:"invalidated,omitempty"`
	DestroyFailures   []string  `json:"destroyFailures,omitempty"`
	CompletedAt       time.Time `json:"completedAt"`
}

// UserRepository loads and saves principals with their session list.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	sessions.Persister
}

type ServiceDependencies struct {
	Users UserRepository
	// Liveness tells whether the session being kept is still signed in.
	Liveness  sessions.Probe
	Destroyer sessions.Destroyer
	Recorder  sessions.EventRecorder
	Logger    logger.Logger
	Clock     func() time.Time
}
