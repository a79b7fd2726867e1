package sessions

import (
	"context"
	"sync"
	"time"

	"store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/common/metrics"
	"store-sessions/internal/models"
)

// tracked is the per-request principal shared by the hooks installed after
// reconciliation. Every hook reads and replaces the list under mu, so a
// later hook sees what an earlier one persisted.
type tracked struct {
	mu        sync.Mutex
	principal Principal
	persister Persister
	auth      Authenticator
	sessionID string
	address   string
}

// replace stores list on the principal and saves it. The principal is
// updated with whatever the persister returns.
func (t *tracked) replace(ctx context.Context, list []models.SessionRecord) error {
	t.principal.ReplaceSessions(list)
	saved, err := t.persister.Save(ctx, t.principal)
	if err != nil {
		return errors.NewPersistenceError(err)
	}
	if saved != nil {
		t.principal = saved
	}
	return nil
}

func (t *tracked) authenticated(ctx context.Context) bool {
	return t.auth != nil && t.auth.IsAuthenticated(ctx)
}

// LogoutHook evicts the current session from the principal before handing
// over to the authentication layer's logout.
type LogoutHook struct {
	state    *tracked
	next     LogoutFunc
	logger   logger.Logger
	recorder EventRecorder
	clock    func() time.Time
}

// LogOut removes the current session entry and persists the principal when
// still authenticated, then always calls the wrapped logout. Only the wrapped
// logout's error is returned; a failed save is logged.
func (h *LogoutHook) LogOut(ctx context.Context) error {
	if h.state.authenticated(ctx) {
		h.evict(ctx)
	}
	if h.next == nil {
		return nil
	}
	return h.next(ctx)
}

func (h *LogoutHook) evict(ctx context.Context) {
	event, ok := h.removeCurrent(ctx)
	if !ok {
		return
	}

	metrics.SessionsRemoved.WithLabelValues(metrics.ReasonLogout).Inc()
	h.recorder.Record(ctx, event)
	h.logger.Info("Session removed on logout", map[string]interface{}{
		"userId":    event.PrincipalID,
		"sessionId": event.SessionID,
	})
}

// removeCurrent drops the current session from the list and saves it under
// the list lock. It reports whether an entry was removed and saved.
func (h *LogoutHook) removeCurrent(ctx context.Context) (Event, bool) {
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.principal.SessionList()
	next := make([]models.SessionRecord, 0, len(current))
	removed := false
	for _, rec := range current {
		if rec.SessionID == s.sessionID {
			removed = true
			continue
		}
		next = append(next, rec)
	}

	if err := s.replace(ctx, next); err != nil {
		h.logger.Error("Failed to persist principal on logout", map[string]interface{}{
			"userId":    s.principal.PrincipalID(),
			"sessionId": s.sessionID,
			"error":     err.Error(),
		})
		return Event{}, false
	}
	if !removed {
		return Event{}, false
	}
	return Event{
		Type:          EventSessionLoggedOut,
		PrincipalID:   s.principal.PrincipalID(),
		SessionID:     s.sessionID,
		SourceAddress: s.address,
		OccurredAt:    h.clock(),
	}, true
}
