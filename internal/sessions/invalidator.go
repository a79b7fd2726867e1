package sessions

import (
	"context"

	"golang.org/x/sync/errgroup"

	"store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/common/metrics"
	"store-sessions/internal/models"
)

// Invalidator drops every session except the current one and destroys the
// dropped ids in the external store.
type Invalidator struct {
	destroyer      Destroyer
	maxConcurrency int
	logger         logger.Logger
}

func NewInvalidator(destroyer Destroyer, maxConcurrency int, log logger.Logger) *Invalidator {
	return &Invalidator{
		destroyer:      destroyer,
		maxConcurrency: maxConcurrency,
		logger:         logger.OrNop(log),
	}
}

// InvalidateOthers keeps only the entry for sessionID (or nothing when it is
// absent) and destroys each distinct other id once. It returns after every
// destroy call has settled. Destroy failures are logged and reported in
// Outcome.Failed; the entry is dropped regardless.
func (inv *Invalidator) InvalidateOthers(ctx context.Context, current []models.SessionRecord, sessionID string) *Outcome {
	out := &Outcome{Sessions: make([]models.SessionRecord, 0, 1)}

	kept := false
	seen := make(map[string]struct{}, len(current))
	for _, rec := range current {
		if rec.SessionID == sessionID {
			if !kept {
				out.Sessions = append(out.Sessions, rec)
				kept = true
			}
			continue
		}
		if _, dup := seen[rec.SessionID]; dup {
			continue
		}
		seen[rec.SessionID] = struct{}{}
		out.Removed = append(out.Removed, rec.SessionID)
	}

	if len(out.Removed) > 0 {
		metrics.SessionsRemoved.WithLabelValues(metrics.ReasonInvalidated).Add(float64(len(out.Removed)))
	}
	if inv.destroyer == nil || len(out.Removed) == 0 {
		return out
	}

	failed := make([]bool, len(out.Removed))
	var g errgroup.Group
	if inv.maxConcurrency > 0 {
		g.SetLimit(inv.maxConcurrency)
	}
	for i, sid := range out.Removed {
		i, sid := i, sid
		g.Go(func() error {
			if err := inv.destroyer.Destroy(ctx, sid); err != nil {
				metrics.SessionStoreFailures.WithLabelValues(metrics.OperationDestroy).Inc()
				inv.logger.Warn("Failed to destroy session", map[string]interface{}{
					"sessionId": sid,
					"error":     errors.NewStoreDestroyError(sid, err).Error(),
				})
				failed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, sid := range out.Removed {
		if failed[i] {
			out.Failed = append(out.Failed, sid)
		}
	}
	return out
}
