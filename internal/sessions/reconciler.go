package sessions

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/common/metrics"
	"store-sessions/internal/models"
)

// Outcome is the next session list plus what happened to the entries that
// did not make it (or nearly didn't).
type Outcome struct {
	Sessions []models.SessionRecord
	// Removed lists ids dropped from the list, in input order.
	Removed []string
	// Failed lists ids whose store call returned an error.
	Failed []string
	// Added is set when the current session was not in the input.
	Added bool
}

type verdict int

const (
	verdictLive verdict = iota
	verdictDead
	verdictUnknown
)

// Reconciler merges the current request's session into a principal's list
// and prunes entries the store reports dead. Without a probe it runs in
// merge-only mode and never prunes.
type Reconciler struct {
	probe          Probe
	maxConcurrency int
	logger         logger.Logger
}

type ReconcilerOption func(*Reconciler)

// WithProbe enables liveness pruning against p.
func WithProbe(p Probe) ReconcilerOption {
	return func(r *Reconciler) { r.probe = p }
}

// WithProbeConcurrency caps in-flight probe calls. Zero means unbounded.
func WithProbeConcurrency(n int) ReconcilerOption {
	return func(r *Reconciler) { r.maxConcurrency = n }
}

func WithReconcilerLogger(l logger.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

func NewReconciler(opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.OrNop(r.logger)
	return r
}

func (r *Reconciler) MergeOnly() bool {
	return r.probe == nil
}

func (r *Reconciler) mode() string {
	if r.MergeOnly() {
		return "merge_only"
	}
	return "probe"
}

// Reconcile computes the next session list. current is never modified.
//
// Entries other than sessionID are kept when live, dropped when the probe
// says they are gone, and kept when the probe fails. The current session is
// updated with sourceAddress and now, or appended when new, and always comes
// last. Duplicate ids in current collapse onto their first occurrence.
func (r *Reconciler) Reconcile(ctx context.Context, current []models.SessionRecord, sessionID, sourceAddress string, now time.Time) (*Outcome, error) {
	if sessionID == "" {
		return nil, errors.NewPreconditionError("sessionId", "current session id is required")
	}
	start := time.Now()
	defer func() {
		metrics.SessionReconcileDuration.WithLabelValues(r.mode()).Observe(time.Since(start).Seconds())
	}()

	var self *models.SessionRecord
	others := make([]models.SessionRecord, 0, len(current))
	seen := make(map[string]struct{}, len(current))
	for _, rec := range current {
		if rec.SessionID == sessionID {
			if self == nil {
				c := rec
				self = &c
			}
			continue
		}
		if _, dup := seen[rec.SessionID]; dup {
			continue
		}
		seen[rec.SessionID] = struct{}{}
		others = append(others, rec)
	}

	verdicts := r.probeAll(ctx, others)

	out := &Outcome{Sessions: make([]models.SessionRecord, 0, len(others)+1)}
	for i, rec := range others {
		switch verdicts[i] {
		case verdictDead:
			out.Removed = append(out.Removed, rec.SessionID)
			continue
		case verdictUnknown:
			out.Failed = append(out.Failed, rec.SessionID)
		}
		out.Sessions = append(out.Sessions, rec)
	}

	if self == nil {
		self = &models.SessionRecord{SessionID: sessionID}
		out.Added = true
	}
	self.SourceAddress = sourceAddress
	self.LastActivity = now
	out.Sessions = append(out.Sessions, *self)

	if len(out.Removed) > 0 {
		metrics.SessionsRemoved.WithLabelValues(metrics.ReasonPruned).Add(float64(len(out.Removed)))
	}
	return out, nil
}

// probeAll checks every entry concurrently. Results are indexed like others,
// so completion order has no effect on the merged list.
func (r *Reconciler) probeAll(ctx context.Context, others []models.SessionRecord) []verdict {
	verdicts := make([]verdict, len(others))
	if r.probe == nil || len(others) == 0 {
		return verdicts
	}

	var g errgroup.Group
	if r.maxConcurrency > 0 {
		g.SetLimit(r.maxConcurrency)
	}
	for i := range others {
		i := i
		sid := others[i].SessionID
		g.Go(func() error {
			live, err := r.probe.IsLive(ctx, sid)
			switch {
			case err != nil:
				metrics.SessionStoreFailures.WithLabelValues(metrics.OperationProbe).Inc()
				r.logger.Warn("Session liveness check failed, keeping entry", map[string]interface{}{
					"sessionId": sid,
					"error":     errors.NewStoreProbeError(sid, err).Error(),
				})
				verdicts[i] = verdictUnknown
			case live:
				verdicts[i] = verdictLive
			default:
				verdicts[i] = verdictDead
			}
			return nil
		})
	}
	_ = g.Wait()
	return verdicts
}
