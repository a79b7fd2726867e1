// Package sessions keeps a per-principal list of active login sessions in
// step with the external session store.
//
// A Driver runs once per authenticated request: it merges the request's
// session into the principal's list, prunes entries the store no longer
// knows, saves the principal and hands back Hooks for signing out the other
// sessions or logging out the current one later in the request.
package sessions

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/common/metrics"
	"store-sessions/internal/common/validation"
	"store-sessions/internal/models"
)

const tracerName = "store-sessions/internal/sessions"

// Principal is the account whose sessions are tracked. The driver only reads
// and replaces its list; it never constructs one.
type Principal interface {
	PrincipalID() string
	SessionList() []models.SessionRecord
	ReplaceSessions([]models.SessionRecord)
}

type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
}

type AuthenticatorFunc func(ctx context.Context) bool

func (f AuthenticatorFunc) IsAuthenticated(ctx context.Context) bool {
	return f(ctx)
}

// Persister saves a principal and returns the stored version.
type Persister interface {
	Save(ctx context.Context, p Principal) (Principal, error)
}

type PersisterFunc func(ctx context.Context, p Principal) (Principal, error)

func (f PersisterFunc) Save(ctx context.Context, p Principal) (Principal, error) {
	return f(ctx, p)
}

type LogoutFunc func(ctx context.Context) error

// SessionContext is the transport-level session of the request.
type SessionContext interface {
	ID() string
}

// RequestContext is the capability set a request offers the driver.
type RequestContext struct {
	Session       SessionContext
	SaveSession   func(ctx context.Context) error
	Logout        LogoutFunc
	Principal     Principal
	Persister     Persister
	Auth          Authenticator
	SourceAddress string
}

type Options struct {
	// Fields defaults to DefaultFieldNames when nil.
	Fields *FieldNames
	// Schema is extended with the session list declaration. Required.
	Schema *validation.JSONSchema
	// Probe enables liveness pruning. Nil selects merge-only mode.
	Probe     Probe
	Destroyer Destroyer
	// InstallLogoutHook wraps the request's logout with session eviction.
	InstallLogoutHook bool
	MaxConcurrency    int
	ProbeTimeout      time.Duration
	Logger            logger.Logger
	Clock             func() time.Time
	Recorder          EventRecorder
	Tracer            trace.Tracer
}

type Driver struct {
	fields      FieldNames
	schema      *validation.JSONSchema
	reconciler  *Reconciler
	invalidator *Invalidator
	installHook bool
	logger      logger.Logger
	clock       func() time.Time
	recorder    EventRecorder
	tracer      trace.Tracer
}

// New validates the configuration, augments the schema and builds a Driver.
func New(opts Options) (*Driver, error) {
	fields := DefaultFieldNames()
	if opts.Fields != nil {
		fields = *opts.Fields
	}
	schema, err := Plugin(opts.Schema, fields)
	if err != nil {
		return nil, err
	}

	log := logger.OrNop(opts.Logger)
	d := &Driver{
		fields:      fields,
		schema:      schema,
		installHook: opts.InstallLogoutHook,
		logger:      log,
		clock:       opts.Clock,
		recorder:    opts.Recorder,
		tracer:      opts.Tracer,
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.recorder == nil {
		d.recorder = nopRecorder{}
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}

	var ropts []ReconcilerOption
	if opts.Probe != nil {
		ropts = append(ropts, WithProbe(WithProbeTimeout(opts.Probe, opts.ProbeTimeout)))
	}
	ropts = append(ropts, WithProbeConcurrency(opts.MaxConcurrency), WithReconcilerLogger(log))
	d.reconciler = NewReconciler(ropts...)
	d.invalidator = NewInvalidator(opts.Destroyer, opts.MaxConcurrency, log)

	log.Info("Session tracking configured", map[string]interface{}{
		"mode":              d.reconciler.mode(),
		"sessionsField":     fields.Sessions,
		"installLogoutHook": d.installHook,
	})
	return d, nil
}

func (d *Driver) Fields() FieldNames {
	return d.fields
}

// Schema returns the augmented schema.
func (d *Driver) Schema() *validation.JSONSchema {
	return d.schema
}

func (d *Driver) MergeOnly() bool {
	return d.reconciler.MergeOnly()
}

// Run reconciles the request's principal. Missing required capabilities
// yield a precondition error. When tracking does not apply (no principal,
// nothing to save with, not authenticated, no session id) Run returns nil
// hooks and a nil error. A failed save is returned as a persistence error.
func (d *Driver) Run(ctx context.Context, rc *RequestContext) (*Hooks, error) {
	if err := d.checkCapabilities(rc); err != nil {
		metrics.SessionReconciliations.WithLabelValues("precondition_failed").Inc()
		return nil, err
	}
	if reason := skipReason(ctx, rc); reason != "" {
		metrics.SessionReconciliations.WithLabelValues("skipped").Inc()
		d.logger.Debug("Session tracking skipped", map[string]interface{}{"reason": reason})
		return nil, nil
	}

	sessionID := rc.Session.ID()
	ctx, span := d.tracer.Start(ctx, "sessions.reconcile", trace.WithAttributes(
		attribute.String("session.mode", d.reconciler.mode()),
		attribute.String("principal.id", rc.Principal.PrincipalID()),
	))
	defer span.End()

	now := d.clock()
	out, err := d.reconciler.Reconcile(ctx, rc.Principal.SessionList(), sessionID, rc.SourceAddress, now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("sessions.count", len(out.Sessions)),
		attribute.Int("sessions.pruned", len(out.Removed)),
		attribute.Int("sessions.probe_failures", len(out.Failed)),
	)

	state := &tracked{
		principal: rc.Principal,
		persister: rc.Persister,
		auth:      rc.Auth,
		sessionID: sessionID,
		address:   rc.SourceAddress,
	}
	if err := state.replace(ctx, out.Sessions); err != nil {
		metrics.SessionReconciliations.WithLabelValues("persistence_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist principal")
		return nil, err
	}
	metrics.SessionReconciliations.WithLabelValues("reconciled").Inc()

	principalID := state.principal.PrincipalID()
	for _, sid := range out.Removed {
		d.recorder.Record(ctx, Event{
			Type:             EventSessionPruned,
			PrincipalID:      principalID,
			SessionID:        sid,
			CurrentSessionID: sessionID,
			SourceAddress:    rc.SourceAddress,
			OccurredAt:       now,
		})
	}
	if len(out.Removed) > 0 || out.Added {
		d.logger.Info("Session list reconciled", map[string]interface{}{
			"userId":    principalID,
			"sessionId": sessionID,
			"added":     out.Added,
			"pruned":    out.Removed,
			"count":     len(out.Sessions),
		})
	}

	h := &Hooks{driver: d, state: state, logout: rc.Logout}
	if d.installHook {
		h.hook = &LogoutHook{
			state:    state,
			next:     rc.Logout,
			logger:   d.logger,
			recorder: d.recorder,
			clock:    d.clock,
		}
	}
	return h, nil
}

func (d *Driver) checkCapabilities(rc *RequestContext) error {
	switch {
	case rc == nil || rc.Session == nil:
		return errors.NewPreconditionError("session", "sessions required")
	case rc.SaveSession == nil:
		return errors.NewPreconditionError("saveSession", "saveSession capability required")
	case d.installHook && rc.Logout == nil:
		return errors.NewPreconditionError("logout", "logout capability required")
	}
	return nil
}

func skipReason(ctx context.Context, rc *RequestContext) string {
	switch {
	case rc.Principal == nil:
		return "no principal"
	case rc.Persister == nil:
		return "principal cannot be saved"
	case rc.Auth == nil:
		return "no authentication check"
	case !rc.Auth.IsAuthenticated(ctx):
		return "not authenticated"
	case rc.Session.ID() == "":
		return "no session id"
	}
	return ""
}

// Hooks are the session operations available for the rest of a request
// after a successful Run.
type Hooks struct {
	driver *Driver
	state  *tracked
	logout LogoutFunc
	hook   *LogoutHook
}

func (h *Hooks) SessionID() string {
	return h.state.sessionID
}

// Principal returns the latest saved principal.
func (h *Hooks) Principal() Principal {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.state.principal
}

// InvalidateOtherSessions signs the principal out of every session except
// the current one. It does nothing when the principal is no longer
// authenticated. Destroy failures are logged; a failed save is returned.
func (h *Hooks) InvalidateOtherSessions(ctx context.Context) ([]models.SessionRecord, error) {
	ctx, span := h.driver.tracer.Start(ctx, "sessions.invalidate_others")
	defer span.End()

	res, err := h.invalidateOthers(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist principal")
		return nil, err
	}
	out := res.outcome
	if res.skipped {
		return out.Sessions, nil
	}
	span.SetAttributes(
		attribute.Int("sessions.invalidated", len(out.Removed)),
		attribute.Int("sessions.destroy_failures", len(out.Failed)),
	)

	// Recorders may do network I/O; the list lock is already released here.
	for _, e := range res.events {
		h.driver.recorder.Record(ctx, e)
	}
	h.driver.logger.Info("Other sessions invalidated", map[string]interface{}{
		"userId":    res.principalID,
		"sessionId": h.state.sessionID,
		"count":     len(out.Removed),
		"failed":    len(out.Failed),
	})
	return out.Sessions, nil
}

type invalidation struct {
	outcome     *Outcome
	principalID string
	events      []Event
	// skipped is set when the principal is no longer authenticated.
	skipped bool
}

// invalidateOthers destroys and saves under the list lock and returns the
// events still to be recorded.
func (h *Hooks) invalidateOthers(ctx context.Context) (*invalidation, error) {
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authenticated(ctx) {
		return &invalidation{outcome: &Outcome{Sessions: s.principal.SessionList()}, skipped: true}, nil
	}

	out := h.driver.invalidator.InvalidateOthers(ctx, s.principal.SessionList(), s.sessionID)
	if err := s.replace(ctx, out.Sessions); err != nil {
		return nil, err
	}

	now := h.driver.clock()
	principalID := s.principal.PrincipalID()
	events := make([]Event, 0, len(out.Removed))
	for _, sid := range out.Removed {
		events = append(events, Event{
			Type:             EventSessionInvalidated,
			PrincipalID:      principalID,
			SessionID:        sid,
			CurrentSessionID: s.sessionID,
			SourceAddress:    s.address,
			OccurredAt:       now,
		})
	}
	return &invalidation{outcome: out, principalID: principalID, events: events}, nil
}

// LogOut runs the installed logout hook, or the plain logout when no hook
// was installed.
func (h *Hooks) LogOut(ctx context.Context) error {
	if h.hook != nil {
		return h.hook.LogOut(ctx)
	}
	if h.logout == nil {
		return nil
	}
	return h.logout(ctx)
}
