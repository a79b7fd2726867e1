package sessions

import (
	"context"
	"time"
)

// Probe answers whether a session id is still live in the external store.
type Probe interface {
	IsLive(ctx context.Context, sessionID string) (bool, error)
}

// Destroyer removes a session from the external store.
type Destroyer interface {
	Destroy(ctx context.Context, sessionID string) error
}

// Store is the full external session store capability.
type Store interface {
	Probe
	Destroyer
}

type ProbeFunc func(ctx context.Context, sessionID string) (bool, error)

func (f ProbeFunc) IsLive(ctx context.Context, sessionID string) (bool, error) {
	return f(ctx, sessionID)
}

type DestroyFunc func(ctx context.Context, sessionID string) error

func (f DestroyFunc) Destroy(ctx context.Context, sessionID string) error {
	return f(ctx, sessionID)
}

// WithProbeTimeout bounds every IsLive call on p by d. A call that runs out
// of time returns the context error, which the reconciler treats as unknown.
func WithProbeTimeout(p Probe, d time.Duration) Probe {
	if p == nil || d <= 0 {
		return p
	}
	return ProbeFunc(func(ctx context.Context, sessionID string) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return p.IsLive(ctx, sessionID)
	})
}
