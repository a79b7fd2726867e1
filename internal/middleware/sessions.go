package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"store-sessions/internal/auth"
	"store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/models"
	"store-sessions/internal/sessions"
)

const DefaultCookieName = "sid"

// unexported, collision-proof context keys
type hooksContextKeyType struct{}
type userContextKeyType struct{}

var (
	hooksKey = hooksContextKeyType{}
	userKey  = userContextKeyType{}
)

// HooksFromContext returns the session hooks installed for this request.
func HooksFromContext(ctx context.Context) (*sessions.Hooks, bool) {
	h, ok := ctx.Value(hooksKey).(*sessions.Hooks)
	return h, ok && h != nil
}

// UserFromContext returns the authenticated user as loaded for this request.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey).(*models.User)
	return u, ok && u != nil
}

// UserStore loads and saves principals.
type UserStore interface {
	sessions.Persister
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

type Options struct {
	Driver *sessions.Driver
	Auth   *auth.Service
	Users  UserStore
	Cookie CookieOptions
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	Logger     logger.Logger
}

type SessionTracker struct {
	driver     *sessions.Driver
	auth       *auth.Service
	users      UserStore
	cookie     CookieOptions
	trustProxy bool
	logger     logger.Logger
}

func NewSessionTracker(opts Options) *SessionTracker {
	if opts.Cookie.Name == "" {
		opts.Cookie.Name = DefaultCookieName
	}
	if opts.Cookie.Path == "" {
		opts.Cookie.Path = "/"
	}
	return &SessionTracker{
		driver:     opts.Driver,
		auth:       opts.Auth,
		users:      opts.Users,
		cookie:     opts.Cookie,
		trustProxy: opts.TrustProxy,
		logger:     logger.OrNop(opts.Logger),
	}
}

type cookieSession string

func (c cookieSession) ID() string { return string(c) }

// TrackSessions reconciles the signed-in user's session list on every
// request and exposes the resulting hooks through the request context.
func (t *SessionTracker) TrackSessions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var sid string
		if c, err := r.Cookie(t.cookie.Name); err == nil {
			sid = c.Value
		}

		stored, err := t.auth.Resolve(ctx, sid)
		if err != nil {
			errors.WriteHTTPError(w, t.logger, err)
			return
		}

		rc := &sessions.RequestContext{
			Session:       cookieSession(sid),
			SaveSession:   t.saveSession(w, stored),
			Logout:        t.logout(w, stored),
			SourceAddress: t.clientAddress(r),
		}

		var user *models.User
		if stored != nil {
			user, err = t.users.FindByID(ctx, stored.UserID)
			switch {
			case err == nil:
				rc.Principal = user
				rc.Persister = t.users
				rc.Auth = t.auth.Authenticator(sid)
			case errors.Normalize(err).Code == errors.ErrCodePrincipalNotFound:
				t.logger.Warn("Session refers to unknown user", map[string]interface{}{
					"userId":    stored.UserID,
					"sessionId": sid,
				})
				user = nil
			default:
				errors.WriteHTTPError(w, t.logger, err)
				return
			}
		}

		hooks, err := t.driver.Run(ctx, rc)
		if err != nil {
			errors.WriteHTTPError(w, t.logger, err)
			return
		}
		if hooks != nil {
			if err := rc.SaveSession(ctx); err != nil {
				t.logger.Warn("Failed to refresh session cookie", map[string]interface{}{
					"sessionId": sid,
					"error":     err.Error(),
				})
			}
			ctx = context.WithValue(ctx, hooksKey, hooks)
			ctx = context.WithValue(ctx, userKey, user)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// saveSession reissues the session cookie with the stored expiry. It runs
// once the session list has been reconciled and saved.
func (t *SessionTracker) saveSession(w http.ResponseWriter, stored *models.StoredSession) func(context.Context) error {
	return func(context.Context) error {
		if stored == nil {
			return nil
		}
		http.SetCookie(w, t.newCookie(stored.SessionID, stored.ExpiresAt))
		return nil
	}
}

// logout ends the stored session and clears the cookie.
func (t *SessionTracker) logout(w http.ResponseWriter, stored *models.StoredSession) sessions.LogoutFunc {
	end := t.auth.Logout(stored)
	return func(ctx context.Context) error {
		err := end(ctx)
		c := t.newCookie("", time.Time{})
		c.MaxAge = -1
		http.SetCookie(w, c)
		return err
	}
}

func (t *SessionTracker) newCookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     t.cookie.Name,
		Value:    value,
		Path:     t.cookie.Path,
		Domain:   t.cookie.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   t.cookie.Secure,
		SameSite: t.cookie.SameSite,
	}
}

func (t *SessionTracker) clientAddress(r *http.Request) string {
	if t.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
