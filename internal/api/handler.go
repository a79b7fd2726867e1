// Package api exposes a principal's sessions over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"store-sessions/internal/audit"
	"store-sessions/internal/common/errors"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/middleware"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type SessionView struct {
	SessionID     string    `json:"sessionId"`
	SourceAddress string    `json:"sourceAddress"`
	LastActivity  time.Time `json:"lastActivity"`
	Current       bool      `json:"current"`
}

// EventLog returns a principal's most recent session events.
type EventLog interface {
	Recent(ctx context.Context, principalID string, limit int) ([]audit.Entry, error)
}

const (
	defaultEventLimit = 20
	maxEventLimit     = 100
)

type Handler struct {
	tracker *middleware.SessionTracker
	checks  map[string]HealthCheck
	events  EventLog
	logger  logger.Logger
}

func NewHandler(tracker *middleware.SessionTracker, checks map[string]HealthCheck, log logger.Logger) *Handler {
	return &Handler{
		tracker: tracker,
		checks:  checks,
		logger:  logger.OrNop(log),
	}
}

// WithEventLog enables GET /sessions/events.
func (h *Handler) WithEventLog(events EventLog) *Handler {
	h.events = events
	return h
}

// NewRouter builds the Gin engine with every route registered.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	h.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tracked := r.Group("/")
	tracked.Use(middleware.GinTrackSessions(h.tracker))
	tracked.GET("/sessions", h.listSessions)
	tracked.POST("/sessions/invalidate-others", h.invalidateOthers)
	tracked.POST("/logout", h.logout)
	if h.events != nil {
		tracked.GET("/sessions/events", h.listEvents)
	}
}

func (h *Handler) listSessions(c *gin.Context) {
	hooks, ok := middleware.HooksFromContext(c.Request.Context())
	if !ok {
		h.unauthorized(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": views(hooks.Principal().SessionList(), hooks.SessionID()),
	})
}

func (h *Handler) invalidateOthers(c *gin.Context) {
	hooks, ok := middleware.HooksFromContext(c.Request.Context())
	if !ok {
		h.unauthorized(c)
		return
	}
	list, err := hooks.InvalidateOtherSessions(c.Request.Context())
	if err != nil {
		errors.WriteHTTPError(c.Writer, h.logger, err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views(list, hooks.SessionID())})
}

func (h *Handler) logout(c *gin.Context) {
	hooks, ok := middleware.HooksFromContext(c.Request.Context())
	if !ok {
		h.unauthorized(c)
		return
	}
	if err := hooks.LogOut(c.Request.Context()); err != nil {
		errors.WriteHTTPError(c.Writer, h.logger, err)
		c.Abort()
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listEvents(c *gin.Context) {
	hooks, ok := middleware.HooksFromContext(c.Request.Context())
	if !ok {
		h.unauthorized(c)
		return
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxEventLimit {
			errors.WriteHTTPError(c.Writer, h.logger,
				errors.NewValidationError("limit must be an integer between 1 and "+strconv.Itoa(maxEventLimit)))
			c.Abort()
			return
		}
		limit = n
	}

	entries, err := h.events.Recent(c.Request.Context(), hooks.Principal().PrincipalID(), limit)
	if err != nil {
		errors.WriteHTTPError(c.Writer, h.logger, errors.NewExternalServiceError("audit", err))
		c.Abort()
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"events": entries})
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
}

func (h *Handler) unauthorized(c *gin.Context) {
	errors.WriteHTTPError(c.Writer, nil, errors.NewAuthenticationError("no active session"))
	c.Abort()
}
