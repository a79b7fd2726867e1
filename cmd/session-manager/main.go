// cmd/session-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"store-sessions/internal/api"
	"store-sessions/internal/audit"
	"store-sessions/internal/auth"
	keycloak "store-sessions/internal/common/auth"
	"store-sessions/internal/common/camunda"
	"store-sessions/internal/common/config"
	"store-sessions/internal/common/database"
	"store-sessions/internal/common/logger"
	"store-sessions/internal/common/observability"
	"store-sessions/internal/common/validation"
	"store-sessions/internal/middleware"
	"store-sessions/internal/principals"
	"store-sessions/internal/sessions"
	"store-sessions/internal/store/redisstore"

	invalidateothers "store-sessions/internal/workers/sessions/invalidate-other-sessions"
	revokesession "store-sessions/internal/workers/sessions/revoke-session"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// userSchema describes the persisted user document before session tracking
// declares its list field.
func userSchema() *validation.JSONSchema {
	return &validation.JSONSchema{
		Type:                 "object",
		Properties:           map[string]validation.Property{},
		AdditionalProperties: true,
	}
}

func hasBackend(cfg *config.Config, name string) bool {
	for _, b := range cfg.Audit.Backends {
		if b == name {
			return true
		}
	}
	return false
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting session manager...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs, err := observability.New(cfg.App.Name, prometheus.DefaultRegisterer)
	if err != nil {
		zapLog.Fatal("observability setup failed", zap.Error(err))
	}
	defer obs.Shutdown(context.Background())

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	rdb := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	checks := map[string]api.HealthCheck{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
	}

	// --- Audit trail ---
	recorders := audit.Multi{audit.CounterFunc(obs.RecordSessionEvent)}
	var eventLog api.EventLog
	if hasBackend(cfg, config.AuditBackendRedis) {
		rec := audit.NewRedisRecorder(rdb.Client, time.Duration(cfg.Audit.Retention)*time.Second, cfg.Audit.MaxEntries, log)
		recorders = append(recorders, rec)
		eventLog = rec
	}
	if hasBackend(cfg, config.AuditBackendElasticsearch) {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
		recorders = append(recorders, audit.NewElasticsearchRecorder(esClient.Client, cfg.Audit.Index, log))
		checks["elasticsearch"] = esClient.Ping
	}

	// --- Session tracking ---
	store := redisstore.New(rdb.Client,
		redisstore.WithPrefix(cfg.Sessions.KeyPrefix),
		redisstore.WithDefaultTTL(cfg.Sessions.GetTTL()),
	)

	fields := sessions.FieldNames{
		Sessions:      cfg.Sessions.Fields.Sessions,
		SourceAddress: cfg.Sessions.Fields.SourceAddress,
		LastActivity:  cfg.Sessions.Fields.LastActivity,
		SessionID:     cfg.Sessions.Fields.SessionID,
	}

	var probe sessions.Probe
	if cfg.Sessions.ProbeMode == config.ProbeModeProbe {
		probe = store
	}

	driver, err := sessions.New(sessions.Options{
		Fields:            &fields,
		Schema:            userSchema(),
		Probe:             probe,
		Destroyer:         store,
		InstallLogoutHook: cfg.Sessions.HookEnabled(),
		MaxConcurrency:    cfg.Sessions.MaxConcurrency,
		ProbeTimeout:      config.GetDuration(cfg.Sessions.ProbeTimeout),
		Logger:            log,
		Recorder:          recorders,
		Tracer:            obs.Tracer(),
	})
	if err != nil {
		zapLog.Fatal("session tracking setup failed", zap.Error(err))
	}

	users, err := principals.NewRepository(pg.DB, principals.Options{
		Table:  cfg.Database.Postgres.UsersTable,
		Fields: fields,
		Schema: driver.Schema(),
		Logger: log,
	})
	if err != nil {
		zapLog.Fatal("user repository setup failed", zap.Error(err))
	}

	var revoker auth.TokenRevoker
	if cfg.Auth.Keycloak.Enabled() {
		revoker = keycloak.NewKeycloakClient(
			cfg.Auth.Keycloak.URL,
			cfg.Auth.Keycloak.Realm,
			cfg.Auth.Keycloak.ClientID,
			cfg.Auth.Keycloak.ClientSecret,
			nil,
		)
		zapLog.Info("Keycloak logout enabled", zap.String("realm", cfg.Auth.Keycloak.Realm))
	}

	tracker := middleware.NewSessionTracker(middleware.Options{
		Driver: driver,
		Auth:   auth.NewService(store, revoker, log),
		Users:  users,
		Cookie: middleware.CookieOptions{
			Name:     cfg.Sessions.CookieName,
			Secure:   cfg.Sessions.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		},
		TrustProxy: cfg.HTTP.TrustProxy,
		Logger:     log,
	})

	// --- Workflow workers ---
	var zeebe *camunda.Client
	workers := camunda.NewWorkers(log)
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		if err != nil {
			zapLog.Fatal("zeebe client failed", zap.Error(err))
		}
		checks["zeebe"] = zeebe.HealthCheck

		invalidate, err := invalidateothers.NewHandler(invalidateothers.HandlerOptions{
			AppConfig:     cfg,
			Camunda:       zeebe,
			Logger:        log,
			Users:         users,
			Liveness:      store,
			Destroyer:     store,
			Recorder:      recorders,
			Observability: obs,
		})
		if err != nil {
			zapLog.Fatal("failed to create invalidate-others handler", zap.Error(err))
		}

		revoke, err := revokesession.NewHandler(revokesession.HandlerOptions{
			AppConfig:     cfg,
			Camunda:       zeebe,
			Logger:        log,
			Users:         users,
			Destroyer:     store,
			Recorder:      recorders,
			Observability: obs,
		})
		if err != nil {
			zapLog.Fatal("failed to create revoke-session handler", zap.Error(err))
		}

		if err := workers.Start(invalidate, revoke); err != nil {
			zapLog.Fatal("failed to start workers", zap.Error(err))
		}
	}

	// --- HTTP ---
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(tracker, checks, log)
	if eventLog != nil {
		handler = handler.WithEventLog(eventLog)
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.HTTP.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	workers.Stop()
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Session manager stopped gracefully")
}
