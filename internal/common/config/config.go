// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	HTTP     HTTPConfig              `mapstructure:"http"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Sessions SessionsConfig          `mapstructure:"sessions"`
	Auth     AuthConfig              `mapstructure:"auth"`
	Audit    AuditConfig             `mapstructure:"audit"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
	TrustProxy      bool   `mapstructure:"trust_proxy"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	UsersTable     string `mapstructure:"users_table"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Session Tracking ---

const (
	ProbeModeProbe     = "probe"
	ProbeModeMergeOnly = "merge_only"
)

// SessionsConfig controls how sessions are recorded on principals.
type SessionsConfig struct {
	Fields            SessionFieldsConfig `mapstructure:"fields"`
	CookieName        string              `mapstructure:"cookie_name"`
	CookieSecure      bool                `mapstructure:"cookie_secure"`
	KeyPrefix         string              `mapstructure:"key_prefix"`
	ProbeMode         string              `mapstructure:"probe_mode"`
	ProbeTimeout      int                 `mapstructure:"probe_timeout"` // milliseconds
	MaxConcurrency    int                 `mapstructure:"max_concurrency"`
	InstallLogoutHook *bool               `mapstructure:"install_logout_hook"`
	TTL               int                 `mapstructure:"ttl"` // seconds
}

// SessionFieldsConfig names the attributes a session record is stored under.
type SessionFieldsConfig struct {
	Sessions      string `mapstructure:"sessions"`
	SourceAddress string `mapstructure:"source_address"`
	LastActivity  string `mapstructure:"last_activity"`
	SessionID     string `mapstructure:"session_id"`
}

// HookEnabled reports whether the logout hook should be installed. Unset means yes.
func (s SessionsConfig) HookEnabled() bool {
	return s.InstallLogoutHook == nil || *s.InstallLogoutHook
}

func (s SessionsConfig) GetTTL() time.Duration {
	return time.Duration(s.TTL) * time.Second
}

// --- Specific Configuration Sections ---

// AuthConfig holds identity provider settings.
type AuthConfig struct {
	Keycloak KeycloakConfig `mapstructure:"keycloak"`
}

type KeycloakConfig struct {
	URL          string `mapstructure:"url"`
	Realm        string `mapstructure:"realm"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// Enabled reports whether enough is configured to call Keycloak.
func (k KeycloakConfig) Enabled() bool {
	return k.URL != "" && k.Realm != "" && k.ClientID != ""
}

const (
	AuditBackendNone          = "none"
	AuditBackendRedis         = "redis"
	AuditBackendElasticsearch = "elasticsearch"
)

// AuditConfig selects where session events are written.
type AuditConfig struct {
	Backends   []string `mapstructure:"backends"`
	Index      string   `mapstructure:"index"`
	Retention  int      `mapstructure:"retention"` // seconds
	MaxEntries int      `mapstructure:"max_entries"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
