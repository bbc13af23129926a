// Package config assembles runtime configuration from defaults, a local
// .env file, the process environment and secret references.
package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultIdleTimeout    = 120 * time.Second
	defaultBackendTimeout = 20 * time.Second
	defaultLookupTimeout  = 8 * time.Second
	defaultSessionTTL     = 10 * time.Minute
	defaultRatePerMinute  = 120
	defaultQuoteRate      = 30
	defaultCollection     = "sessions"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firestore  FirestoreConfig
	Backend    BackendConfig
	Lookup     LookupConfig
	Session    SessionConfig
	Jobs       JobsConfig
	RateLimits RateLimitConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores session-store database parameters. An empty
// project ID selects the in-memory store.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// BackendConfig points at the order backend endpoint.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LookupConfig points at the postal-code lookup service.
type LookupConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig controls client-session token issuance.
type SessionConfig struct {
	// TokenSecret signs client-session tokens; secret:// references are
	// resolved during load.
	TokenSecret string
	TTL         time.Duration
}

// JobsConfig configures asynchronous order-event publishing. An empty
// topic disables publishing.
type JobsConfig struct {
	ProjectID string
	Topic     string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DefaultPerMinute int
	QuotePerMinute   int
}

// SecretResolver resolves secret:// references found in config values.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// Resolve resolves the secret using the wrapped function.
func (f SecretResolverFunc) Resolve(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing or invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map taking precedence over
// the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading os.Getenv, for deterministic tests.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the configuration. Precedence: explicit map, then the
// system environment, then the .env file, then defaults.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnv[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "ENGINE_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "ENGINE_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "ENGINE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "ENGINE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "ENGINE_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "ENGINE_FIRESTORE_EMULATOR_HOST", ""),
			Collection:   stringWithDefault(lookup, "ENGINE_FIRESTORE_COLLECTION", defaultCollection),
		},
		Backend: BackendConfig{
			BaseURL: stringWithDefault(lookup, "ENGINE_BACKEND_URL", ""),
			Timeout: durationWithDefault(lookup, "ENGINE_BACKEND_TIMEOUT", defaultBackendTimeout),
		},
		Lookup: LookupConfig{
			BaseURL: stringWithDefault(lookup, "ENGINE_LOOKUP_URL", ""),
			Timeout: durationWithDefault(lookup, "ENGINE_LOOKUP_TIMEOUT", defaultLookupTimeout),
		},
		Session: SessionConfig{
			TokenSecret: stringWithDefault(lookup, "ENGINE_SESSION_TOKEN_SECRET", ""),
			TTL:         durationWithDefault(lookup, "ENGINE_SESSION_TTL", defaultSessionTTL),
		},
		Jobs: JobsConfig{
			ProjectID: stringWithDefault(lookup, "ENGINE_JOBS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "ENGINE_JOBS_TOPIC", ""),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute: intWithDefault(lookup, "ENGINE_RATELIMIT_DEFAULT_PER_MIN", defaultRatePerMinute),
			QuotePerMinute:   intWithDefault(lookup, "ENGINE_RATELIMIT_QUOTE_PER_MIN", defaultQuoteRate),
		},
	}

	// Jobs publishing defaults to the session-store project.
	if cfg.Jobs.ProjectID == "" {
		cfg.Jobs.ProjectID = cfg.Firestore.ProjectID
	}

	if strings.HasPrefix(strings.TrimSpace(cfg.Session.TokenSecret), "secret://") {
		if options.secret == nil {
			return Config{}, fmt.Errorf("config: secret resolver required for %q", "Session.TokenSecret")
		}
		resolved, err := options.secret.Resolve(ctx, strings.TrimSpace(cfg.Session.TokenSecret))
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve Session.TokenSecret: %w", err)
		}
		cfg.Session.TokenSecret = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		missing = append(missing, "Backend.BaseURL")
	}
	if strings.TrimSpace(cfg.Session.TokenSecret) == "" {
		missing = append(missing, "Session.TokenSecret")
	}
	if cfg.Session.TTL <= 0 {
		missing = append(missing, "Session.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(parts[1]), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
