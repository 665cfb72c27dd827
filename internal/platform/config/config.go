package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultEnvironment      = "local"
	defaultDummyBaseURL     = "https://dummyjson.com"
	defaultFakeStoreBaseURL = "https://fakestoreapiserver.reactbd.org"
	defaultSourceTimeout    = 8 * time.Second
	defaultSourceCooldown   = 30 * time.Second
	defaultSessionCookie    = "ECOSHOP_SESSION"
	defaultSessionIdleTTL   = 24 * time.Hour
	defaultSessionSweep     = 10 * time.Minute
	defaultCurrency         = "USD"
	defaultTaxRate          = "0.08"
	defaultExpressShipping  = "15"
	defaultLogLevel         = "info"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment   string
	Server        ServerConfig
	Sources       SourcesConfig
	Session       SessionConfig
	Checkout      CheckoutConfig
	Observability ObservabilityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// SourcesConfig points the catalog at its remote listing endpoints.
type SourcesConfig struct {
	DummyBaseURL     string
	FakeStoreBaseURL string
	Timeout          time.Duration
	// FailureCooldown holds off refetching after every remote source failed.
	FailureCooldown time.Duration
	// DisableRemote serves the bundled catalog only.
	DisableRemote bool
}

// SessionConfig controls the storefront session cookie and in-memory cart lifetime.
type SessionConfig struct {
	CookieName    string
	IdleTTL       time.Duration
	SweepInterval time.Duration
	SecureCookie  bool
}

// CheckoutConfig holds the mock checkout pricing rules.
type CheckoutConfig struct {
	Currency        string
	TaxRate         decimal.Decimal
	ExpressShipping decimal.Decimal
}

// ObservabilityConfig toggles logging verbosity and the metrics endpoint.
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
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
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from defaults, .env overrides, environment variables
// and explicit maps (in increasing precedence).
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
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
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	var invalid []string
	decimalField := func(key, fallback, field string) decimal.Decimal {
		raw := stringWithDefault(lookup, key, fallback)
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			invalid = append(invalid, field)
			return decimal.Zero
		}
		return value
	}

	// Cloud Run injects PORT; the prefixed variable wins when both are set.
	port := stringWithDefault(lookup, "PORT", defaultPort)
	port = stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", port)

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_ENV", defaultEnvironment)),
		Server: ServerConfig{
			Port:            strings.TrimPrefix(strings.TrimSpace(port), ":"),
			ReadTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			AllowedOrigins:  csvWithDefault(lookup, "STOREFRONT_SERVER_ALLOWED_ORIGINS"),
		},
		Sources: SourcesConfig{
			DummyBaseURL:     strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_SOURCES_DUMMY_BASE_URL", defaultDummyBaseURL), "/"),
			FakeStoreBaseURL: strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_SOURCES_FAKESTORE_BASE_URL", defaultFakeStoreBaseURL), "/"),
			Timeout:          durationWithDefault(lookup, "STOREFRONT_SOURCES_TIMEOUT", defaultSourceTimeout),
			FailureCooldown:  durationWithDefault(lookup, "STOREFRONT_SOURCES_FAILURE_COOLDOWN", defaultSourceCooldown),
			DisableRemote:    boolWithDefault(lookup, "STOREFRONT_SOURCES_DISABLE_REMOTE", false),
		},
		Session: SessionConfig{
			CookieName:    stringWithDefault(lookup, "STOREFRONT_SESSION_COOKIE", defaultSessionCookie),
			IdleTTL:       durationWithDefault(lookup, "STOREFRONT_SESSION_IDLE_TTL", defaultSessionIdleTTL),
			SweepInterval: durationWithDefault(lookup, "STOREFRONT_SESSION_SWEEP_INTERVAL", defaultSessionSweep),
		},
		Checkout: CheckoutConfig{
			Currency:        strings.ToUpper(stringWithDefault(lookup, "STOREFRONT_CHECKOUT_CURRENCY", defaultCurrency)),
			TaxRate:         decimalField("STOREFRONT_CHECKOUT_TAX_RATE", defaultTaxRate, "Checkout.TaxRate"),
			ExpressShipping: decimalField("STOREFRONT_CHECKOUT_EXPRESS_SHIPPING", defaultExpressShipping, "Checkout.ExpressShipping"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
			MetricsEnabled: boolWithDefault(lookup, "STOREFRONT_METRICS_ENABLED", true),
		},
	}

	// Secure cookies default on outside local development.
	cfg.Session.SecureCookie = boolWithDefault(lookup, "STOREFRONT_SESSION_SECURE_COOKIE", cfg.Environment != defaultEnvironment)

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	} else if n, err := strconv.Atoi(cfg.Server.Port); err != nil || n <= 0 || n > 65535 {
		missing = append(missing, "Server.Port")
	}
	if cfg.Server.ReadTimeout <= 0 {
		missing = append(missing, "Server.ReadTimeout")
	}
	if cfg.Server.WriteTimeout <= 0 {
		missing = append(missing, "Server.WriteTimeout")
	}
	if !cfg.Sources.DisableRemote {
		if !isAbsoluteURL(cfg.Sources.DummyBaseURL) {
			missing = append(missing, "Sources.DummyBaseURL")
		}
		if !isAbsoluteURL(cfg.Sources.FakeStoreBaseURL) {
			missing = append(missing, "Sources.FakeStoreBaseURL")
		}
	}
	if cfg.Sources.Timeout <= 0 {
		missing = append(missing, "Sources.Timeout")
	}
	if cfg.Sources.FailureCooldown < 0 {
		missing = append(missing, "Sources.FailureCooldown")
	}
	if strings.TrimSpace(cfg.Session.CookieName) == "" {
		missing = append(missing, "Session.CookieName")
	}
	if cfg.Session.IdleTTL <= 0 {
		missing = append(missing, "Session.IdleTTL")
	}
	if len(cfg.Checkout.Currency) != 3 {
		missing = append(missing, "Checkout.Currency")
	}
	if cfg.Checkout.TaxRate.IsNegative() || cfg.Checkout.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		missing = append(missing, "Checkout.TaxRate")
	}
	if cfg.Checkout.ExpressShipping.IsNegative() {
		missing = append(missing, "Checkout.ExpressShipping")
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

	if _, err := os.Stat(absPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	values, err := godotenv.Read(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func isAbsoluteURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
