package goGuard

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/audit"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/permission"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/validation"
	"gopkg.in/yaml.v3"
)

// Config is the startup configuration of an [Engine]. It is cloned by
// [Builder.WithConfig] and never re-read per request.
//
//	Docs: docs/config.md
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Audit     AuditConfig     `yaml:"audit"`
	Integrity IntegrityConfig `yaml:"integrity"`
	Guard     GuardConfig     `yaml:"guard"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Secrets   SecretsConfig   `yaml:"-"`

	// Roles maps each role to its permissions.
	Roles map[string][]string `yaml:"roles"`
	// SuperRole holds every permission. Defaults to super_admin.
	SuperRole string `yaml:"super_role"`
	// Modules maps a module key to the permission required to open it.
	Modules    map[string]string    `yaml:"modules"`
	Operations map[string]Operation `yaml:"operations"`
	Compliance ComplianceConfig     `yaml:"compliance"`
}

/*
====================================
SUB CONFIGS
====================================
*/

// SessionConfig controls server-side sessions. Sessions need a Redis
// client.
type SessionConfig struct {
	Enabled     bool          `yaml:"enabled"`
	RedisPrefix string        `yaml:"redis_prefix"`
	TTL         time.Duration `yaml:"ttl"`
	// MaxIdle expires a session that has not been seen for this long.
	MaxIdle time.Duration `yaml:"max_idle"`
	// MaxAge is an optional absolute lifetime. Zero disables it.
	MaxAge             time.Duration             `yaml:"max_age"`
	Fingerprint        session.FingerprintPolicy `yaml:"fingerprint"`
	EnforceFingerprint bool                      `yaml:"enforce_fingerprint"`
}

// JWTConfig enables bearer access tokens. An empty SigningMethod disables
// token identity.
type JWTConfig struct {
	SigningMethod string        `yaml:"signing_method"` // "ed25519" or "hs256"
	AccessTTL     time.Duration `yaml:"access_ttl"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
	PrivateKey    []byte        `yaml:"-"`
	PublicKey     []byte        `yaml:"-"`
}

// RateLimitConfig selects the limiter backend.
type RateLimitConfig struct {
	Backend     string `yaml:"backend"` // "memory" (default) or "redis"
	RedisPrefix string `yaml:"redis_prefix"`
}

// AuditConfig controls audit delivery.
type AuditConfig struct {
	Async          bool          `yaml:"async"`
	BufferSize     int           `yaml:"buffer_size"`
	DropIfFull     bool          `yaml:"drop_if_full"`
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
	// Chain seals events into an HMAC hash chain keyed from the master key.
	Chain bool `yaml:"chain"`
}

// IntegrityConfig enables integrity tokens for mutating operations. The
// signing key is derived from Secrets.MasterKey.
type IntegrityConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GuardConfig tunes pipeline classification.
type GuardConfig struct {
	// SuspiciousThreshold rate limit denials within SuspiciousWindow are
	// recorded as suspicious activity. Zero disables escalation.
	SuspiciousThreshold int           `yaml:"suspicious_threshold"`
	SuspiciousWindow    time.Duration `yaml:"suspicious_window"`
	SuspiciousCapacity  int           `yaml:"suspicious_capacity"`
}

// TimeoutConfig bounds each backend-facing stage.
type TimeoutConfig struct {
	Session   time.Duration `yaml:"session"`
	RateLimit time.Duration `yaml:"rate_limit"`
	Audit     time.Duration `yaml:"audit"`
}

// MetricsConfig toggles in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// SecretsConfig holds key material. It is never read from YAML.
type SecretsConfig struct {
	MasterKey []byte
}

// ComplianceConfig overrides the default compliance and retention tables.
type ComplianceConfig struct {
	Flags     map[audit.EventType][]string `yaml:"flags"`
	Retention map[audit.EventType]string   `yaml:"retention"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration with in-memory rate limiting,
// synchronous audit delivery and sessions disabled.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix: "gs",
			TTL:         24 * time.Hour,
			MaxIdle:     15 * time.Minute,
		},
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Issuer:    "goguard",
		},
		RateLimit: RateLimitConfig{
			Backend:     "memory",
			RedisPrefix: "gg:rl",
		},
		Audit: AuditConfig{
			BufferSize:     1024,
			EnqueueTimeout: 50 * time.Millisecond,
		},
		Guard: GuardConfig{
			SuspiciousThreshold: 5,
			SuspiciousWindow:    10 * time.Minute,
		},
		Timeouts: TimeoutConfig{
			Session:   250 * time.Millisecond,
			RateLimit: 250 * time.Millisecond,
			Audit:     time.Second,
		},
		SuperRole: permission.DefaultSuperRole,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Secrets.MasterKey = cloneBytes(cfg.Secrets.MasterKey)

	if cfg.Roles != nil {
		out.Roles = make(map[string][]string, len(cfg.Roles))
		for role, perms := range cfg.Roles {
			out.Roles[role] = append([]string(nil), perms...)
		}
	}
	if cfg.Modules != nil {
		out.Modules = make(map[string]string, len(cfg.Modules))
		for k, v := range cfg.Modules {
			out.Modules[k] = v
		}
	}
	if cfg.Operations != nil {
		out.Operations = make(map[string]Operation, len(cfg.Operations))
		for name, op := range cfg.Operations {
			out.Operations[name] = cloneOperation(op)
		}
	}
	if cfg.Compliance.Flags != nil {
		out.Compliance.Flags = make(map[audit.EventType][]string, len(cfg.Compliance.Flags))
		for et, flags := range cfg.Compliance.Flags {
			out.Compliance.Flags[et] = append([]string(nil), flags...)
		}
	}
	if cfg.Compliance.Retention != nil {
		out.Compliance.Retention = make(map[audit.EventType]string, len(cfg.Compliance.Retention))
		for et, r := range cfg.Compliance.Retention {
			out.Compliance.Retention[et] = r
		}
	}
	return out
}

func cloneOperation(op Operation) Operation {
	out := op
	if op.Validation != nil {
		out.Validation = make(map[string]validation.Rule, len(op.Validation))
		for f, r := range op.Validation {
			out.Validation[f] = r
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks c for internally consistent values. It does not check
// that a Redis client is available; Build does that.
func (c *Config) Validate() error {
	if c.Session.Enabled {
		if c.Session.TTL <= 0 {
			return errors.New("Session TTL must be > 0")
		}
		if c.Session.MaxIdle < 0 || c.Session.MaxAge < 0 {
			return errors.New("Session MaxIdle and MaxAge must be >= 0")
		}
		if c.Session.MaxIdle > c.Session.TTL {
			return errors.New("Session MaxIdle must be <= TTL")
		}
	}
	if c.Session.EnforceFingerprint && !c.Session.Fingerprint.Enabled() {
		return errors.New("Session EnforceFingerprint requires a fingerprint attribute")
	}

	switch strings.ToLower(c.JWT.SigningMethod) {
	case "":
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod != "" && c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}

	switch c.RateLimit.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("unsupported rate limit backend %q", c.RateLimit.Backend)
	}

	if c.Audit.Async && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when async")
	}
	if (c.Audit.Chain || c.Integrity.Enabled) && len(c.Secrets.MasterKey) < internal.MinMasterKeyLen {
		return fmt.Errorf("Secrets MasterKey must be at least %d bytes", internal.MinMasterKeyLen)
	}

	if c.Guard.SuspiciousThreshold < 0 {
		return errors.New("Guard SuspiciousThreshold must be >= 0")
	}
	if c.Guard.SuspiciousThreshold > 0 && c.Guard.SuspiciousWindow <= 0 {
		return errors.New("Guard SuspiciousWindow must be > 0 when SuspiciousThreshold is set")
	}
	if c.Timeouts.Session < 0 || c.Timeouts.RateLimit < 0 || c.Timeouts.Audit < 0 {
		return errors.New("Timeouts must be >= 0")
	}

	for role := range c.Roles {
		if role == permission.RoleAnonymous || role == c.superRole() {
			return fmt.Errorf("role %q is reserved", role)
		}
	}
	for module, perm := range c.Modules {
		if module == "" || perm == "" {
			return errors.New("Modules entries must have a module and a permission")
		}
	}
	for name, op := range c.Operations {
		if err := validateOperation(name, op); err != nil {
			return err
		}
	}
	for et := range c.Compliance.Retention {
		if c.Compliance.Retention[et] == "" {
			return fmt.Errorf("Compliance retention for %q is empty", et)
		}
	}
	return nil
}

func validateOperation(name string, op Operation) error {
	if name == "" {
		return errors.New("operation name empty")
	}
	if err := op.RateLimit.policy().Validate(); err != nil {
		return fmt.Errorf("operation %q: %w", name, err)
	}
	if err := validation.ValidateRules(op.Validation); err != nil {
		return fmt.Errorf("operation %q: %w", name, err)
	}
	if op.AuditSeverity != "" && !op.AuditSeverity.Valid() {
		return fmt.Errorf("operation %q: invalid audit severity %q", name, op.AuditSeverity)
	}
	return nil
}

func (c *Config) superRole() string {
	if c.SuperRole == "" {
		return permission.DefaultSuperRole
	}
	return c.SuperRole
}

/*
====================================
LOADING
====================================
*/

// LoadConfig reads a YAML file on top of [DefaultConfig], then applies
// GOGUARD_* environment overrides, then validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	for name, op := range cfg.Operations {
		op.Name = name
		cfg.Operations[name] = op
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if key := getEnv("GOGUARD_MASTER_KEY", ""); key != "" {
		cfg.Secrets.MasterKey = []byte(key)
	}
	if secret := getEnv("GOGUARD_JWT_SECRET", ""); secret != "" {
		cfg.JWT.PrivateKey = []byte(secret)
		if cfg.JWT.SigningMethod == "" {
			cfg.JWT.SigningMethod = "hs256"
		}
	}
	cfg.RateLimit.Backend = getEnv("GOGUARD_RATE_LIMIT_BACKEND", cfg.RateLimit.Backend)
	cfg.Session.Enabled = getEnvBool("GOGUARD_SESSION_ENABLED", cfg.Session.Enabled)
	cfg.Session.MaxIdle = getEnvDuration("GOGUARD_SESSION_MAX_IDLE", cfg.Session.MaxIdle)
	cfg.Audit.Async = getEnvBool("GOGUARD_AUDIT_ASYNC", cfg.Audit.Async)
	cfg.Audit.BufferSize = getEnvInt("GOGUARD_AUDIT_BUFFER_SIZE", cfg.Audit.BufferSize)
	cfg.Metrics.Enabled = getEnvBool("GOGUARD_METRICS_ENABLED", cfg.Metrics.Enabled)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
