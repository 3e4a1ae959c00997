package goGuard

import (
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/audit"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/csrf"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/permission"
	"github.com/MrEthical07/goGuard/session"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrEthical07/goGuard"

// Builder composes an [Engine]. A Builder can be built once.
//
//	Docs: docs/engine.md
type Builder struct {
	config Config
	redis  redis.UniversalClient

	logger    logrus.FieldLogger
	auditSink audit.Sink
	tracer    trace.TracerProvider
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration with a deep copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by sessions and the redis rate limit
// backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the primary audit sink. Without one, events are
// written to the engine logger.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	return b
}

// WithClock overrides time.Now for every component. Intended for tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithRoles replaces the role table.
func (b *Builder) WithRoles(roles map[string][]string) *Builder {
	b.config.Roles = make(map[string][]string, len(roles))
	for role, perms := range roles {
		b.config.Roles[role] = append([]string(nil), perms...)
	}
	return b
}

// WithOperation registers op under op.Name.
func (b *Builder) WithOperation(op Operation) *Builder {
	if b.config.Operations == nil {
		b.config.Operations = make(map[string]Operation)
	}
	b.config.Operations[op.Name] = cloneOperation(op)
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. Redis is
// only required when sessions or the redis rate limit backend are enabled.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		logger = l
	}
	tp := b.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	// -------- PERMISSION REGISTRY --------
	registry := permission.NewRegistry(cfg.SuperRole)
	roles := make([]string, 0, len(cfg.Roles))
	for role := range cfg.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		if err := registry.RegisterRole(role, cfg.Roles[role]); err != nil {
			return nil, err
		}
	}
	for module, perm := range cfg.Modules {
		if err := registry.MapModule(module, perm); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	engine := &Engine{
		config:     cfg,
		registry:   registry,
		logger:     logger,
		tracer:     tp.Tracer(tracerName),
		now:        clock,
		metrics:    NewMetrics(cfg.Metrics),
		operations: make(map[string]Operation, len(cfg.Operations)),
	}
	for name, op := range cfg.Operations {
		op.Name = name
		engine.operations[name] = op
	}

	// -------- TOKENS --------
	if cfg.JWT.SigningMethod != "" {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.JWT.AccessTTL,
			SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
			PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
			PublicKey:     cloneBytes(cfg.JWT.PublicKey),
			Issuer:        cfg.JWT.Issuer,
			Audience:      cfg.JWT.Audience,
			Leeway:        cfg.JWT.Leeway,
			Clock:         clock,
		})
		if err != nil {
			return nil, err
		}
		engine.jwtManager = jm
	}

	// -------- SESSION STORE --------
	if cfg.Session.Enabled {
		if b.redis == nil {
			return nil, ErrRedisRequired
		}
		engine.sessionStore = session.NewStore(b.redis, session.StoreConfig{
			Prefix: cfg.Session.RedisPrefix,
			TTL:    cfg.Session.TTL,
		})
	}

	// -------- RATE LIMITER --------
	switch cfg.RateLimit.Backend {
	case "redis":
		if b.redis == nil {
			return nil, ErrRedisRequired
		}
		engine.limiter = rate.NewRedis(b.redis, rate.RedisConfig{
			Prefix: cfg.RateLimit.RedisPrefix,
			Clock:  clock,
		})
	default:
		engine.limiter = rate.NewMemory(rate.MemoryConfig{Clock: clock})
	}

	repeats, err := limiters.NewRepeatTracker(limiters.RepeatConfig{
		Threshold: cfg.Guard.SuspiciousThreshold,
		Window:    cfg.Guard.SuspiciousWindow,
		Capacity:  cfg.Guard.SuspiciousCapacity,
	})
	if err != nil {
		return nil, err
	}
	engine.repeats = repeats

	// -------- INTEGRITY --------
	if cfg.Integrity.Enabled {
		signer, err := csrf.New(cfg.Secrets.MasterKey)
		if err != nil {
			return nil, err
		}
		engine.integrity = signer
	}

	// -------- AUDIT --------
	var chainKey []byte
	if cfg.Audit.Chain {
		chainKey, err = internal.DeriveKey(cfg.Secrets.MasterKey, internal.KeyLabelAuditChain)
		if err != nil {
			return nil, err
		}
	}
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewLogrusSink(logger)
	}
	m := engine.metrics
	engine.audit = audit.NewRecorder(sink, audit.Config{
		Async:          cfg.Audit.Async,
		BufferSize:     cfg.Audit.BufferSize,
		DropIfFull:     cfg.Audit.DropIfFull,
		EnqueueTimeout: cfg.Audit.EnqueueTimeout,
		WriteTimeout:   cfg.Timeouts.Audit,
		ChainKey:       chainKey,
		Tables:         audit.NewTables(cfg.Compliance.Flags, cfg.Compliance.Retention),
		Fallback:       logger,
		Hooks: audit.Hooks{
			Recorded: func() { m.Inc(MetricAuditRecorded) },
			Failed:   func() { m.Inc(MetricAuditFailed) },
			Dropped:  func() { m.Inc(MetricAuditDropped) },
		},
		Clock: clock,
	})

	engine.deps = engine.guardDeps()
	b.built = true

	return engine, nil
}
