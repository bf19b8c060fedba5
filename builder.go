package goSession

import (
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles a Manager from a store, ambient dependencies and origin
// definitions. A Builder can be used once.
type Builder struct {
	store       session.Store
	redis       redis.UniversalClient
	redisPrefix string

	logger *zap.Logger
	clock  func() time.Time

	auditSink AuditSink
	audit     AuditConfig
	metrics   MetricsConfig

	cleanupInterval *int
	origins         []namedOrigin

	built bool
}

type namedOrigin struct {
	name   string
	config OriginConfig
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// WithStore sets the session store. It takes precedence over WithRedis.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithRedis stores sessions in Redis under prefix.
func (b *Builder) WithRedis(client redis.UniversalClient, prefix string) *Builder {
	b.redis = client
	b.redisPrefix = prefix
	return b
}

// WithLogger sets the logger passed to the Manager.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for the Manager and a Redis store built here.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithAuditSink enables the audit dispatcher with a 1024-event buffer that
// drops when full. Use WithAuditConfig to change that.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if !b.audit.Enabled {
		b.audit = AuditConfig{Enabled: true, BufferSize: 1024, DropIfFull: true}
	}
	return b
}

// WithAuditConfig replaces the audit buffering settings.
func (b *Builder) WithAuditConfig(cfg AuditConfig) *Builder {
	b.audit = cfg
	return b
}

// WithMetricsEnabled turns the in-process counters on or off.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms records ValidateRefreshToken latency. It needs metrics
// enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.metrics.EnableLatencyHistograms = enabled
	return b
}

// WithCleanupInterval sets how many GenerateRefreshToken calls separate
// cleanup runs. Zero or less disables cleanup.
func (b *Builder) WithCleanupInterval(n int) *Builder {
	b.cleanupInterval = &n
	return b
}

// WithOrigin queues an origin definition applied by Build.
func (b *Builder) WithOrigin(name string, cfg OriginConfig) *Builder {
	b.origins = append(b.origins, namedOrigin{name: name, config: cfg})
	return b
}

// Build creates the Manager and defines every queued origin. Any origin error
// aborts the build.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	store := b.store
	if store == nil && b.redis != nil {
		opts := []session.RedisOption{}
		if b.clock != nil {
			opts = append(opts, session.WithRedisClock(b.clock))
		}
		store = session.NewRedisStore(b.redis, b.redisPrefix, opts...)
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	opts := []Option{
		WithLogger(b.logger),
		WithClock(b.clock),
		WithMetrics(b.metrics),
	}
	if b.audit.Enabled {
		opts = append(opts, WithAuditSink(b.auditSink, b.audit))
	}
	if b.cleanupInterval != nil {
		opts = append(opts, WithCleanupInterval(*b.cleanupInterval))
	}

	m, err := NewManager(store, opts...)
	if err != nil {
		return nil, err
	}
	for _, o := range b.origins {
		if err := m.DefineOrigin(o.name, o.config); err != nil {
			m.Close()
			return nil, err
		}
	}

	b.built = true
	return m, nil
}
