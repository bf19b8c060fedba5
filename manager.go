package goSession

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
	"go.uber.org/zap"
)

const (
	// DefaultCleanupInterval is the number of GenerateRefreshToken calls between
	// opportunistic DeleteExpired runs.
	DefaultCleanupInterval = 50
	defaultCleanupTimeout  = 30 * time.Second

	sessionIDBytes = 16
)

// Manager issues, rotates, validates and invalidates origin-scoped refresh and
// access tokens over a session.Store.
//
// A Manager is safe for concurrent use. Origins are normally defined once at
// startup; redefining one replaces its configuration for subsequent calls.
type Manager struct {
	store   session.Store
	logger  *zap.Logger
	now     func() time.Time
	metrics *Metrics
	audit   *audit.Dispatcher

	auditSink   AuditSink
	auditConfig AuditConfig

	mu      sync.RWMutex
	origins map[string]*originState

	cleanupEvery   int
	cleanupTimeout time.Duration
	cleanupMu      sync.Mutex
	cleanupCount   int
	cleanupWG      sync.WaitGroup
	closed         bool
}

type originState struct {
	name   string
	config OriginConfig
	tokens *jwt.Manager
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides time.Now. The same clock drives token timestamps and
// expiry checks, so tests should hand the store the same function.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCleanupInterval sets how many GenerateRefreshToken calls trigger one
// DeleteExpired run. Zero or a negative value disables cleanup.
func WithCleanupInterval(n int) Option {
	return func(m *Manager) {
		m.cleanupEvery = n
	}
}

// WithCleanupTimeout bounds each background DeleteExpired run.
func WithCleanupTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cleanupTimeout = d
		}
	}
}

// WithMetrics enables in-process counters.
func WithMetrics(cfg MetricsConfig) Option {
	return func(m *Manager) {
		m.metrics = NewMetrics(cfg)
	}
}

// WithAuditSink starts an audit dispatcher delivering to sink.
func WithAuditSink(sink AuditSink, cfg AuditConfig) Option {
	return func(m *Manager) {
		m.auditSink = sink
		m.auditConfig = cfg
	}
}

// NewManager creates a Manager over store. Origins must be added with
// DefineOrigin before use.
func NewManager(store session.Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	m := &Manager{
		store:          store,
		logger:         zap.NewNop(),
		now:            time.Now,
		metrics:        NewMetrics(MetricsConfig{}),
		origins:        make(map[string]*originState),
		cleanupEvery:   DefaultCleanupInterval,
		cleanupTimeout: defaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("gosession")
	m.audit = audit.NewDispatcher(audit.Config{
		Enabled:    m.auditConfig.Enabled,
		BufferSize: m.auditConfig.BufferSize,
		DropIfFull: m.auditConfig.DropIfFull,
		Logger:     m.logger.Named("audit"),
	}, m.auditSink)

	return m, nil
}

// DefineOrigin registers or replaces the configuration of origin.
//
// Lifespans default when zero and key material is parsed here, so malformed
// PEM fails now. Missing keys do not: they fail the first sign or verify that
// needs them, which lets a deployment correct keys with another DefineOrigin.
func (m *Manager) DefineOrigin(origin string, cfg OriginConfig) error {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ErrOriginRequired
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	keys, err := jwt.ResolveKeys(cfg.Algorithm, []byte(cfg.JWTSecret), cfg.JWTOptions.PrivateKey, cfg.JWTOptions.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: origin %q: %w", ErrInvalidOriginConfig, origin, err)
	}

	tokens, err := jwt.NewManager(jwt.Config{
		Algorithm: cfg.Algorithm,
		Keys:      keys,
		Issuer:    cfg.JWTOptions.Issuer,
		Audience:  cfg.JWTOptions.Audience,
		Subject:   cfg.JWTOptions.Subject,
		KeyID:     cfg.JWTOptions.KeyID,
		Leeway:    cfg.JWTOptions.Leeway,
		Claims:    cfg.JWTOptions.Claims,
		Now:       m.now,
	})
	if err != nil {
		return fmt.Errorf("%w: origin %q: %w", ErrInvalidOriginConfig, origin, err)
	}

	m.mu.Lock()
	_, replaced := m.origins[origin]
	m.origins[origin] = &originState{name: origin, config: cfg, tokens: tokens}
	m.mu.Unlock()

	m.logger.Info("origin defined",
		zap.String("origin", origin),
		zap.String("algorithm", cfg.Algorithm),
		zap.Bool("replaced", replaced),
	)
	return nil
}

// HasOrigin reports whether origin has been defined.
func (m *Manager) HasOrigin(origin string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.origins[origin]
	return ok
}

// Origins returns the defined origin names in sorted order.
func (m *Manager) Origins() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.origins))
	for name := range m.origins {
		names = append(names, name)
	}
	m.mu.RUnlock()

	sort.Strings(names)
	return names
}

// OriginConfig returns the effective configuration of origin, defaults applied.
func (m *Manager) OriginConfig(origin string) (OriginConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.origins[origin]
	if !ok {
		return OriginConfig{}, false
	}
	return st.config, true
}

func (m *Manager) lookup(origin string) (*originState, error) {
	if origin == "" {
		return nil, ErrOriginRequired
	}
	m.mu.RLock()
	st, ok := m.origins[origin]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOriginNotConfigured, origin)
	}
	return st, nil
}

// GenerateSessionID returns 16 random bytes from crypto/rand as 32 hex characters.
func GenerateSessionID() (string, error) {
	var b [sessionIDBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// MetricsSnapshot returns a copy of the in-process counters.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (m *Manager) AuditDropped() uint64 {
	return m.audit.Dropped()
}

// Close waits for in-flight cleanup runs and flushes the audit dispatcher.
// Operations remain usable afterwards but no further cleanup is scheduled.
func (m *Manager) Close() {
	m.cleanupMu.Lock()
	m.closed = true
	m.cleanupMu.Unlock()

	m.cleanupWG.Wait()
	m.audit.Close()
}

func (m *Manager) emit(ctx context.Context, eventType string, st *originState, fill func(*AuditEvent)) {
	if m.audit == nil {
		return
	}
	event := audit.NewEvent(m.now(), eventType, st.name)
	event.Success = true
	if fill != nil {
		fill(&event)
	}
	m.audit.Emit(ctx, event)
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
