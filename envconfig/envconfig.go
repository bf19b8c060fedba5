package envconfig

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/viper"
)

var (
	// ErrNoOrigins is returned when neither the caller nor <PREFIX>_ORIGINS names an origin.
	ErrNoOrigins = errors.New("envconfig: no origins configured")
	// ErrInvalidValue wraps unparsable durations and unreadable key files.
	ErrInvalidValue = errors.New("envconfig: invalid value")
)

// Loader reads origin definitions from the environment and an optional .env file.
type Loader struct {
	v      *viper.Viper
	prefix string
}

// Option configures a Loader.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile string
}

// WithEnvFile reads path as a dotenv file before consulting the environment.
// A missing file is ignored. Environment variables win over file entries.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// New returns a Loader for variables named <prefix>_<ORIGIN>_<FIELD>. An empty
// prefix drops the leading segment.
func New(prefix string, opts ...Option) (*Loader, error) {
	o := loaderOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	if o.envFile != "" {
		v.SetConfigFile(o.envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("envconfig: read %s: %w", o.envFile, err)
		}
	}
	v.AutomaticEnv()

	return &Loader{v: v, prefix: envSegment(prefix)}, nil
}

// Load is New followed by Loader.Load, reading .env from the working directory.
func Load(prefix string, origins ...string) (map[string]goSession.OriginConfig, error) {
	l, err := New(prefix, WithEnvFile(".env"))
	if err != nil {
		return nil, err
	}
	return l.Load(origins...)
}

// Origins returns the comma-separated origin names in <PREFIX>_ORIGINS.
func (l *Loader) Origins() []string {
	var out []string
	for _, name := range strings.Split(l.v.GetString(l.key("ORIGINS")), ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Load builds one OriginConfig per origin. With no arguments the names come
// from <PREFIX>_ORIGINS. Unset fields stay zero so DefineOrigin applies its
// defaults.
func (l *Loader) Load(origins ...string) (map[string]goSession.OriginConfig, error) {
	if len(origins) == 0 {
		origins = l.Origins()
	}
	if len(origins) == 0 {
		return nil, ErrNoOrigins
	}

	out := make(map[string]goSession.OriginConfig, len(origins))
	for _, origin := range origins {
		cfg, err := l.origin(origin)
		if err != nil {
			return nil, fmt.Errorf("origin %q: %w", origin, err)
		}
		out[origin] = cfg
	}
	return out, nil
}

func (l *Loader) origin(origin string) (goSession.OriginConfig, error) {
	get := func(field string) string {
		return strings.TrimSpace(l.v.GetString(l.key(envSegment(origin), field)))
	}

	cfg := goSession.OriginConfig{
		JWTSecret: get("JWT_SECRET"),
		Algorithm: get("JWT_ALGORITHM"),
		JWTOptions: goSession.JWTOptions{
			Issuer:   get("JWT_ISSUER"),
			Audience: get("JWT_AUDIENCE"),
			Subject:  get("JWT_SUBJECT"),
			KeyID:    get("JWT_KEY_ID"),
		},
	}

	var err error
	if cfg.JWTOptions.PrivateKey, err = l.pem(origin, "JWT_PRIVATE_KEY"); err != nil {
		return cfg, err
	}
	if cfg.JWTOptions.PublicKey, err = l.pem(origin, "JWT_PUBLIC_KEY"); err != nil {
		return cfg, err
	}

	durations := []struct {
		field string
		dst   *time.Duration
	}{
		{"ACCESS_TOKEN_LIFESPAN", &cfg.AccessTokenLifespan},
		{"MAX_REFRESH_TOKEN_LIFESPAN", &cfg.MaxRefreshTokenLifespan},
		{"IDLE_REFRESH_TOKEN_LIFESPAN", &cfg.IdleRefreshTokenLifespan},
		{"MAX_SESSION_LIFESPAN", &cfg.MaxSessionLifespan},
		{"IDLE_SESSION_LIFESPAN", &cfg.IdleSessionLifespan},
		{"JWT_LEEWAY", &cfg.JWTOptions.Leeway},
	}
	for _, d := range durations {
		raw := get(d.field)
		if raw == "" {
			continue
		}
		if *d.dst, err = parseDuration(raw); err != nil {
			return cfg, fmt.Errorf("%w: %s=%q", ErrInvalidValue, l.key(envSegment(origin), d.field), raw)
		}
	}
	return cfg, nil
}

// pem returns the key text of FIELD, or the contents of the file named by
// FIELD_FILE. Escaped newlines are expanded so keys fit on one env line.
func (l *Loader) pem(origin, field string) (any, error) {
	key := l.key(envSegment(origin), field)
	if raw := strings.TrimSpace(l.v.GetString(key)); raw != "" {
		return strings.ReplaceAll(raw, `\n`, "\n"), nil
	}
	path := strings.TrimSpace(l.v.GetString(key + "_FILE"))
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s_FILE: %v", ErrInvalidValue, key, err)
	}
	return data, nil
}

func (l *Loader) key(parts ...string) string {
	if l.prefix != "" {
		parts = append([]string{l.prefix}, parts...)
	}
	return strings.Join(parts, "_")
}

// parseDuration accepts Go durations ("15m") and bare integers as seconds.
func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func envSegment(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(name)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Apply defines every origin of configs on m in name order.
func Apply(m *goSession.Manager, configs map[string]goSession.OriginConfig) error {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := m.DefineOrigin(name, configs[name]); err != nil {
			return err
		}
	}
	return nil
}
