package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	IdentityRemote = "remote"
	IdentityLocal  = "local"

	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// ErrMissing marks a required setting that was not provided.
var ErrMissing = errors.New("config: missing required value")

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Identity Identity `yaml:"identity"`
	Store    Store    `yaml:"store"`
	Session  Session  `yaml:"session"`
	Log      Log      `yaml:"log"`
}

type HTTP struct {
	Addr         string        `yaml:"addr"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	RateBurst    int           `yaml:"rate_burst"`
	RatePerSec   int           `yaml:"rate_per_sec"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// TrustedProxies lists the addresses or CIDRs allowed to set
	// X-Forwarded-For. Empty means client addresses come from the socket.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Identity configures the hosted identity provider.
type Identity struct {
	Backend         string        `yaml:"backend"`
	URL             string        `yaml:"url"`
	AnonKey         string        `yaml:"anon_key"`
	ServiceRoleKey  string        `yaml:"service_role_key"`
	JWTSecret       string        `yaml:"jwt_secret"`
	OutboundTimeout time.Duration `yaml:"outbound_timeout"`
}

type Store struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

type Session struct {
	TTL           time.Duration `yaml:"ttl"`
	CookieSecure  bool          `yaml:"cookie_secure"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:         ":8080",
			MaxBodyBytes: 1 << 20,
			RateBurst:    10,
			RatePerSec:   5,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Identity: Identity{
			Backend:         IdentityRemote,
			OutboundTimeout: 30 * time.Second,
		},
		Store: Store{Backend: StorePostgres},
		Session: Session{
			TTL:          7 * 24 * time.Hour,
			CookieSecure: true,
		},
		Log: Log{Level: "info"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and ESSENCE_* environment variables, in that order, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("ESSENCE_HTTP_ADDR", &c.HTTP.Addr)
	str("ESSENCE_IDP_BACKEND", &c.Identity.Backend)
	str("ESSENCE_IDP_URL", &c.Identity.URL)
	str("ESSENCE_IDP_ANON_KEY", &c.Identity.AnonKey)
	str("ESSENCE_IDP_SERVICE_ROLE_KEY", &c.Identity.ServiceRoleKey)
	str("ESSENCE_IDP_JWT_SECRET", &c.Identity.JWTSecret)
	str("ESSENCE_STORE_BACKEND", &c.Store.Backend)
	str("ESSENCE_PG_DSN", &c.Store.DSN)
	str("ESSENCE_REDIS_ADDR", &c.Session.RedisAddr)
	str("ESSENCE_REDIS_PASSWORD", &c.Session.RedisPassword)
	str("ESSENCE_LOG_LEVEL", &c.Log.Level)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ESSENCE_OUTBOUND_TIMEOUT", &c.Identity.OutboundTimeout},
		{"ESSENCE_SESSION_TTL", &c.Session.TTL},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"ESSENCE_RATE_BURST", &c.HTTP.RateBurst},
		{"ESSENCE_RATE_PER_SEC", &c.HTTP.RatePerSec},
		{"ESSENCE_REDIS_DB", &c.Session.RedisDB},
	}
	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", i.key, err)
		}
		*i.dst = parsed
	}

	if v, ok := lookup("ESSENCE_TRUSTED_PROXIES"); ok {
		c.HTTP.TrustedProxies = nil
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				c.HTTP.TrustedProxies = append(c.HTTP.TrustedProxies, part)
			}
		}
	}

	if v, ok := lookup("ESSENCE_COOKIE_SECURE"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: ESSENCE_COOKIE_SECURE: %w", err)
		}
		c.Session.CookieSecure = b
	}
	return nil
}

// Validate reports the first missing or malformed required setting.
func (c Config) Validate() error {
	switch c.Identity.Backend {
	case IdentityRemote:
		if c.Identity.URL == "" {
			return fmt.Errorf("%w: ESSENCE_IDP_URL", ErrMissing)
		}
		u, err := url.Parse(c.Identity.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: invalid ESSENCE_IDP_URL %q", c.Identity.URL)
		}
		if c.Identity.AnonKey == "" {
			return fmt.Errorf("%w: ESSENCE_IDP_ANON_KEY", ErrMissing)
		}
		if c.Identity.ServiceRoleKey == "" {
			return fmt.Errorf("%w: ESSENCE_IDP_SERVICE_ROLE_KEY", ErrMissing)
		}
	case IdentityLocal:
		if c.Identity.JWTSecret == "" {
			return fmt.Errorf("%w: ESSENCE_IDP_JWT_SECRET (required by the local provider)", ErrMissing)
		}
	default:
		return fmt.Errorf("config: unknown identity backend %q", c.Identity.Backend)
	}

	switch c.Store.Backend {
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: ESSENCE_PG_DSN", ErrMissing)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	for _, p := range c.HTTP.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("config: invalid trusted proxy %q", p)
		}
	}

	if c.Identity.OutboundTimeout <= 0 {
		return errors.New("config: outbound timeout must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: session ttl must be positive")
	}
	return nil
}
