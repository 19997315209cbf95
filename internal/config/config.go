package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

type Auth struct {
	// Secret is the shared bearer/HMAC secret. Required; the process
	// refuses to start without one.
	Secret string `yaml:"secret"`
	// MaxSkewMS bounds |now - X-Timestamp| for signed requests.
	MaxSkewMS int64 `yaml:"max_skew_ms"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// PingIntervalMS controls how often the health watcher probes Redis.
	PingIntervalMS int `yaml:"ping_interval_ms"`
	// DialTimeoutMS bounds a single Redis round trip so a hung call never
	// delays the memory fallback for long.
	DialTimeoutMS int `yaml:"dial_timeout_ms"`
}

type Limits struct {
	Default struct {
		Points   int `yaml:"points"`
		Duration int `yaml:"duration"` // seconds
	} `yaml:"default"`
	// SweepIntervalMS is the local backend's expired-record sweep period.
	SweepIntervalMS int `yaml:"sweep_interval_ms"`
}

type Root struct {
	Server        Server        `yaml:"server"`
	Observability Observability `yaml:"observability"`
	Auth          Auth          `yaml:"auth"`
	Redis         Redis         `yaml:"redis"`
	Limits        Limits        `yaml:"limits"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 1 << 20
	}
	return s.MaxBodyBytes
} // default 1MB; rate-limit bodies are tiny JSON

func (a Auth) MaxSkew() time.Duration {
	if a.MaxSkewMS == 0 {
		return 30 * time.Second
	}
	return time.Duration(a.MaxSkewMS) * time.Millisecond
}

func (r Redis) PingInterval() time.Duration {
	if r.PingIntervalMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(r.PingIntervalMS) * time.Millisecond
}

func (r Redis) DialTimeout() time.Duration {
	if r.DialTimeoutMS == 0 {
		return 2 * time.Second
	}
	return time.Duration(r.DialTimeoutMS) * time.Millisecond
}

func (l Limits) SweepInterval() time.Duration {
	if l.SweepIntervalMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(l.SweepIntervalMS) * time.Millisecond
}

// ErrNoSecret is returned when no shared secret is configured. There is no
// unauthenticated mode; startup is the only place this is checked.
var ErrNoSecret = errors.New("config: auth secret is required (set auth.secret or RLP_SECRET)")

// Load reads the YAML file at path (optional; pass "" to run on env vars
// alone), applies environment overrides, fills defaults and validates.
func Load(path string) (*Root, error) {
	var cfg Root
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Limits.Default.Points <= 0 {
		cfg.Limits.Default.Points = 100
	}
	if cfg.Limits.Default.Duration <= 0 {
		cfg.Limits.Default.Duration = 60
	}

	if cfg.Auth.Secret == "" {
		return nil, ErrNoSecret
	}

	return &cfg, nil
}

// applyEnv overrides file values with environment variables so the service
// can run configless in containers.
func applyEnv(cfg *Root) {
	if v := os.Getenv("RLP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("RLP_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("RLP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RLP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RLP_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
