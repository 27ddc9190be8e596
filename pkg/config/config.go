package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`

	// Congestion holds every tunable of the per-peer rate controller. The
	// exact numbers are policy, not protocol, and are expected to be tuned
	// against production telemetry.
	Congestion CongestionConfig `yaml:"congestion"`

	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Transport  TransportConfig  `yaml:"transport"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type APIConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type SessionConfig struct {
	MaxPeers          int           `yaml:"max_peers"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	IdleResendEvery   time.Duration `yaml:"idle_resend_every"`
}

type CongestionConfig struct {
	InitialWindow        float64       `yaml:"initial_window"`    // units
	MinWindow            float64       `yaml:"min_window"`        // units
	InitialSSThresh      float64       `yaml:"initial_ssthresh"`  // units
	SlowStartGrowth      float64       `yaml:"slow_start_growth"` // per-RTT multiplier
	RTTAlpha             float64       `yaml:"rtt_alpha"`
	RTTVarianceBeta      float64       `yaml:"rtt_variance_beta"`
	DeviationFactor      float64       `yaml:"deviation_factor"`
	SpikeSampleCount     int           `yaml:"spike_sample_count"`
	BufferHighWaterBytes int64         `yaml:"buffer_high_water_bytes"`
	MinRTO               time.Duration `yaml:"min_rto"`
	MaxRTO               time.Duration `yaml:"max_rto"`
	TimeoutResetCount    int           `yaml:"timeout_reset_count"`
	RTTSampleWindow      int           `yaml:"rtt_sample_window"`
}

type TelemetryConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
	ExcellentBelow time.Duration `yaml:"excellent_below"`
	GoodBelow      time.Duration `yaml:"good_below"`
	FairBelow      time.Duration `yaml:"fair_below"`
}

type TransportConfig struct {
	MaxMessageBytes          int     `yaml:"max_message_bytes"`
	ControlMessagesPerSecond float64 `yaml:"control_messages_per_second"`
	ControlBurst             int     `yaml:"control_burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	JaegerURL   string  `yaml:"jaeger_url"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.API.Address == "" {
		return fmt.Errorf("api.address must not be empty")
	}
	if c.API.ReadTimeout <= 0 {
		return fmt.Errorf("api.read_timeout must be > 0")
	}
	if c.API.WriteTimeout <= 0 {
		return fmt.Errorf("api.write_timeout must be > 0")
	}
	if c.API.ShutdownTimeout <= 0 {
		return fmt.Errorf("api.shutdown_timeout must be > 0")
	}

	if c.Session.MaxPeers <= 0 {
		return fmt.Errorf("session.max_peers must be > 0")
	}
	if c.Session.HeartbeatInterval <= 0 {
		return fmt.Errorf("session.heartbeat_interval must be > 0")
	}
	if c.Session.IdleResendEvery <= 0 {
		return fmt.Errorf("session.idle_resend_every must be > 0")
	}

	cc := c.Congestion
	if cc.MinWindow <= 0 {
		return fmt.Errorf("congestion.min_window must be > 0")
	}
	if cc.InitialWindow < cc.MinWindow {
		return fmt.Errorf("congestion.initial_window must be >= min_window")
	}
	if cc.InitialSSThresh < cc.InitialWindow {
		return fmt.Errorf("congestion.initial_ssthresh must be >= initial_window")
	}
	if cc.SlowStartGrowth <= 1.0 || cc.SlowStartGrowth > 2.0 {
		return fmt.Errorf("congestion.slow_start_growth must be in (1.0, 2.0]")
	}
	if cc.RTTAlpha <= 0 || cc.RTTAlpha >= 1 {
		return fmt.Errorf("congestion.rtt_alpha must be in (0, 1)")
	}
	if cc.RTTVarianceBeta <= 0 || cc.RTTVarianceBeta >= 1 {
		return fmt.Errorf("congestion.rtt_variance_beta must be in (0, 1)")
	}
	if cc.DeviationFactor <= 0 {
		return fmt.Errorf("congestion.deviation_factor must be > 0")
	}
	if cc.SpikeSampleCount <= 0 {
		return fmt.Errorf("congestion.spike_sample_count must be > 0")
	}
	if cc.BufferHighWaterBytes <= 0 {
		return fmt.Errorf("congestion.buffer_high_water_bytes must be > 0")
	}
	if cc.MinRTO <= 0 || cc.MaxRTO < cc.MinRTO {
		return fmt.Errorf("congestion.min_rto must be > 0 and <= max_rto")
	}
	if cc.TimeoutResetCount <= 0 {
		return fmt.Errorf("congestion.timeout_reset_count must be > 0")
	}
	if cc.RTTSampleWindow <= 0 {
		return fmt.Errorf("congestion.rtt_sample_window must be > 0")
	}

	if c.Telemetry.SampleInterval <= 0 {
		return fmt.Errorf("telemetry.sample_interval must be > 0")
	}
	if c.Telemetry.ExcellentBelow <= 0 ||
		c.Telemetry.GoodBelow <= c.Telemetry.ExcellentBelow ||
		c.Telemetry.FairBelow <= c.Telemetry.GoodBelow {
		return fmt.Errorf("telemetry quality thresholds must be increasing and > 0")
	}

	if c.Transport.MaxMessageBytes <= 0 {
		return fmt.Errorf("transport.max_message_bytes must be > 0")
	}
	if c.Transport.ControlMessagesPerSecond <= 0 {
		return fmt.Errorf("transport.control_messages_per_second must be > 0")
	}
	if c.Transport.ControlBurst <= 0 {
		return fmt.Errorf("transport.control_burst must be > 0")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.API.Address = ":8090"
	cfg.API.ReadTimeout = 30 * time.Second
	cfg.API.WriteTimeout = 30 * time.Second
	cfg.API.ShutdownTimeout = 30 * time.Second

	cfg.Session.MaxPeers = 16
	cfg.Session.HeartbeatInterval = 2 * time.Second
	cfg.Session.IdleResendEvery = 2 * time.Second

	// Classic Jacobson/Karn estimator gains, Reno-style window dynamics.
	cfg.Congestion.InitialWindow = 2
	cfg.Congestion.MinWindow = 1
	cfg.Congestion.InitialSSThresh = 64
	cfg.Congestion.SlowStartGrowth = 2.0
	cfg.Congestion.RTTAlpha = 0.125
	cfg.Congestion.RTTVarianceBeta = 0.25
	cfg.Congestion.DeviationFactor = 4.0
	cfg.Congestion.SpikeSampleCount = 3
	cfg.Congestion.BufferHighWaterBytes = 1 << 20
	cfg.Congestion.MinRTO = 200 * time.Millisecond
	cfg.Congestion.MaxRTO = 10 * time.Second
	cfg.Congestion.TimeoutResetCount = 3
	cfg.Congestion.RTTSampleWindow = 16

	// Thresholds mirror the debug panel's quality bands.
	cfg.Telemetry.SampleInterval = time.Second
	cfg.Telemetry.ExcellentBelow = 50 * time.Millisecond
	cfg.Telemetry.GoodBelow = 150 * time.Millisecond
	cfg.Telemetry.FairBelow = 300 * time.Millisecond

	cfg.Transport.MaxMessageBytes = 64 * 1024
	cfg.Transport.ControlMessagesPerSecond = 50
	cfg.Transport.ControlBurst = 100

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = 15 * time.Minute

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "ponslink"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("PONSLINK_API_ADDRESS"); addr != "" {
		c.API.Address = addr
	}
	if level := os.Getenv("PONSLINK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("PONSLINK_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("PONSLINK_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
