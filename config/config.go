package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Push       PushConfig       `yaml:"push"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Logging    LoggingConfig    `yaml:"logging"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Estimator  EstimatorConfig  `yaml:"estimator"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// MQTTConfig configures the device-console event channel. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	OperatorHeader  string  `yaml:"operator_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// RedisConfig points the scheduler lease at Redis. An empty address keeps the lease in the database.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Service string `yaml:"service"`
}

// SchedulerConfig holds the tunables of the transfer cycle scheduler.
type SchedulerConfig struct {
	UpperThreshold    float64       `yaml:"upper_threshold"`
	LowerThreshold    float64       `yaml:"lower_threshold"`
	NeedsLiftLevels   []int         `yaml:"needs_lift_levels"`
	DelicateMaxLevel  int           `yaml:"delicate_max_level"`
	SlowMoverMinLevel int           `yaml:"slow_mover_min_level"`
	SlowMoverMaxLevel int           `yaml:"slow_mover_max_level"`
	LeaseName         string        `yaml:"lease_name"`
	LeaseTTLSeconds   int           `yaml:"lease_ttl_seconds"`
	LeaseTTL          time.Duration `yaml:"-"`
	RerunOnDrain      bool          `yaml:"rerun_on_drain"`
}

// EstimatorConfig configures the pack processing-time collaborator.
type EstimatorConfig struct {
	BaseURL        string            `yaml:"base_url"`
	Path           string            `yaml:"path"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	RetryCount     int               `yaml:"retry_count"`
	SecondsPerPack int               `yaml:"seconds_per_pack"`
	Timeout        time.Duration     `yaml:"-"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.OperatorHeader == "" {
		cfg.Server.OperatorHeader = "X-Operator-ID"
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "canister-transfer"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "transferd"
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = cfg.WorkerPool.Size * 16
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Service == "" {
		cfg.Logging.Service = "transferd"
	}

	s := &cfg.Scheduler
	if s.UpperThreshold <= 0 {
		s.UpperThreshold = 0.8
	}
	if s.LowerThreshold <= 0 {
		s.LowerThreshold = 0.5
	}
	if s.DelicateMaxLevel <= 0 {
		s.DelicateMaxLevel = 5
	}
	if s.SlowMoverMinLevel <= 0 {
		s.SlowMoverMinLevel = 1
	}
	if s.SlowMoverMaxLevel <= 0 {
		s.SlowMoverMaxLevel = 4
	}
	if s.LeaseName == "" {
		s.LeaseName = "transfer-scheduler"
	}
	if s.LeaseTTLSeconds <= 0 {
		s.LeaseTTLSeconds = 300
	}
	s.LeaseTTL = time.Duration(s.LeaseTTLSeconds) * time.Second

	e := &cfg.Estimator
	if e.Path == "" {
		e.Path = "/packs/estimate"
	}
	if e.TimeoutSeconds <= 0 {
		e.TimeoutSeconds = 10
	}
	e.Timeout = time.Duration(e.TimeoutSeconds) * time.Second
	if e.SecondsPerPack <= 0 {
		e.SecondsPerPack = 30
	}
}
