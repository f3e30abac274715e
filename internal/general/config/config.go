package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		GeoKey   string `yaml:"geo_key"`
	} `yaml:"redis"`

	RabbitMQ struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"rabbitmq"`

	HTTP struct {
		Port int `yaml:"port"`
	} `yaml:"http"`

	JWT struct {
		SecretKey string `yaml:"secret_key"`
	} `yaml:"jwt"`

	Dispatch struct {
		InitialRadiusKM   float64  `yaml:"initial_radius_km"`
		RadiusIncrementKM float64  `yaml:"radius_increment_km"`
		MaxRadiusKM       float64  `yaml:"max_radius_km"`
		OfferWait         Duration `yaml:"offer_wait"`
		OverallDeadline   Duration `yaml:"overall_deadline"`
		SweepInterval     Duration `yaml:"sweep_interval"`
	} `yaml:"dispatch"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "10s"
// or "5m". Bare integers are taken as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoadFromFile loads config from a YAML file, applies defaults, and validates
// required fields.
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// Redis
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.GeoKey == "" {
		cfg.Redis.GeoKey = "drivers_geo"
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// HTTP
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 3000
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}

	// Dispatch policy
	if cfg.Dispatch.InitialRadiusKM == 0 {
		cfg.Dispatch.InitialRadiusKM = 2
	}
	if cfg.Dispatch.RadiusIncrementKM == 0 {
		cfg.Dispatch.RadiusIncrementKM = 0.5
	}
	if cfg.Dispatch.MaxRadiusKM == 0 {
		cfg.Dispatch.MaxRadiusKM = 10
	}
	if cfg.Dispatch.OfferWait == 0 {
		cfg.Dispatch.OfferWait = Duration(10 * time.Second)
	}
	if cfg.Dispatch.OverallDeadline == 0 {
		cfg.Dispatch.OverallDeadline = Duration(10 * time.Minute)
	}
	if cfg.Dispatch.SweepInterval == 0 {
		cfg.Dispatch.SweepInterval = Duration(5 * time.Second)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// Redis
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		problems = append(problems, "redis.port must be in 1..65535")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// HTTP
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, "http.port must be in 1..65535")
	}

	// Dispatch
	if c.Dispatch.InitialRadiusKM <= 0 {
		problems = append(problems, "dispatch.initial_radius_km must be > 0")
	}
	if c.Dispatch.RadiusIncrementKM <= 0 {
		problems = append(problems, "dispatch.radius_increment_km must be > 0")
	}
	if c.Dispatch.MaxRadiusKM < c.Dispatch.InitialRadiusKM {
		problems = append(problems, "dispatch.max_radius_km must be >= dispatch.initial_radius_km")
	}
	if c.Dispatch.OfferWait <= 0 {
		problems = append(problems, "dispatch.offer_wait must be > 0")
	}
	if c.Dispatch.OverallDeadline < c.Dispatch.OfferWait {
		problems = append(problems, "dispatch.overall_deadline must be >= dispatch.offer_wait")
	}
	if c.Dispatch.SweepInterval <= 0 {
		problems = append(problems, "dispatch.sweep_interval must be > 0")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
