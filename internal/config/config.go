package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config top-level struct shared by all four binaries.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WriteDB   DatabaseConfig  `yaml:"write_db"`
	ReadDB    DatabaseConfig  `yaml:"read_db"`
	Broker    BrokerConfig    `yaml:"broker"`
	Redis     RedisConfig     `yaml:"redis"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type BrokerConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type OutboxConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
	BatchSize      int `yaml:"batch_size"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// Load reads the yaml file then applies environment overrides. The env names
// match the deployment contract: BROKER_URL, WRITE_DATABASE_URL,
// READ_DATABASE_URL and PORT.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BROKER_URL"); v != "" {
		c.Broker.URL = v
	}
	if v := os.Getenv("WRITE_DATABASE_URL"); v != "" {
		c.WriteDB.DSN = v
	}
	if v := os.Getenv("READ_DATABASE_URL"); v != "" {
		c.ReadDB.DSN = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Outbox.PollIntervalMS == 0 {
		c.Outbox.PollIntervalMS = 1000
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 100
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 50
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 100
	}
}
