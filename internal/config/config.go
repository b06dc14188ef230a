package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr   = ":8080"
	DefaultStaticDir    = "./web/static"
	DefaultTickMs       = 100
	DefaultMaxPoints    = 1000
	DefaultHeartbeatSec = 30
	DefaultReference    = 45.0
	DefaultKp           = 2.0
	DefaultKi           = 0.5
	DefaultKd           = 0.1
	DefaultRatePerSec   = 10.0
	DefaultRateBurst    = 20
	DefaultDataLogSec   = 60

	MinTickMs = 10
	MaxTickMs = 10000
)

type Config struct {
	ListenAddr   string        `yaml:"listen_addr"`
	StaticDir    string        `yaml:"static_dir"`
	TickMs       int           `yaml:"tick_ms"`
	MaxPoints    int           `yaml:"max_points"`
	HeartbeatSec int           `yaml:"heartbeat_sec"`
	Seed         int64         `yaml:"seed"`
	Reference    float64       `yaml:"reference"`
	PID          PIDConfig     `yaml:"pid"`
	RateLimit    RateConfig    `yaml:"rate_limit"`
	DataLog      DataLogConfig `yaml:"data_log"`
}

type PIDConfig struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

type RateConfig struct {
	Enabled bool    `yaml:"enabled"`
	PerSec  float64 `yaml:"per_sec"`
	Burst   int     `yaml:"burst"`
}

type DataLogConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	Interval int    `yaml:"interval_sec"`
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   DefaultListenAddr,
		StaticDir:    DefaultStaticDir,
		TickMs:       DefaultTickMs,
		MaxPoints:    DefaultMaxPoints,
		HeartbeatSec: DefaultHeartbeatSec,
		Reference:    DefaultReference,
		PID: PIDConfig{
			Kp: DefaultKp,
			Ki: DefaultKi,
			Kd: DefaultKd,
		},
		RateLimit: RateConfig{
			Enabled: true,
			PerSec:  DefaultRatePerSec,
			Burst:   DefaultRateBurst,
		},
		DataLog: DataLogConfig{
			Dir:      ".aeropid",
			Interval: DefaultDataLogSec,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.TickMs < MinTickMs || c.TickMs > MaxTickMs {
		return fmt.Errorf("tick_ms must be in [%d, %d], got %d", MinTickMs, MaxTickMs, c.TickMs)
	}
	if c.MaxPoints <= 0 {
		return fmt.Errorf("max_points must be positive, got %d", c.MaxPoints)
	}
	if c.HeartbeatSec <= 0 {
		return fmt.Errorf("heartbeat_sec must be positive, got %d", c.HeartbeatSec)
	}
	if c.Reference < -180 || c.Reference > 180 {
		return fmt.Errorf("reference must be in [-180, 180], got %f", c.Reference)
	}
	if c.PID.Kp < 0 || c.PID.Ki < 0 || c.PID.Kd < 0 {
		return fmt.Errorf("pid gains must be non-negative")
	}
	return nil
}

func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

func (c *Config) HeartbeatPeriod() time.Duration {
	return time.Duration(c.HeartbeatSec) * time.Second
}
