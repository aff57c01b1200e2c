package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"collabcanvas/internal/canvas"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Addr       string   `yaml:"addr"`
	Board      string   `yaml:"board"`
	LogLevel   string   `yaml:"log_level"`
	Palette    []string `yaml:"palette"`
	SendBuffer int      `yaml:"send_buffer"`

	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// RedisConfig enables the event mirror when Addr is set.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// PostgresConfig enables the journal when URL is set.
type PostgresConfig struct {
	URL string `yaml:"url"`
}

type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Service  string `yaml:"service"`
	Instance string `yaml:"instance"`
}

func Default() Config {
	return Config{
		Addr:       ":3001",
		Board:      "default",
		LogLevel:   "info",
		Palette:    append([]string(nil), canvas.DefaultPalette...),
		SendBuffer: 256,
		Discovery: DiscoveryConfig{
			Service: "_collabcanvas._tcp",
		},
	}
}

// Load starts from Default, overlays the YAML file at path (if path is not
// empty) and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Addr = getenv("ADDR", c.Addr)
	c.Board = getenv("BOARD", c.Board)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.Redis.Addr = getenv("REDIS_ADDR", c.Redis.Addr)
	c.Postgres.URL = getenv("DATABASE_URL", c.Postgres.URL)
	if v, err := strconv.ParseBool(os.Getenv("DISCOVERY")); err == nil {
		c.Discovery.Enabled = v
	}
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is empty", ErrInvalid)
	}
	if c.Board == "" {
		return fmt.Errorf("%w: board is empty", ErrInvalid)
	}
	if len(c.Palette) == 0 {
		return fmt.Errorf("%w: palette is empty", ErrInvalid)
	}
	for _, color := range c.Palette {
		if !hexColor.MatchString(color) {
			return fmt.Errorf("%w: palette colour %q", ErrInvalid, color)
		}
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("%w: send_buffer must be positive", ErrInvalid)
	}
	return nil
}

// RedisChannel is the pub/sub channel the mirror publishes to.
func (c Config) RedisChannel() string {
	if c.Redis.Channel != "" {
		return c.Redis.Channel
	}
	return "canvas:" + c.Board
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
