// Package config loads the bridge settings from a TOML file, a .env file and
// the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"crossplay/codec"
	"crossplay/transport"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	EnvDir          = "CROSSPLAY_DIR"
	EnvTimeout      = "CROSSPLAY_TIMEOUT"
	EnvPollInterval = "CROSSPLAY_POLL_INTERVAL"
	EnvCodec        = "CROSSPLAY_CODEC"
)

type Config struct {
	Layout       transport.Layout
	Timeout      time.Duration
	PollInterval time.Duration
	Codec        codec.CodecType
	LogLevel     string

	// RateLimit is calls per second through the middleware; 0 disables it.
	RateLimit float64
	RateBurst int

	Stub Stub
}

// Stub is the fixed state the stub responder answers with.
type Stub struct {
	Round  int64
	Width  int64
	Height int64
}

func Default() Config {
	return Config{
		Layout:       transport.DefaultLayout(""),
		Timeout:      time.Second,
		PollInterval: transport.DefaultPollInterval,
		Codec:        codec.CodecTypeJSON,
		LogLevel:     "info",
		RateBurst:    1,
		Stub:         Stub{Round: 1, Width: 30, Height: 30},
	}
}

type fileConfig struct {
	Dir          string         `toml:"dir"`
	Timeout      string         `toml:"timeout"`
	PollInterval string         `toml:"poll_interval"`
	Codec        string         `toml:"codec"`
	LogLevel     string         `toml:"log_level"`
	Artifacts    artifactConfig `toml:"artifacts"`
	RateLimit    rateConfig     `toml:"rate_limit"`
	Stub         stubConfig     `toml:"stub"`
}

type artifactConfig struct {
	EngineMessage string `toml:"engine_message"`
	AgentMessage  string `toml:"agent_message"`
	EngineLock    string `toml:"engine_lock"`
	AgentLock     string `toml:"agent_lock"`
}

type rateConfig struct {
	Rate  float64 `toml:"rate"`
	Burst int     `toml:"burst"`
}

type stubConfig struct {
	Round  int64 `toml:"round"`
	Width  int64 `toml:"width"`
	Height int64 `toml:"height"`
}

// Load builds a Config from the defaults, the TOML file at path (skipped when
// path is empty), a .env file in the working directory if present, and the
// CROSSPLAY_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files (".env" when none are named) into the
// environment without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load crossplay config: %w", err)
	}

	if meta.IsDefined("dir") {
		cfg.Layout.Dir = strings.TrimSpace(raw.Dir)
	}
	if meta.IsDefined("artifacts", "engine_message") {
		cfg.Layout.EngineMessage = strings.TrimSpace(raw.Artifacts.EngineMessage)
	}
	if meta.IsDefined("artifacts", "agent_message") {
		cfg.Layout.AgentMessage = strings.TrimSpace(raw.Artifacts.AgentMessage)
	}
	if meta.IsDefined("artifacts", "engine_lock") {
		cfg.Layout.EngineLock = strings.TrimSpace(raw.Artifacts.EngineLock)
	}
	if meta.IsDefined("artifacts", "agent_lock") {
		cfg.Layout.AgentLock = strings.TrimSpace(raw.Artifacts.AgentLock)
	}

	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return fmt.Errorf("parse poll_interval: %w", err)
		}
		cfg.PollInterval = d
	}
	if meta.IsDefined("codec") {
		ct, err := codec.ParseCodecType(raw.Codec)
		if err != nil {
			return err
		}
		cfg.Codec = ct
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("rate_limit", "rate") {
		cfg.RateLimit = raw.RateLimit.Rate
	}
	if meta.IsDefined("rate_limit", "burst") {
		cfg.RateBurst = raw.RateLimit.Burst
	}

	if meta.IsDefined("stub", "round") {
		cfg.Stub.Round = raw.Stub.Round
	}
	if meta.IsDefined("stub", "width") {
		cfg.Stub.Width = raw.Stub.Width
	}
	if meta.IsDefined("stub", "height") {
		cfg.Stub.Height = raw.Stub.Height
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load crossplay config: unknown key %q", undecoded[0].String())
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookupEnv(EnvDir); ok {
		cfg.Layout.Dir = v
	}
	if v, ok := lookupEnv(EnvTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvTimeout, err)
		}
		cfg.Timeout = d
	}
	if v, ok := lookupEnv(EnvPollInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvPollInterval, err)
		}
		cfg.PollInterval = d
	}
	if v, ok := lookupEnv(EnvCodec); ok {
		ct, err := codec.ParseCodecType(v)
		if err != nil {
			return err
		}
		cfg.Codec = ct
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (c Config) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %v", c.Timeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.PollInterval > c.Timeout {
		return fmt.Errorf("config: poll_interval %v exceeds timeout %v", c.PollInterval, c.Timeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate_limit.rate must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("config: rate_limit.burst must be at least 1")
	}
	return nil
}

// Channel opens the configured channel.
func (c Config) Channel() (*transport.Channel, error) {
	return transport.NewChannel(c.Layout, codec.GetCodec(c.Codec))
}
