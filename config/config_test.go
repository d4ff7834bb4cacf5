package config

import (
	"crossplay/codec"
	"crossplay/transport"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvDir, EnvTimeout, EnvPollInterval, EnvCodec} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Layout != transport.DefaultLayout("") {
		t.Fatalf("unexpected layout: %+v", cfg.Layout)
	}
	if cfg.Timeout != time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Timeout)
	}
	if cfg.PollInterval != 100*time.Microsecond {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.Codec != codec.CodecTypeJSON {
		t.Fatalf("unexpected codec: %v", cfg.Codec)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("testdata", "crossplay.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Layout.Dir != "/tmp/bot-a/crossplay" {
		t.Fatalf("unexpected dir: %q", cfg.Layout.Dir)
	}
	if cfg.Layout.EngineMessage != "from_engine.json" || cfg.Layout.AgentMessage != "from_agent.json" {
		t.Fatalf("unexpected message names: %+v", cfg.Layout)
	}
	// keys left out keep their defaults
	if cfg.Layout.EngineLock != "lock_java.txt" || cfg.Layout.AgentLock != "lock_other.txt" {
		t.Fatalf("unexpected lock names: %+v", cfg.Layout)
	}
	if cfg.Timeout != 250*time.Millisecond {
		t.Fatalf("unexpected timeout: %v", cfg.Timeout)
	}
	if cfg.PollInterval != 50*time.Microsecond {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level: %q", cfg.LogLevel)
	}
	if cfg.RateLimit != 500 || cfg.RateBurst != 10 {
		t.Fatalf("unexpected rate limit: %v/%d", cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.Stub.Round != 12 || cfg.Stub.Width != 40 || cfg.Stub.Height != 30 {
		t.Fatalf("unexpected stub: %+v", cfg.Stub)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDir, "/run/crossplay")
	t.Setenv(EnvTimeout, "2s")
	t.Setenv(EnvCodec, "yaml")

	cfg, err := Load(filepath.Join("testdata", "crossplay.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Layout.Dir != "/run/crossplay" {
		t.Fatalf("unexpected dir: %q", cfg.Layout.Dir)
	}
	if cfg.Timeout != 2*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Timeout)
	}
	if cfg.Codec != codec.CodecTypeYAML {
		t.Fatalf("unexpected codec: %v", cfg.Codec)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join("testdata", "bad_key.toml")); err == nil || !strings.Contains(err.Error(), "timout") {
		t.Fatalf("expect unknown key error, got %v", err)
	}
	if _, err := Load(filepath.Join("testdata", "missing.toml")); err == nil {
		t.Fatal("expect error for missing file")
	}

	t.Setenv(EnvTimeout, "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expect error for unparsable timeout")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero timeout":    func(c *Config) { c.Timeout = 0 },
		"zero poll":       func(c *Config) { c.PollInterval = 0 },
		"poll > timeout":  func(c *Config) { c.PollInterval = 2 * c.Timeout },
		"negative rate":   func(c *Config) { c.RateLimit = -1 },
		"no burst":        func(c *Config) { c.RateLimit = 10; c.RateBurst = 0 },
		"duplicate names": func(c *Config) { c.Layout.AgentLock = c.Layout.EngineLock },
		"nested name":     func(c *Config) { c.Layout.AgentMessage = "../x.json" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expect validation error", name)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("CROSSPLAY_POLL_INTERVAL=1ms\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides a set variable, and clearEnv set it to ""
	os.Unsetenv(EnvPollInterval)
	t.Cleanup(func() { os.Unsetenv(EnvPollInterval) })

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PollInterval != time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
}
