package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, ".config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  token: "secret"
log:
  log_level: "DEBUG"
  log_dir: "/tmp/logs"
  log_file: "test.log"
web:
  port: 8081
session:
  store: "Memory"
  ttl: 30m
selected_module:
  VLLLM: OllamaVLLM
`

	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	result, err := NewLoader().
		WithDotEnv(false).
		WithPath(configFile).
		WithEnv(envMap(nil)).
		Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg := result.Config

	if result.Path != configFile {
		t.Errorf("expected origin %s, got %s", configFile, result.Path)
	}
	if cfg.Server.IP != "127.0.0.1" {
		t.Errorf("expected server IP 127.0.0.1, got %s", cfg.Server.IP)
	}
	if cfg.Web.Port != 8081 {
		t.Errorf("expected web port 8081, got %d", cfg.Web.Port)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("expected log level DEBUG, got %s", cfg.Log.Level)
	}
	if cfg.Session.Store != "memory" {
		t.Errorf("expected normalised store driver, got %s", cfg.Session.Store)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Errorf("expected ttl 30m, got %s", cfg.Session.TTL)
	}
	if cfg.Web.Title != "Image Processor" {
		t.Errorf("expected default title to survive partial web section, got %q", cfg.Web.Title)
	}
	if name, _, ok := cfg.SelectedVLLLM(); !ok || name != "OllamaVLLM" {
		t.Errorf("expected OllamaVLLM selected, got %s", name)
	}
}

func TestLoader_DefaultsWithoutFile(t *testing.T) {
	oldWd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(oldWd)

	result, err := NewLoader().WithDotEnv(false).WithEnv(envMap(nil)).Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if result.Path != "defaults" {
		t.Errorf("expected defaults origin, got %s", result.Path)
	}
	name, provider, ok := result.Config.SelectedVLLLM()
	if !ok || name != "GeminiVLLM" || provider.ModelName != "gemini-1.5-flash" {
		t.Errorf("unexpected default provider %s %+v", name, provider)
	}
}

func TestLoader_MissingExplicitPath(t *testing.T) {
	_, err := NewLoader().
		WithDotEnv(false).
		WithPath(filepath.Join(t.TempDir(), "missing.yaml")).
		WithEnv(envMap(nil)).
		Load()
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	oldWd, _ := os.Getwd()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(oldWd)

	result, err := NewLoader().
		WithDotEnv(false).
		WithEnv(envMap(map[string]string{
			"GOOGLE_API_KEY": "google-key",
			"WEB_PORT":       "9090",
			"LOG_LEVEL":      "debug",
			"SESSION_STORE":  "redis",
			"REDIS_ADDR":     "127.0.0.1:6379",
		})).
		Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := result.Config

	_, provider, _ := cfg.SelectedVLLLM()
	if provider.APIKey != "google-key" {
		t.Errorf("expected api key from GOOGLE_API_KEY, got %q", provider.APIKey)
	}
	if cfg.Web.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Web.Port)
	}
	if cfg.Session.Store != "redis" || cfg.Session.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("unexpected session config %+v", cfg.Session)
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()

	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Server.Token = "private-secret"
		normalise(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "invalid web port",
			mutate:  func(c *Config) { c.Web.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "empty token",
			mutate:  func(c *Config) { c.Server.Token = "" },
			wantErr: true,
		},
		{
			name:    "placeholder token",
			mutate:  func(c *Config) { c.Server.Token = "your_token" },
			wantErr: true,
		},
		{
			name:    "example config token",
			mutate:  func(c *Config) { c.Server.Token = "change-me" },
			wantErr: true,
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Session.Store = "etcd" },
			wantErr: true,
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.Session.Store = "redis" },
			wantErr: true,
		},
		{
			name:    "provider not configured",
			mutate:  func(c *Config) { c.Selected.VLLLM = "Missing" },
			wantErr: true,
		},
		{
			name: "empty allowed formats",
			mutate: func(c *Config) {
				p := c.VLLLM["GeminiVLLM"]
				p.Security.AllowedFormats = nil
				c.VLLLM["GeminiVLLM"] = p
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := loader.validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_GeneratesSecretForPlaceholderToken(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), ".config.yaml")
	if err := os.WriteFile(configFile, []byte("server:\n  token: \"your_token\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	load := func() *Result {
		result, err := NewLoader().WithDotEnv(false).WithPath(configFile).WithEnv(envMap(nil)).Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		return result
	}

	first, second := load(), load()
	if !first.GeneratedSecret {
		t.Error("expected generated secret flag")
	}
	if first.Config.Server.Token == "your_token" || len(first.Config.Server.Token) != 64 {
		t.Errorf("expected random hex secret, got %q", first.Config.Server.Token)
	}
	if first.Config.Server.Token == second.Config.Server.Token {
		t.Error("expected a different secret per load")
	}

	result, err := NewLoader().
		WithDotEnv(false).
		WithPath(configFile).
		WithEnv(envMap(map[string]string{"SERVER_TOKEN": "configured-secret"})).
		Load()
	if err != nil {
		t.Fatalf("load with env token: %v", err)
	}
	if result.GeneratedSecret || result.Config.Server.Token != "configured-secret" {
		t.Errorf("expected configured secret to be kept, got %q", result.Config.Server.Token)
	}
}
