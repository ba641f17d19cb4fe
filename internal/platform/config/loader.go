package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is looked up in the working directory when no path is given.
	DefaultConfigFile = ".config.yaml"
	// ConfigPathEnv overrides the config file location.
	ConfigPathEnv = "IMAGE_PROCESSOR_CONFIG"
)

// Loader reads the YAML config file and overlays environment variables.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that reads .env and .config.yaml from the working directory.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the config file location.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
	// GeneratedSecret is set when server.token was missing or a placeholder
	// and a random one was generated. Cookies then do not survive a restart.
	GeneratedSecret bool
}

// Load builds the configuration: defaults, then the YAML file when present,
// then environment overrides. The result is validated before returning.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// .env 不存在时直接使用系统环境变量
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	path := l.resolvePath()
	origin := "defaults"
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		origin = path
	case os.IsNotExist(err) && l.path == "":
		// optional default file
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	l.applyEnv(cfg)
	normalise(cfg)

	generated := false
	if placeholderSecret(cfg.Server.Token) {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.Server.Token = secret
		generated = true
	}

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{
		Config:          cfg,
		Path:            origin,
		GeneratedSecret: generated,
	}, nil
}

// placeholderSecret matches the empty token and the sample values shipped in
// the example configs.
func placeholderSecret(token string) bool {
	token = strings.ToLower(strings.TrimSpace(token))
	switch token {
	case "", "change-me", "changeme":
		return true
	}
	return strings.HasPrefix(token, "your_")
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate server token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (l *Loader) resolvePath() string {
	if l.path != "" {
		return l.path
	}
	if p, ok := l.lookupEnv(ConfigPathEnv); ok && strings.TrimSpace(p) != "" {
		return strings.TrimSpace(p)
	}
	return DefaultConfigFile
}

func (l *Loader) env(key string) (string, bool) {
	v, ok := l.lookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// applyEnv 环境变量覆盖配置文件
func (l *Loader) applyEnv(cfg *Config) {
	if v, ok := l.env("VISION_PROVIDER"); ok {
		cfg.Selected.VLLLM = v
	}
	if v, ok := l.env("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := l.env("WEB_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v, ok := l.env("SERVER_TOKEN"); ok {
		cfg.Server.Token = v
	}
	if v, ok := l.env("SESSION_STORE"); ok {
		cfg.Session.Store = v
	}
	if v, ok := l.env("REDIS_ADDR"); ok {
		cfg.Session.Redis.Addr = v
	}

	apiKey, ok := l.env("VISION_API_KEY")
	if !ok {
		apiKey, ok = l.env("GOOGLE_API_KEY")
	}
	if ok {
		name, provider, found := cfg.SelectedVLLLM()
		if found && (provider.APIKey == "" || strings.HasPrefix(provider.APIKey, "your_")) {
			provider.APIKey = apiKey
			cfg.VLLLM[name] = provider
		}
	}
}

// normalise fills zero values left by partial YAML sections.
func normalise(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = defaults.Session.TTL
	}
	if cfg.Session.Cleanup <= 0 {
		cfg.Session.Cleanup = defaults.Session.Cleanup
	}
	if cfg.Server.CookieTTL <= 0 {
		cfg.Server.CookieTTL = defaults.Server.CookieTTL
	}
	if cfg.Web.MaxPromptRunes <= 0 {
		cfg.Web.MaxPromptRunes = defaults.Web.MaxPromptRunes
	}
	if cfg.Camera.MaxFrameSize <= 0 {
		cfg.Camera.MaxFrameSize = defaults.Camera.MaxFrameSize
	}
	if cfg.Camera.IdleTimeout <= 0 {
		cfg.Camera.IdleTimeout = defaults.Camera.IdleTimeout
	}
	cfg.Session.Store = strings.ToLower(strings.TrimSpace(cfg.Session.Store))

	for name, provider := range cfg.VLLLM {
		if provider.Security.MaxFileSize <= 0 {
			provider.Security = DefaultSecurity()
		}
		if provider.Timeout <= 0 {
			provider.Timeout = 60 * time.Second
		}
		cfg.VLLLM[name] = provider
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
		return fmt.Errorf("invalid web port: %d", cfg.Web.Port)
	}
	if placeholderSecret(cfg.Server.Token) {
		return fmt.Errorf("server.token must be set to a private value")
	}

	switch cfg.Session.Store {
	case "", "memory", "sqlite":
	case "redis":
		if cfg.Session.Redis.Addr == "" {
			return fmt.Errorf("session store redis requires session.redis.addr")
		}
	default:
		return fmt.Errorf("unsupported session store: %s", cfg.Session.Store)
	}

	if cfg.Selected.VLLLM == "" {
		return fmt.Errorf("selected_module.VLLLM is required")
	}
	_, provider, ok := cfg.SelectedVLLLM()
	if !ok {
		return fmt.Errorf("selected VLLLM provider %q not configured", cfg.Selected.VLLLM)
	}
	if len(provider.Security.AllowedFormats) == 0 {
		return fmt.Errorf("VLLLM %s: security.allowed_formats must not be empty", cfg.Selected.VLLLM)
	}
	if provider.Security.MaxWidth <= 0 || provider.Security.MaxHeight <= 0 || provider.Security.MaxPixels <= 0 {
		return fmt.Errorf("VLLLM %s: security dimension limits must be positive", cfg.Selected.VLLLM)
	}
	return nil
}
