package config

import (
	"time"
)

type Config struct {
	Server   ServerConfig           `yaml:"server" mapstructure:"server"`
	Log      LogConfig              `yaml:"log" mapstructure:"log"`
	Web      WebConfig              `yaml:"web" mapstructure:"web"`
	Session  SessionConfig          `yaml:"session" mapstructure:"session"`
	Camera   CameraConfig           `yaml:"camera" mapstructure:"camera"`
	Obs      ObservabilityConfig    `yaml:"observability" mapstructure:"observability"`
	Selected SelectedConfig         `yaml:"selected_module" mapstructure:"selected_module"`
	VLLLM    map[string]VLLLMConfig `yaml:"VLLLM" mapstructure:"VLLLM"`
}

type ServerConfig struct {
	IP    string `yaml:"ip" mapstructure:"ip"`
	Token string `yaml:"token" mapstructure:"token"`
	// CookieTTL bounds how long a browser keeps its session cookie.
	CookieTTL time.Duration `yaml:"cookie_ttl" mapstructure:"cookie_ttl"`
	// SecureCookie sets the Secure attribute on the session cookie.
	SecureCookie bool `yaml:"secure_cookie" mapstructure:"secure_cookie"`
}

type LogConfig struct {
	Level  string `yaml:"log_level" mapstructure:"log_level"`
	Dir    string `yaml:"log_dir" mapstructure:"log_dir"`
	File   string `yaml:"log_file" mapstructure:"log_file"`
	Format string `yaml:"log_format" mapstructure:"log_format"`
}

type WebConfig struct {
	Port           int    `yaml:"port" mapstructure:"port"`
	Title          string `yaml:"title" mapstructure:"title"`
	Subtitle       string `yaml:"subtitle" mapstructure:"subtitle"`
	MaxPromptRunes int    `yaml:"max_prompt_runes" mapstructure:"max_prompt_runes"`
}

// SessionConfig 会话存储配置
type SessionConfig struct {
	Store   string        `yaml:"store" mapstructure:"store"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
	Cleanup time.Duration `yaml:"cleanup" mapstructure:"cleanup"`
	Redis   RedisStore    `yaml:"redis,omitempty" mapstructure:"redis"`
	SQLite  SQLiteStore   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
}

type RedisStore struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type SQLiteStore struct {
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

// CameraConfig 实时拍照配置
type CameraConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxFrameSize int64         `yaml:"max_frame_size" mapstructure:"max_frame_size"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

type VLLLMConfig struct {
	Type        string                 `yaml:"type" mapstructure:"type"`
	ModelName   string                 `yaml:"model_name" mapstructure:"model_name"`
	BaseURL     string                 `yaml:"url" mapstructure:"url"`
	APIKey      string                 `yaml:"api_key" mapstructure:"api_key"`
	Temperature float64                `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int                    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TopP        float64                `yaml:"top_p" mapstructure:"top_p"`
	Timeout     time.Duration          `yaml:"timeout" mapstructure:"timeout"`
	Security    SecurityConfig         `yaml:"security" mapstructure:"security"`
	Extra       map[string]interface{} `yaml:",inline" mapstructure:",remain"`
}

type SecurityConfig struct {
	MaxFileSize       int64    `yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxPixels         int64    `yaml:"max_pixels" mapstructure:"max_pixels"`
	MaxWidth          int      `yaml:"max_width" mapstructure:"max_width"`
	MaxHeight         int      `yaml:"max_height" mapstructure:"max_height"`
	AllowedFormats    []string `yaml:"allowed_formats" mapstructure:"allowed_formats"`
	EnableDeepScan    bool     `yaml:"enable_deep_scan" mapstructure:"enable_deep_scan"`
	ValidationTimeout string   `yaml:"validation_timeout" mapstructure:"validation_timeout"`
}

type SelectedConfig struct {
	VLLLM string `yaml:"VLLLM" mapstructure:"VLLLM"`
}

// SelectedVLLLM returns the configuration of the selected vision provider.
func (c *Config) SelectedVLLLM() (string, VLLLMConfig, bool) {
	name := c.Selected.VLLLM
	if name == "" {
		return "", VLLLMConfig{}, false
	}
	cfg, ok := c.VLLLM[name]
	return name, cfg, ok
}
