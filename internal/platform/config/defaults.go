package config

import "time"

// DefaultSecurity 上传与拍照图片的默认安全限制
func DefaultSecurity() SecurityConfig {
	return SecurityConfig{
		MaxFileSize:       5 * 1024 * 1024,
		MaxPixels:         16777216,
		MaxWidth:          4096,
		MaxHeight:         4096,
		AllowedFormats:    []string{"jpeg", "jpg", "png"},
		EnableDeepScan:    true,
		ValidationTimeout: "10s",
	}
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:        "0.0.0.0",
			Token:     "your_token",
			CookieTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Port:           8080,
			Title:          "Image Processor",
			Subtitle:       "Gemini Vision Application",
			MaxPromptRunes: 2000,
		},
		Session: SessionConfig{
			Store:   "memory",
			TTL:     2 * time.Hour,
			Cleanup: 10 * time.Minute,
			Redis: RedisStore{
				Prefix: "image-processor:session:",
			},
			SQLite: SQLiteStore{
				DSN: "data/image-processor.db",
			},
		},
		Camera: CameraConfig{
			Enabled:      true,
			MaxFrameSize: 2 * 1024 * 1024,
			IdleTimeout:  2 * time.Minute,
		},
		Obs: ObservabilityConfig{
			Enabled: true,
		},
		Selected: SelectedConfig{
			VLLLM: "GeminiVLLM",
		},
		VLLLM: map[string]VLLLMConfig{
			"GeminiVLLM": {
				Type:        "openai",
				ModelName:   "gemini-1.5-flash",
				BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
				Temperature: 0.4,
				MaxTokens:   2048,
				TopP:        0.95,
				Timeout:     60 * time.Second,
				Security:    DefaultSecurity(),
			},
			"OllamaVLLM": {
				Type:        "ollama",
				ModelName:   "qwen2.5vl",
				BaseURL:     "http://localhost:11434",
				Temperature: 0.7,
				MaxTokens:   2048,
				TopP:        0.9,
				Timeout:     120 * time.Second,
				Security:    DefaultSecurity(),
			},
		},
	}
}
