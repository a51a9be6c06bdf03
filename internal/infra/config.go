package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	LogLevel         string
	Port             string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	MaxConcurrentRun int
	APIToken         string

	DatabaseURL     string
	DBMaxConns      int
	ArtifactBackend string
	ArtifactPath    string
	WorklistBackend string
	WorklistPath    string

	RedisURL     string
	LockTTL      time.Duration
	PollInterval time.Duration

	TextProvider  string
	ImageProvider string
	ImageSize     string
	PromptsPath   string

	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIImageModel string
	OpenAIBaseURL    string
	OpenAIOrg        string

	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string
	GeminiBaseURL    string

	AnthropicAPIKey string
	AnthropicModel  string

	QwenAPIKey  string
	QwenModel   string
	QwenBaseURL string

	WordPressAPIURL      string
	WordPressUsername    string
	WordPressAppPassword string
	WordPressPostStatus  string
	WordPressTimeout     time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		Port:             getEnv("PORT", "8080"),
		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT_SECONDS", 15*time.Second),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", 15*time.Minute),
		HTTPIdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT_SECONDS", 60*time.Second),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		MaxConcurrentRun: getEnvInt("MAX_CONCURRENT_RUNS", 2),
		APIToken:         os.Getenv("API_TOKEN"),

		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBMaxConns:      getEnvInt("DB_MAX_CONNS", 10),
		ArtifactBackend: strings.ToLower(getEnv("ARTIFACT_BACKEND", BackendFile)),
		ArtifactPath:    getEnv("ARTIFACT_PATH", "./data/artifacts"),
		WorklistBackend: strings.ToLower(getEnv("WORKLIST_BACKEND", BackendFile)),
		WorklistPath:    getEnv("WORKLIST_PATH", "./data/keywords.yaml"),

		RedisURL:     os.Getenv("REDIS_URL"),
		LockTTL:      getEnvDuration("LOCK_TTL_SECONDS", 30*time.Minute),
		PollInterval: getEnvDuration("WORKER_POLL_SECONDS", time.Minute),

		TextProvider:  strings.ToLower(getEnv("TEXT_PROVIDER", "openai")),
		ImageProvider: strings.ToLower(getEnv("IMAGE_PROVIDER", "openai")),
		ImageSize:     getEnv("IMAGE_SIZE", "1024x1024"),
		PromptsPath:   os.Getenv("PROMPTS_PATH"),

		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "o3-mini"),
		OpenAIImageModel: getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:        os.Getenv("OPENAI_ORG"),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),

		QwenAPIKey:  os.Getenv("QWEN_API_KEY"),
		QwenModel:   getEnv("QWEN_MODEL", "qwen-image-plus"),
		QwenBaseURL: getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),

		WordPressAPIURL:      strings.TrimRight(os.Getenv("WORDPRESS_API_URL"), "/"),
		WordPressUsername:    os.Getenv("WORDPRESS_USERNAME"),
		WordPressAppPassword: os.Getenv("WORDPRESS_APP_PASSWORD"),
		WordPressPostStatus:  getEnv("WORDPRESS_POST_STATUS", "draft"),
		WordPressTimeout:     getEnvDuration("WORDPRESS_TIMEOUT_SECONDS", 60*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for name, backend := range map[string]string{"ARTIFACT_BACKEND": c.ArtifactBackend, "WORKLIST_BACKEND": c.WorklistBackend} {
		if backend != BackendFile && backend != BackendPostgres {
			return fmt.Errorf("%s must be %q or %q, got %q", name, BackendFile, BackendPostgres, backend)
		}
	}
	if c.UsesPostgres() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when a postgres backend is selected")
	}
	switch c.TextProvider {
	case "openai", "gemini", "anthropic":
	default:
		return fmt.Errorf("TEXT_PROVIDER %q is not supported", c.TextProvider)
	}
	switch c.ImageProvider {
	case "openai", "gemini", "qwen":
	default:
		return fmt.Errorf("IMAGE_PROVIDER %q is not supported", c.ImageProvider)
	}
	if c.WordPressAPIURL == "" {
		return fmt.Errorf("WORDPRESS_API_URL is required")
	}
	if c.MaxConcurrentRun < 1 {
		c.MaxConcurrentRun = 1
	}
	return nil
}

// UsesPostgres reports whether any store is backed by Postgres.
func (c *Config) UsesPostgres() bool {
	return c.ArtifactBackend == BackendPostgres || c.WorklistBackend == BackendPostgres
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration reads a whole number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}
