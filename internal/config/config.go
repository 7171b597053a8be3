package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted by VIDEO_PROVIDER, IMAGE_PROVIDER and TEXT_PROVIDER.
const (
	ProviderVeo        = "veo"
	ProviderXAI        = "xai"
	ProviderImagen     = "imagen"
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // empty = no auth, dev mode
	CorsAllowedOrigins string // comma-separated; empty = *, dev mode

	// Logging
	LogLevel  string
	LogFormat string // json | console

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase (clip and audio publication). When unset, clips are written to ClipDir.
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
	ClipDir               string

	// Provider selection
	VideoProvider string
	ImageProvider string
	TextProvider  string

	// Credentials
	GeminiKey     string
	OpenAIKey     string
	OpenRouterKey string
	XAIAPIKey     string

	// Models
	VeoModel    string // used when a project's video model is not a Veo model
	ImagenModel string
	TextModel   string // sanitizer model; planner uses the project's planner model
	XAIDuration int    // seconds, 1-15

	// Rendering
	RenderConcurrency int
	RenderStagger     time.Duration
	PollInterval      time.Duration
	MaxPolls          int

	// Worker
	MaxConcurrentJobs int
	TempDir           string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "director-cut"),
		ClipDir:               getEnv("CLIP_DIR", "clips"),
		VideoProvider:         strings.ToLower(getEnv("VIDEO_PROVIDER", ProviderVeo)),
		ImageProvider:         strings.ToLower(getEnv("IMAGE_PROVIDER", ProviderImagen)),
		TextProvider:          strings.ToLower(getEnv("TEXT_PROVIDER", ProviderGemini)),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenRouterKey:         getEnv("OPENROUTER_API_KEY", ""),
		XAIAPIKey:             getEnv("XAI_API_KEY", ""),
		VeoModel:              getEnv("VEO_MODEL", "veo-3.1-fast-generate-preview"),
		ImagenModel:           getEnv("IMAGEN_MODEL", ""),
		TextModel:             getEnv("TEXT_MODEL", ""),
		XAIDuration:           getEnvInt("XAI_VIDEO_DURATION", 8),
		RenderConcurrency:     getEnvInt("RENDER_CONCURRENCY", 4),
		RenderStagger:         getEnvDuration("RENDER_STAGGER", 500*time.Millisecond),
		PollInterval:          getEnvDuration("POLL_INTERVAL", 10*time.Second),
		MaxPolls:              getEnvInt("MAX_POLLS", 60),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 2),
		TempDir:               getEnv("TEMP_DIR", os.TempDir()),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and that every selected provider has its credential.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.VideoProvider {
	case ProviderVeo:
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for VIDEO_PROVIDER=veo")
		}
	case ProviderXAI:
		if c.XAIAPIKey == "" {
			return fmt.Errorf("XAI_API_KEY is required for VIDEO_PROVIDER=xai")
		}
	default:
		return fmt.Errorf("unknown VIDEO_PROVIDER %q", c.VideoProvider)
	}

	switch c.ImageProvider {
	case ProviderImagen, ProviderGemini:
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for IMAGE_PROVIDER=%s", c.ImageProvider)
		}
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for IMAGE_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown IMAGE_PROVIDER %q", c.ImageProvider)
	}

	switch c.TextProvider {
	case ProviderGemini:
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for TEXT_PROVIDER=gemini")
		}
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for TEXT_PROVIDER=openai")
		}
	case ProviderOpenRouter:
		if c.OpenRouterKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY is required for TEXT_PROVIDER=openrouter")
		}
	default:
		return fmt.Errorf("unknown TEXT_PROVIDER %q", c.TextProvider)
	}

	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}
	if c.RenderConcurrency < 1 {
		return fmt.Errorf("RENDER_CONCURRENCY must be at least 1")
	}
	if c.MaxPolls < 1 {
		return fmt.Errorf("MAX_POLLS must be at least 1")
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}
	return nil
}

// SupabaseEnabled reports whether clips are published to Supabase Storage.
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
