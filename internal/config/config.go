package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Env  string
	Port string

	// LLMProvider selects the completion backend: "ollama" (native API) or "openai"
	// (any OpenAI-compatible endpoint, including Ollama's /v1).
	LLMProvider    string
	OllamaHost     string
	OllamaModel    string
	OllamaStream   bool
	OpenAIKey      string
	OpenAIEndpoint string
	OpenAIModel    string
	LLMTimeout     time.Duration
	LLMMaxRetries  int
	LLMRetryDelay  time.Duration

	Database  string
	UploadDir string
	StaticDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	GenerateRate  float64
	GenerateBurst int
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	cfg := Config{
		Env:            getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "5000"),
		LLMProvider:    getEnv("LLM_PROVIDER", "ollama"),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://127.0.0.1:11434"),
		OllamaModel:    getEnv("OLLAMA_MODEL", "phi3:mini"),
		OllamaStream:   getEnvBool("OLLAMA_STREAM", false),
		OpenAIKey:      getEnv("OPENAI_API_KEY", "ollama"),
		OpenAIEndpoint: getEnv("OPENAI_API_ENDPOINT", "http://127.0.0.1:11434/v1"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "phi3:mini"),
		LLMTimeout:     getEnvDuration("LLM_TIMEOUT", 90*time.Second),
		LLMMaxRetries:  getEnvInt("LLM_MAX_RETRIES", 2),
		LLMRetryDelay:  getEnvDuration("LLM_RETRY_DELAY", time.Second),
		Database:       getEnv("DATABASE_PATH", "./data/study.db"),
		UploadDir:      getEnv("UPLOAD_DIR", "./data/uploads"),
		StaticDir:      getEnv("STATIC_DIR", "./static"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		CacheTTL:       getEnvDuration("CACHE_TTL", 30*time.Minute),
		GenerateRate:   getEnvFloat("GENERATE_RATE", 1),
		GenerateBurst:  getEnvInt("GENERATE_BURST", 3),
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("failed to ensure upload dir %s: %v", cfg.UploadDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		log.Fatalf("failed to ensure database dir %s: %v", cfg.Database, err)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return f
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
