// Package config decodes Settings from the environment (with an optional
// .env file and YAML override), following the struct-of-structs shape used
// throughout the rest of this module.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// ServerConfig controls an HTTP listener.
type ServerConfig struct {
	Host string `env:"SERVER_HOST"`
	Port int    `env:"SERVER_PORT,default=8080"`
}

// DatabaseConfig controls the job-store Postgres connection.
type DatabaseConfig struct {
	URL             string `env:"DATABASE_URL"`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	MigrateOnStart  bool   `env:"DATABASE_MIGRATE_ON_START,default=true"`
}

// CacheConfig controls the two-tier response cache.
type CacheConfig struct {
	RedisURL   string `env:"REDIS_URL"`
	DefaultTTL int    `env:"CACHE_TTL_SECONDS,default=7200"`
}

// LoggingConfig controls the ambient logger.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN WARNING ERROR CRITICAL"`
	Format string `env:"LOG_FORMAT,default=text" validate:"oneof=text json"`
}

// UploadConfig controls inbound image validation (C5 + C10).
type UploadConfig struct {
	MaxUploadSizeMB   int      `env:"MAX_UPLOAD_SIZE_MB,default=10" validate:"gt=0"`
	AllowedImageTypes []string `env:"ALLOWED_IMAGE_TYPES"`
	StorageRoot       string   `env:"STORAGE_ROOT,default=./data/images" validate:"required"`
}

// MaxUploadSizeBytes converts the configured MB limit to bytes.
func (u UploadConfig) MaxUploadSizeBytes() int64 {
	return int64(u.MaxUploadSizeMB) * 1024 * 1024
}

// RAGConfig controls the retrieval index (C3).
type RAGConfig struct {
	KnowledgeBasePath string `env:"KNOWLEDGE_BASE_PATH"`
	ChunkSize         int    `env:"RAG_CHUNK_SIZE,default=800"`
	ChunkOverlap      int    `env:"RAG_CHUNK_OVERLAP,default=80"`
}

// LLMConfig controls provider credentials/models and the fallback runner.
type LLMConfig struct {
	Temperature     float64 `env:"LLM_TEMPERATURE,default=0.0"`
	GeminiAPIKey    string  `env:"GEMINI_API_KEY"`
	GeminiModel     string  `env:"GEMINI_MODEL,default=gemini-1.5-flash"`
	OpenAIAPIKey    string  `env:"OPENAI_API_KEY"`
	OpenAIModel     string  `env:"OPENAI_MODEL,default=gpt-4o-mini"`
	OllamaBaseURL   string  `env:"OLLAMA_BASE_URL"`
	OllamaModel     string  `env:"OLLAMA_MODEL,default=llava"`
}

// Settings is the process-wide, explicitly constructed configuration value.
// It is built once at startup and passed by reference rather than resolved
// through a memoized global singleton.
type Settings struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Logging     LoggingConfig
	Upload      UploadConfig
	RAG         RAGConfig
	LLM         LLMConfig
	CORSOrigins string `env:"CORS_ORIGINS,default=*"`
	AnalyzerURL string `env:"ANALYZER_URL,default=http://localhost:8081"`
}

var defaultAllowedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// Load reads a .env file if present (ignored if missing), decodes Settings
// from the environment, applies an optional YAML override file named by
// CONFIG_FILE, and fills in defaults envdecode cannot express (slices).
func Load() (*Settings, error) {
	_ = godotenv.Load()

	var s Settings
	if err := envdecode.Decode(&s); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, err
	}

	if len(s.Upload.AllowedImageTypes) == 0 {
		if raw := os.Getenv("ALLOWED_IMAGE_TYPES"); raw != "" {
			s.Upload.AllowedImageTypes = strings.Split(raw, ",")
		} else {
			s.Upload.AllowedImageTypes = append([]string{}, defaultAllowedImageTypes...)
		}
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyYAMLOverride(path, &s); err != nil {
			return nil, err
		}
	}

	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &s, nil
}

func applyYAMLOverride(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, s)
}
