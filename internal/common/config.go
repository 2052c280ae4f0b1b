package common

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	OCR      OCRConfig
	VLM      VLMConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

// DatabaseConfig holds analysis history storage configuration
type DatabaseConfig struct {
	Driver           string // sqlite | postgres | none
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCHealthAddr string
	AllowOrigins   []string
}

// StorageConfig holds upload storage configuration
type StorageConfig struct {
	UploadDir   string
	MaxUploadMB int64
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	TesseractLang string
	TessdataDir   string
	DPI           int
	Engine        string // exec | gosseract
}

// VLMConfig holds vision-language model configuration
type VLMConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LLMConfig holds reasoning model configuration
type LLMConfig struct {
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
	// FallbackOnError answers with the canned analysis when Ollama is unreachable.
	FallbackOnError bool
	PromptsDir      string
}

// PipelineConfig holds orchestration and worker settings
type PipelineConfig struct {
	CacheSize      int
	InboxDir       string
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
}

// LogConfig selects the slog handler
type LogConfig struct {
	Format string // text | json | pretty
	Level  string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			DSN:              getEnv("DB_URL", "./data/verifier.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
			GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
			AllowOrigins:   getEnvAsList("CORS_ALLOW_ORIGINS", []string{"*"}),
		},
		Storage: StorageConfig{
			UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
			MaxUploadMB: int64(getEnvAsInt("MAX_UPLOAD_MB", 20)),
		},
		OCR: OCRConfig{
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			DPI:           getEnvAsInt("OCR_DPI", 300),
			Engine:        getEnv("OCR_ENGINE", "exec"),
		},
		VLM: VLMConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout: getEnvAsDuration("VLM_TIMEOUT", 60*time.Second),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OLLAMA_URL", "http://localhost:11434"),
			Model:       getEnv("OLLAMA_MODEL", "llama3.2:3b"),
			Temperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.2),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),

			FallbackOnError: getEnvAsBool("LLM_FALLBACK_ON_ERROR", false),
			PromptsDir:      getEnv("PROMPTS_DIR", ""),
		},
		Pipeline: PipelineConfig{
			CacheSize:      getEnvAsInt("CACHE_SIZE", 128),
			InboxDir:       getEnv("INBOX_DIR", "inbox"),
			Workers:        getEnvAsInt("WORKERS", 2),
			QueueSize:      getEnvAsInt("QUEUE_SIZE", 64),
			ProcessTimeout: getEnvAsDuration("PROCESS_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError(http.StatusInternalServerError, "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Storage.UploadDir == "" {
		return NewAppError(http.StatusInternalServerError, "UPLOAD_DIR is required", ErrInvalidInput)
	}
	if c.Storage.MaxUploadMB <= 0 {
		return NewAppError(http.StatusInternalServerError, "MAX_UPLOAD_MB must be positive", ErrInvalidInput)
	}
	switch c.Database.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Database.DSN == "" {
			return NewAppError(http.StatusInternalServerError, "DB_URL is required for "+c.Database.Driver, ErrInvalidInput)
		}
	default:
		return NewAppError(http.StatusInternalServerError, "DB_DRIVER must be one of sqlite, postgres, none", ErrInvalidInput)
	}
	switch c.OCR.Engine {
	case "exec", "gosseract":
	default:
		return NewAppError(http.StatusInternalServerError, "OCR_ENGINE must be exec or gosseract", ErrInvalidInput)
	}
	if c.LLM.BaseURL == "" || c.LLM.Model == "" {
		return NewAppError(http.StatusInternalServerError, "OLLAMA_URL and OLLAMA_MODEL are required", ErrInvalidInput)
	}
	return nil
}

// MaxUploadBytes is the configured upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Storage.MaxUploadMB << 20
}
