package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultLeafTypeURL    = "https://serverless.roboflow.com/infer/workflows/object-detection-8ndcf/leaf-type"
	defaultLeafDiseaseURL = "https://serverless.roboflow.com/infer/workflows/object-detection-8ndcf/leaf-disease-detection"
	defaultOpenRouterURL  = "https://openrouter.ai/api/v1"

	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"

	RecordStoreFile   = "file"
	RecordStoreSQLite = "sqlite"
)

type Config struct {
	HTTPPort  string
	LogLevel  string
	LogFormat string
	JWTSecret string

	DatabaseURL string
	RecordStore string
	RecordsDir  string

	LLMProvider      string
	OpenRouterAPIKey string
	GeminiAPIKey     string
	LLMBaseURL       string
	LLMModel         string
	LLMTimeout       time.Duration

	InferenceAPIKey  string
	LeafTypeURL      string
	LeafDiseaseURL   string
	InferenceTimeout time.Duration
	MaxUploadBytes   int64

	SessionTTL  time.Duration
	MaxSessions int
}

var AppConfig Config

// LoadConfig populates AppConfig from the environment and an optional .env file.
// Boolean result reports whether a .env file was found.
func LoadConfig() (bool, error) {
	foundEnvFile := godotenv.Load() == nil

	AppConfig = Config{
		HTTPPort:  getEnv("HTTP_PORT", "8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		JWTSecret: getEnv("JWT_SECRET", ""),

		DatabaseURL: getEnv("DATABASE_URL", "leaf_doctor.db"),
		RecordStore: strings.ToLower(getEnv("RECORD_STORE", RecordStoreFile)),
		RecordsDir:  getEnv("RECORDS_DIR", "data/records"),

		LLMProvider:      strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenRouter)),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		LLMBaseURL:       getEnv("LLM_BASE_URL", defaultOpenRouterURL),
		LLMModel:         getEnv("LLM_MODEL", ""),
		LLMTimeout:       getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),

		InferenceAPIKey:  getEnv("INFERENCE_API_KEY", ""),
		LeafTypeURL:      getEnv("LEAF_TYPE_URL", defaultLeafTypeURL),
		LeafDiseaseURL:   getEnv("LEAF_DISEASE_URL", defaultLeafDiseaseURL),
		InferenceTimeout: getEnvAsDuration("INFERENCE_TIMEOUT", 30*time.Second),
		MaxUploadBytes:   int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),

		SessionTTL:  getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		MaxSessions: getEnvAsInt("MAX_SESSIONS", 1024),
	}

	return foundEnvFile, AppConfig.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}

	switch c.LLMProvider {
	case ProviderOpenRouter:
		if c.OpenRouterAPIKey == "" {
			errs = append(errs, errors.New("OPENROUTER_API_KEY environment variable is required"))
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY environment variable is required"))
		}
	default:
		errs = append(errs, errors.New("LLM_PROVIDER must be one of openrouter, gemini"))
	}

	if c.RecordStore != RecordStoreFile && c.RecordStore != RecordStoreSQLite {
		errs = append(errs, errors.New("RECORD_STORE must be one of file, sqlite"))
	}
	return errors.Join(errs...)
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
