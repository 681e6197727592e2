package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	HTTPPort string
	Env      string
	LogLevel string

	DatabaseDriver string
	DatabaseURL    string
	MongoDatabase  string

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	LLMTimeout    time.Duration

	FileStorage        string
	S3Bucket           string
	S3Endpoint         string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	FrontendURL string
}

// IsProduction reports whether raw error details must be hidden from clients.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func Load() (Config, error) {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := Config{
		HTTPPort: getEnv("HTTP_PORT", "4000"),
		Env:      strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:    getEnv("DATABASE_URL", "chattyagent.db"),
		MongoDatabase:  getEnv("MONGO_DATABASE", "chattyagent"),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		TokenTTL:   getEnvAsDuration("TOKEN_TTL", 7*24*time.Hour),
		BcryptCost: getEnvAsInt("BCRYPT_COST", 12),

		LLMProvider:   strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		LLMTimeout:    getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),

		FileStorage:        strings.ToLower(getEnv("FILE_STORAGE", "openai")),
		S3Bucket:           getEnv("AWS_S3_BUCKET", ""),
		S3Endpoint:         getEnv("AWS_S3_ENDPOINT", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "mongo":
	default:
		return errors.New("DATABASE_DRIVER must be one of: sqlite, mongo")
	}
	switch c.LLMProvider {
	case "openai", "gemini":
	default:
		return errors.New("LLM_PROVIDER must be one of: openai, gemini")
	}
	switch c.FileStorage {
	case "openai", "none":
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("AWS_S3_BUCKET environment variable is required for s3 file storage")
		}
	default:
		return errors.New("FILE_STORAGE must be one of: openai, s3, none")
	}
	return nil
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
