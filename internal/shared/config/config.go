package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	DatabaseURL string

	QueueBroker string
	QueueURL    string
	QueueName   string
	SQSQueueURL string

	ObjectStoreType string
	DataDir         string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string

	LLMProvider  string
	LLMModel     string
	GeminiAPIKey string

	RetentionDays     int
	TaskTimeLimit     time.Duration
	TaskSoftTimeLimit time.Duration
	WorkerConcurrency int
	SweepInterval     time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8000"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),

		DatabaseURL: dbURL,

		QueueBroker: normalizeBroker(getEnv("QUEUE_BROKER", "redis")),
		QueueURL:    getEnv("QUEUE_URL", "redis://localhost:6379/0"),
		QueueName:   getEnv("QUEUE_NAME", "blood_test_analysis"),
		SQSQueueURL: getEnv("SQS_QUEUE_URL", ""),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		DataDir:         getEnv("DATA_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),

		LLMProvider:  getEnv("LLM_PROVIDER", "gemini"),
		LLMModel:     getEnv("LLM_MODEL", "gemini-1.5-flash"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),

		RetentionDays:     getEnvInt("RETENTION_DAYS", 30),
		TaskTimeLimit:     time.Duration(getEnvInt("TASK_TIME_LIMIT_MINUTES", 30)) * time.Minute,
		TaskSoftTimeLimit: time.Duration(getEnvInt("TASK_SOFT_TIME_LIMIT_MINUTES", 25)) * time.Minute,
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		SweepInterval:     time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		log.Printf("config env %s invalid int %q, using default %d", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeBroker(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "rabbitmq", "amqp":
		return "rabbitmq"
	case "sqs":
		return "sqs"
	case "memory":
		return "memory"
	default:
		return "redis"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
