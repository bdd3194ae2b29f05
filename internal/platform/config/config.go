package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GradingQueueName   string
	GradingWorkerCount int
	GradingTimeout     time.Duration
	GradingMaxAttempts int

	JudgeURL          string
	JudgeAPIKey       string
	JudgePollInterval time.Duration
	JudgePollAttempts int

	FeedbackURL    string
	FeedbackAPIKey string
	FeedbackModel  string
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:    getEnv("API_PORT", "8080"),
		JWTKey:     []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:     time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "user"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "devtrain_db"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		GradingQueueName:   getEnv("GRADING_QUEUE_NAME", "grading_jobs_queue"),
		GradingWorkerCount: getEnvAsInt("GRADING_WORKER_COUNT", 1),
		GradingTimeout:     time.Duration(getEnvAsInt("GRADING_TIMEOUT_SECONDS", 120)) * time.Second,
		GradingMaxAttempts: getEnvAsInt("GRADING_MAX_ATTEMPTS", 3),

		JudgeURL:          getEnv("JUDGE_URL", "http://localhost:2358"),
		JudgeAPIKey:       getEnv("JUDGE_API_KEY", ""),
		JudgePollInterval: time.Duration(getEnvAsInt("JUDGE_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		JudgePollAttempts: getEnvAsInt("JUDGE_POLL_ATTEMPTS", 10),

		FeedbackURL:    getEnv("FEEDBACK_URL", ""),
		FeedbackAPIKey: getEnv("FEEDBACK_API_KEY", ""),
		FeedbackModel:  getEnv("FEEDBACK_MODEL", "gpt-4"),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
