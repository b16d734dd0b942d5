package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	Environment string

	// Relational store (users, watchlists, alerts)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Market data store
	SQLitePath string

	// Optional latest-candle cache
	RedisHost string
	RedisPort string

	// Optional signal archive
	MongoURI string

	// Auth
	JWTSecret string

	// Market data
	DefaultProvider string
	DefaultSymbols  []string

	// Realtime fan-out
	CandlePollInterval time.Duration
	SignalPollInterval time.Duration
	SignalLookback     time.Duration

	// Split deployment: when set, the gateway pollers read from these
	// services over HTTP instead of the in-process implementations
	MarketDataURL string
	AnalyticsURL  string
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "marketdash_db"),

		SQLitePath: getEnv("SQLITE_PATH", "data/market.db"),

		RedisHost: getEnv("REDIS_HOST", ""),
		RedisPort: getEnv("REDIS_PORT", "6379"),

		MongoURI: getEnv("MONGODB_URI", ""),

		JWTSecret: getEnv("JWT_SECRET", "your-secret-key"),

		DefaultProvider: getEnv("DEFAULT_PROVIDER", "binance"),
		DefaultSymbols:  splitCSV(getEnv("DEFAULT_SYMBOLS", "BTC/USDT,ETH/USDT")),

		CandlePollInterval: getEnvDuration("CANDLE_POLL_INTERVAL_MS", 1000),
		SignalPollInterval: getEnvDuration("SIGNAL_POLL_INTERVAL_MS", 5000),
		SignalLookback:     getEnvDuration("SIGNAL_LOOKBACK_MS", 60000),

		MarketDataURL: getEnv("MARKET_DATA_URL", ""),
		AnalyticsURL:  getEnv("ANALYTICS_URL", ""),
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes the relational database connection
func InitDB() (*gorm.DB, error) {
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvDuration reads a millisecond count from the environment
func getEnvDuration(key string, defaultMs int) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return time.Duration(defaultMs) * time.Millisecond
	}
	ms, err := strconv.Atoi(value)
	if err != nil || ms <= 0 {
		log.Printf("Warning: invalid %s=%q, using default %dms", key, value, defaultMs)
		return time.Duration(defaultMs) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
