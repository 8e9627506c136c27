/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the account-service.
// These values are loaded from environment variables. Monetary amounts are
// minor units.
type Config struct {
	ServerPort                   string `mapstructure:"SERVER_PORT"`
	DatabaseURL                  string `mapstructure:"DATABASE_URL"`
	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                  string `mapstructure:"RABBITMQ_URL"`
	EventsExchange               string `mapstructure:"EVENTS_EXCHANGE"`
	LedgerEventQueue             string `mapstructure:"LEDGER_EVENT_QUEUE"`
	LedgerAPIBaseURL             string `mapstructure:"LEDGER_API_BASE_URL"`
	LedgerAPIKey                 string `mapstructure:"LEDGER_API_KEY"`
	CustomerAPIBaseURL           string `mapstructure:"CUSTOMER_API_BASE_URL"`
	CustomerAPIKey               string `mapstructure:"CUSTOMER_API_KEY"`
	JWKSURL                      string `mapstructure:"JWKS_URL"`
	AuthAudience                 string `mapstructure:"AUTH_AUDIENCE"`
	AuthIssuer                   string `mapstructure:"AUTH_ISSUER"`
	InternalAPIKey               string `mapstructure:"INTERNAL_API_KEY"`
	OpeningBonusMinor            int64  `mapstructure:"OPENING_BONUS_MINOR"`
	DefaultProductType           string `mapstructure:"DEFAULT_PRODUCT_TYPE"`
	DefaultCurrency              string `mapstructure:"DEFAULT_CURRENCY"`
	OpenAccountRateLimitPerMin   int    `mapstructure:"OPEN_ACCOUNT_RATE_LIMIT_PER_MINUTE"`
	InboxRetentionDays           int    `mapstructure:"INBOX_RETENTION_DAYS"`
	InboxPurgeSchedule           string `mapstructure:"INBOX_PURGE_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("EVENTS_EXCHANGE", "bank.events")
	viper.SetDefault("LEDGER_EVENT_QUEUE", "account_service.ledger_postings")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "veltabank:rate_limit")
	viper.SetDefault("OPENING_BONUS_MINOR", 5000)
	viper.SetDefault("DEFAULT_PRODUCT_TYPE", "checking")
	viper.SetDefault("DEFAULT_CURRENCY", "USD")
	viper.SetDefault("OPEN_ACCOUNT_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("INBOX_RETENTION_DAYS", 30)
	viper.SetDefault("INBOX_PURGE_SCHEDULE", "17 3 * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "ACCOUNT_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("LEDGER_EVENT_QUEUE")
	_ = viper.BindEnv("LEDGER_API_BASE_URL")
	_ = viper.BindEnv("LEDGER_API_KEY")
	_ = viper.BindEnv("CUSTOMER_API_BASE_URL")
	_ = viper.BindEnv("CUSTOMER_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("AUTH_AUDIENCE")
	_ = viper.BindEnv("AUTH_ISSUER")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "ACCOUNT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("OPENING_BONUS_MINOR")
	_ = viper.BindEnv("DEFAULT_PRODUCT_TYPE")
	_ = viper.BindEnv("DEFAULT_CURRENCY")
	_ = viper.BindEnv("OPEN_ACCOUNT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("INBOX_RETENTION_DAYS")
	_ = viper.BindEnv("INBOX_PURGE_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("ACCOUNT_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "veltabank:rate_limit"
	}
	if config.OpeningBonusMinor < 0 {
		config.OpeningBonusMinor = 0
	}
	if config.InboxRetentionDays <= 0 {
		config.InboxRetentionDays = 30
	}

	return
}
