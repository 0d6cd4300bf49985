/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * The fee bands, interest rate schedules, reward rules, and loan floors are one
 * versioned RateTables object built here and injected into the engines. The
 * engines themselves never hard-code a rate.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the wallet-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	InternalAPIKey             string `mapstructure:"INTERNAL_API_KEY"`
	OperationRateLimitPerMin   int    `mapstructure:"OPERATION_RATE_LIMIT_PER_MINUTE"`
	LoanSweepSchedule          string `mapstructure:"LOAN_SWEEP_SCHEDULE"`
	SavingsSweepSchedule       string `mapstructure:"SAVINGS_SWEEP_SCHEDULE"`
	ConflictRetryAttempts      int    `mapstructure:"CONFLICT_RETRY_ATTEMPTS"`
	ConflictRetryBackoffMillis int    `mapstructure:"CONFLICT_RETRY_BACKOFF_MS"`

	Rates RateTables `mapstructure:"-"`
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
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "wallet:rate_limit")
	viper.SetDefault("OPERATION_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("LOAN_SWEEP_SCHEDULE", "0 * * * *")
	viper.SetDefault("SAVINGS_SWEEP_SCHEDULE", "30 0 * * *")
	viper.SetDefault("CONFLICT_RETRY_ATTEMPTS", 5)
	viper.SetDefault("CONFLICT_RETRY_BACKOFF_MS", 25)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("OPERATION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("LOAN_SWEEP_SCHEDULE")
	_ = viper.BindEnv("SAVINGS_SWEEP_SCHEDULE")
	_ = viper.BindEnv("CONFLICT_RETRY_ATTEMPTS")
	_ = viper.BindEnv("CONFLICT_RETRY_BACKOFF_MS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "error", err)
		}
		err = nil
	}

	// Unmarshal the configuration into the Config struct.
	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "wallet:rate_limit"
	}
	if config.OperationRateLimitPerMin < 0 {
		slog.Warn("negative operation rate limit configured; disabling rate gate",
			"limit", config.OperationRateLimitPerMin)
		config.OperationRateLimitPerMin = 0
	}
	if config.ConflictRetryAttempts <= 0 {
		config.ConflictRetryAttempts = 5
	}
	if config.ConflictRetryBackoffMillis <= 0 {
		config.ConflictRetryBackoffMillis = 25
	}

	config.Rates = DefaultRateTables()

	return
}
