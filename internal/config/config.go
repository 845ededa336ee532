// Package config loads the reporter's runtime configuration from the
// environment, with a .env fallback for local development.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                    string        `mapstructure:"PORT"`
	Env                     string        `mapstructure:"ENV"`
	DebugMode               bool          `mapstructure:"DEBUG_MODE"`
	ProcessRepeatedMessages bool          `mapstructure:"PROCESS_REPEATED_MESSAGES"`
	MongoURI                string        `mapstructure:"MONGO_URI"`
	MongoDatabase           string        `mapstructure:"MONGO_DATABASE"`
	AMQPURL                 string        `mapstructure:"AMQP_URL"`
	QueueName               string        `mapstructure:"QUEUE_NAME"`
	DestinationBucket       string        `mapstructure:"DESTINATION_BUCKET"`
	AWSRegion               string        `mapstructure:"AWS_REGION"`
	S3Endpoint              string        `mapstructure:"S3_ENDPOINT"`
	S3PathStyle             bool          `mapstructure:"S3_PATH_STYLE"`
	SecretID                string        `mapstructure:"SECRET_ID"`
	JurisdictionConfigDir   string        `mapstructure:"JURISDICTION_CONFIG_DIR"`
	RetryAttempts           int           `mapstructure:"RETRY_ATTEMPTS"`
	RetryDelay              time.Duration `mapstructure:"RETRY_DELAY"`
	RequestTimeout          time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DEBUG_MODE", false)
	v.SetDefault("PROCESS_REPEATED_MESSAGES", false)
	v.SetDefault("MONGO_DATABASE", "clinical")
	v.SetDefault("QUEUE_NAME", "encounter-complete")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("JURISDICTION_CONFIG_DIR", "configs/jurisdictions")
	v.SetDefault("RETRY_ATTEMPTS", 5)
	v.SetDefault("RETRY_DELAY", 10*time.Second)
	v.SetDefault("REQUEST_TIMEOUT", 10*time.Second)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DEBUG_MODE")
	v.BindEnv("PROCESS_REPEATED_MESSAGES")
	v.BindEnv("MONGO_URI")
	v.BindEnv("MONGO_DATABASE")
	v.BindEnv("AMQP_URL")
	v.BindEnv("QUEUE_NAME")
	v.BindEnv("DESTINATION_BUCKET")
	v.BindEnv("AWS_REGION")
	v.BindEnv("S3_ENDPOINT")
	v.BindEnv("S3_PATH_STYLE")
	v.BindEnv("SECRET_ID")
	v.BindEnv("JURISDICTION_CONFIG_DIR")
	v.BindEnv("RETRY_ATTEMPTS")
	v.BindEnv("RETRY_DELAY")
	v.BindEnv("REQUEST_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is complete enough to serve. The
// one-shot command validates a smaller subset itself.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.AMQPURL == "" {
		return fmt.Errorf("AMQP_URL is required")
	}
	if c.DestinationBucket == "" {
		return fmt.Errorf("DESTINATION_BUCKET is required")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1, got %d", c.RetryAttempts)
	}
	return nil
}
