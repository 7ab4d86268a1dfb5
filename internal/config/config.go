package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Env      string         `mapstructure:"env"`
	Port     int            `mapstructure:"port"`
	AppName  string         `mapstructure:"app_name"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	AWS      AWSConfig      `mapstructure:"aws"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// RabbitMQConfig points the event publisher at a broker. An empty URL
// disables publishing and events are only logged.
type RabbitMQConfig struct {
	URL          string `mapstructure:"url"`
	Exchange     string `mapstructure:"exchange"`
	ExchangeType string `mapstructure:"exchange_type"`
	MaxRetries   int    `mapstructure:"max_retries"`
	RetryDelay   int    `mapstructure:"retry_delay"` // seconds
}

// AWSConfig configures the S3 archive used before cleanup. An empty bucket
// disables archiving.
type AWSConfig struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	ArchivePrefix string `mapstructure:"archive_prefix"`
	Endpoint      string `mapstructure:"endpoint"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"` // seconds that preflight requests can be cached
}

// MongoDBConfig contains MongoDB connection details. An empty URI selects
// the in-memory store.
type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Directory string `mapstructure:"directory"`
}

// JobsConfig tunes bulk operation execution
type JobsConfig struct {
	AutoStart      bool `mapstructure:"auto_start"`
	QueueSize      int  `mapstructure:"queue_size"`
	RetentionDays  int  `mapstructure:"retention_days"`
	RunLockTTL     int  `mapstructure:"run_lock_ttl"`     // seconds
	StatusCacheTTL int  `mapstructure:"status_cache_ttl"` // seconds, 0 disables
	ResumeOnStart  bool `mapstructure:"resume_on_start"`
}

func (j JobsConfig) RunLockDuration() time.Duration {
	return time.Duration(j.RunLockTTL) * time.Second
}

func (j JobsConfig) StatusCacheDuration() time.Duration {
	return time.Duration(j.StatusCacheTTL) * time.Second
}

func (r RabbitMQConfig) RetryDuration() time.Duration {
	return time.Duration(r.RetryDelay) * time.Second
}

const envPrefix = "PROMPTBANK"

// LoadConfig reads configuration from the specified file path. Values from a
// .env file and PROMPTBANK_* environment variables override the file.
func LoadConfig(filePath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if filePath != "" {
		v.SetConfigFile(filePath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Credentials are commonly provided without the prefix
	_ = v.BindEnv("mongodb.uri", envPrefix+"_MONGODB_URI", "MONGODB_URI")
	_ = v.BindEnv("mongodb.password", envPrefix+"_MONGODB_PASSWORD", "MONGODB_PASSWORD")
	_ = v.BindEnv("redis.password", envPrefix+"_REDIS_PASSWORD", "REDIS_PASSWORD")
	_ = v.BindEnv("rabbitmq.url", envPrefix+"_RABBITMQ_URL", "RABBITMQ_URL")
	_ = v.BindEnv("aws.region", envPrefix+"_AWS_REGION", "AWS_REGION")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("app_name", "promptbank")

	v.SetDefault("mongodb.db", "promptbank")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "promptbank")

	v.SetDefault("rabbitmq.exchange", "promptbank.events")
	v.SetDefault("rabbitmq.exchange_type", "topic")
	v.SetDefault("rabbitmq.max_retries", 5)
	v.SetDefault("rabbitmq.retry_delay", 5)

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.archive_prefix", "bulk-operations")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-Actor-ID"})
	v.SetDefault("cors.max_age", 43200)

	v.SetDefault("jobs.auto_start", true)
	v.SetDefault("jobs.queue_size", 256)
	v.SetDefault("jobs.retention_days", 30)
	v.SetDefault("jobs.run_lock_ttl", 3600)
	v.SetDefault("jobs.status_cache_ttl", 300)
	v.SetDefault("jobs.resume_on_start", true)
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Jobs.QueueSize <= 0 {
		return fmt.Errorf("jobs.queue_size must be positive, got %d", c.Jobs.QueueSize)
	}
	if c.Jobs.RetentionDays <= 0 {
		return fmt.Errorf("jobs.retention_days must be positive, got %d", c.Jobs.RetentionDays)
	}
	if c.Jobs.RunLockTTL <= 0 {
		return fmt.Errorf("jobs.run_lock_ttl must be positive, got %d", c.Jobs.RunLockTTL)
	}
	switch c.Logging.Format {
	case "console", "combined", "json":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	return nil
}
