package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Relay     RelayConfig
	Poll      PollConfig
	Batch     BatchConfig
	RateLimit RateLimitConfig
	R2        R2Config
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	Instance  string // names this process's batch queue; defaults to the hostname
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RelayConfig struct {
	BaseURL string
	APIKey  string
	Timeout int // seconds
}

type PollConfig struct {
	FastInterval   time.Duration
	SlowInterval   time.Duration
	StallThreshold int
}

type BatchConfig struct {
	SettleDelay         time.Duration
	TaskTimeout         time.Duration
	WorkerConcurrency   int
	RegisterConcurrency int
}

type RateLimitConfig struct {
	SubmitPerHour int
	BatchPerHour  int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	Endpoint        string
}

type GatewayConfig struct {
	Enabled bool
}

// Load reads config.yaml (optional) and environment variables
func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("RELAY_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.instance", "INSTANCE_NAME")
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("relay.base_url", "RELAY_BASE_URL")
	_ = v.BindEnv("relay.api_key", "RELAY_API_KEY")
	_ = v.BindEnv("relay.timeout", "RELAY_TIMEOUT")
	_ = v.BindEnv("poll.fast_interval", "POLL_FAST_INTERVAL")
	_ = v.BindEnv("poll.slow_interval", "POLL_SLOW_INTERVAL")
	_ = v.BindEnv("poll.stall_threshold", "POLL_STALL_THRESHOLD")
	_ = v.BindEnv("batch.settle_delay", "BATCH_SETTLE_DELAY")
	_ = v.BindEnv("batch.task_timeout", "BATCH_TASK_TIMEOUT")
	_ = v.BindEnv("batch.worker_concurrency", "BATCH_WORKER_CONCURRENCY")
	_ = v.BindEnv("batch.register_concurrency", "BATCH_REGISTER_CONCURRENCY")
	_ = v.BindEnv("ratelimit.submit_per_hour", "RATELIMIT_SUBMIT_PER_HOUR")
	_ = v.BindEnv("ratelimit.batch_per_hour", "RATELIMIT_BATCH_PER_HOUR")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("r2.endpoint", "R2_ENDPOINT")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Relay defaults
	v.SetDefault("relay.base_url", "http://localhost:8090/api/policy-tables")
	v.SetDefault("relay.timeout", 30)

	// Polling cadence
	v.SetDefault("poll.fast_interval", 2*time.Second)
	v.SetDefault("poll.slow_interval", 10*time.Second)
	v.SetDefault("poll.stall_threshold", 3)

	// Batch execution
	v.SetDefault("batch.settle_delay", 2*time.Second)
	v.SetDefault("batch.task_timeout", 24*time.Hour)
	v.SetDefault("batch.worker_concurrency", 4)
	v.SetDefault("batch.register_concurrency", 4)

	v.SetDefault("ratelimit.submit_per_hour", 120)
	v.SetDefault("ratelimit.batch_per_hour", 30)

	// Gateway defaults
	v.SetDefault("gateway.enabled", true)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			Instance:  v.GetString("server.instance"),
			ApiDomain: v.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Relay: RelayConfig{
			BaseURL: v.GetString("relay.base_url"),
			APIKey:  v.GetString("relay.api_key"),
			Timeout: v.GetInt("relay.timeout"),
		},
		Poll: PollConfig{
			FastInterval:   v.GetDuration("poll.fast_interval"),
			SlowInterval:   v.GetDuration("poll.slow_interval"),
			StallThreshold: v.GetInt("poll.stall_threshold"),
		},
		Batch: BatchConfig{
			SettleDelay:         v.GetDuration("batch.settle_delay"),
			TaskTimeout:         v.GetDuration("batch.task_timeout"),
			WorkerConcurrency:   v.GetInt("batch.worker_concurrency"),
			RegisterConcurrency: v.GetInt("batch.register_concurrency"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour: v.GetInt("ratelimit.submit_per_hour"),
			BatchPerHour:  v.GetInt("ratelimit.batch_per_hour"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
			Endpoint:        v.GetString("r2.endpoint"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
