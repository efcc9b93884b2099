package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	AI         AIConfig         `mapstructure:"ai"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Reputation ReputationConfig `mapstructure:"reputation"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Coach      CoachConfig      `mapstructure:"coach"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Mode    string `mapstructure:"mode"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	URL       string        `mapstructure:"url"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type AIConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	MessageModel string        `mapstructure:"message_model"`
	AdviceModel  string        `mapstructure:"advice_model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
}

type ClassifierConfig struct {
	// FailurePolicy is the verdict used when a message cannot be
	// classified: "safe" or "dangerous".
	FailurePolicy     string `mapstructure:"failure_policy"`
	PromoteSuspicious bool   `mapstructure:"promote_suspicious"`
	Watch             bool   `mapstructure:"watch"`
	WatchWorkers      int    `mapstructure:"watch_workers"`
}

type ReputationConfig struct {
	Threshold               int  `mapstructure:"threshold"`
	AllowDuplicateReporters bool `mapstructure:"allow_duplicate_reporters"`
}

type RulesConfig struct {
	Path string `mapstructure:"path"`
}

type CoachConfig struct {
	MaxHistory int `mapstructure:"max_history"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("telegram.token", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "shieldbot")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_prefix", "shieldbot")
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("ai.message_model", "llama-3.1-8b-instant")
	v.SetDefault("ai.advice_model", "llama-3.3-70b-versatile")
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.retry_delay", 500*time.Millisecond)
	v.SetDefault("classifier.failure_policy", "safe")
	v.SetDefault("classifier.promote_suspicious", true)
	v.SetDefault("classifier.watch", true)
	v.SetDefault("classifier.watch_workers", 4)
	v.SetDefault("reputation.threshold", 3)
	v.SetDefault("reputation.allow_duplicate_reporters", true)
	v.SetDefault("rules.path", "")
	v.SetDefault("coach.max_history", 20)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// LoadConfig reads path, if it exists, over the defaults. Nested keys can be
// set from the environment as SECTION_KEY (for example AI_TIMEOUT), and the
// usual deployment variables are honoured directly.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	for _, key := range []string{"AI_API_KEY", "GROQ_API_KEY"} {
		if apiKey := v.GetString(key); apiKey != "" {
			config.AI.APIKey = apiKey
			break
		}
	}

	if redisURL := v.GetString("REDIS_URL"); redisURL != "" {
		config.Redis.URL = redisURL
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Classifier.FailurePolicy {
	case "safe", "dangerous":
	default:
		return fmt.Errorf("classifier.failure_policy must be safe or dangerous, got %q", c.Classifier.FailurePolicy)
	}
	if c.Reputation.Threshold <= 0 {
		return fmt.Errorf("reputation.threshold must be positive, got %d", c.Reputation.Threshold)
	}
	if !c.Server.Enabled && c.Telegram.Token == "" {
		return errors.New("nothing to run: server is disabled and no telegram token is set")
	}
	return nil
}
