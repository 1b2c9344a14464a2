package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server      Server      `mapstructure:"server"`
	Database    Database    `mapstructure:"database"`
	Polygon     Polygon     `mapstructure:"polygon"`
	Trading     Trading     `mapstructure:"trading"`
	Auth        Auth        `mapstructure:"auth"`
	Storage     Storage     `mapstructure:"storage"`
	Market      Market      `mapstructure:"market"`
	Leaderboard Leaderboard `mapstructure:"leaderboard"`
	Kafka       Kafka       `mapstructure:"kafka"`
	Scheduler   Scheduler   `mapstructure:"scheduler"`
	Logger      Logger      `mapstructure:"logger"`
}

// Server holds the configuration for the HTTP API.
type Server struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
}

// Database holds the configuration for the database.
// Driver is either "sqlite" or "postgres".
type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Polygon holds the configuration for the market data provider.
type Polygon struct {
	ApiKey         string        `mapstructure:"apiKey"`
	BaseURL        string        `mapstructure:"base_url"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	Timeout        time.Duration `mapstructure:"timeout"`
	QuoteTTL       time.Duration `mapstructure:"quote_ttl"`
}

// Trading holds the configuration for order handling.
type Trading struct {
	InitialCredits float64 `mapstructure:"initial_credits"`
}

// Auth holds the configuration for session tokens.
type Auth struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	PurgeSchedule string        `mapstructure:"purge_schedule"` // revoked token cleanup
}

// Storage holds the configuration for the profile picture blob store.
type Storage struct {
	Dir           string `mapstructure:"dir"`
	MaxImageBytes int64  `mapstructure:"max_image_bytes"`
}

// Instrument is one entry of the fixed tradable list.
type Instrument struct {
	Symbol string `mapstructure:"symbol"`
	Name   string `mapstructure:"name"`
}

// Market holds the instrument list and market data presentation settings.
type Market struct {
	Instruments []Instrument `mapstructure:"instruments"`
	NewsLimit   int          `mapstructure:"news_limit"`
}

// Leaderboard holds the configuration for the ranking refresh job.
type Leaderboard struct {
	RefreshSchedule string `mapstructure:"refresh_schedule"`
	Limit           int    `mapstructure:"limit"`
}

// Kafka holds the configuration for the optional event sink.
type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Scheduler holds the configuration for background jobs.
type Scheduler struct {
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and the environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "20s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "paper_trade.db")

	// Keys without a default are invisible to Unmarshal when only set in the environment.
	v.SetDefault("polygon.apiKey", "")
	v.SetDefault("polygon.base_url", "https://api.polygon.io")
	v.SetDefault("polygon.rate_limit", 5) // requests per second
	v.SetDefault("polygon.rate_limit_burst", 5)
	v.SetDefault("polygon.timeout", "10s")
	v.SetDefault("polygon.quote_ttl", "15s")

	v.SetDefault("trading.initial_credits", 10000)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.purge_schedule", "0 * * * *")

	v.SetDefault("storage.dir", "data/blobs")
	v.SetDefault("storage.max_image_bytes", 5<<20)

	v.SetDefault("market.news_limit", 5)

	v.SetDefault("leaderboard.refresh_schedule", "*/5 * * * *")
	v.SetDefault("leaderboard.limit", 50)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "paper-trade-events")

	v.SetDefault("scheduler.job_timeout", "5m")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}
