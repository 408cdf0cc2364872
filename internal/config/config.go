package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
	Matching   Matching   `mapstructure:"matching"`
	Quote      Quote      `mapstructure:"quote"`
	Reconciler Reconciler `mapstructure:"reconciler"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// Matching holds the configuration for automatic FIFO matching.
type Matching struct {
	// ExcludeSettled keeps trades bound into a settlement out of FIFO candidacy.
	ExcludeSettled bool `mapstructure:"exclude_settled"`
}

// Quote holds the configuration for the stock metadata lookup.
type Quote struct {
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	Timeout        int     `mapstructure:"timeout"`   // seconds
	RedisURL       string  `mapstructure:"redis_url"` // empty disables caching
	CacheTTL       int     `mapstructure:"cache_ttl"` // seconds
}

// Reconciler holds the configuration for the periodic ledger rebuild.
type Reconciler struct {
	Enabled  bool `mapstructure:"enabled"`
	Interval int  `mapstructure:"interval"` // seconds
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "tbill.db")
	v.SetDefault("matching.exclude_settled", true)
	v.SetDefault("quote.base_url", "http://hq.sinajs.cn")
	v.SetDefault("quote.rate_limit", 5) // requests per second
	v.SetDefault("quote.rate_limit_burst", 2)
	v.SetDefault("quote.timeout", 5)
	v.SetDefault("quote.cache_ttl", 86400)
	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.interval", 300)
}
