package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Feed     Feed     `mapstructure:"feed"`
	Trading  Trading  `mapstructure:"trading"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Feed holds the configuration for the price feed client.
type Feed struct {
	BaseURL        string  `mapstructure:"base_url"`
	PollInterval   int     `mapstructure:"poll_interval"`
	MaxQuoteAge    int     `mapstructure:"max_quote_age"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Server holds the configuration for the HTTP server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Tier configures one trade duration: the minimum wager and the
// payout percentage applied at settlement. Tiers are seeded into the
// options_settings table at startup.
type Tier struct {
	Duration         int     `mapstructure:"duration"`
	MinAmount        float64 `mapstructure:"min_amount"`
	ProfitPercentage float64 `mapstructure:"profit_percentage"`
}

// Trading holds the configuration for the settlement core.
type Trading struct {
	Currency          string  `mapstructure:"currency"`
	SweepInterval     int     `mapstructure:"sweep_interval"`
	ForcedMovePercent float64 `mapstructure:"forced_move_percent"`
	Tiers             []Tier  `mapstructure:"tiers"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("feed.base_url", "https://api.binance.com/api/v3")
	viper.SetDefault("feed.poll_interval", 2)    // seconds between ticker refreshes
	viper.SetDefault("feed.max_quote_age", 30)   // seconds before a cached quote is stale
	viper.SetDefault("feed.rate_limit", 20)      // requests per second
	viper.SetDefault("feed.rate_limit_burst", 5) // burst size
	viper.SetDefault("trading.currency", "USDT")
	viper.SetDefault("trading.sweep_interval", 10)
	viper.SetDefault("trading.forced_move_percent", 1)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
