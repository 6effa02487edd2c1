package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	PriceFeed  PriceFeed  `mapstructure:"price_feed"`
	Monitor    Monitor    `mapstructure:"monitor"`
	Settlement Settlement `mapstructure:"settlement"`
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
}

// PriceFeed holds the configuration for the market price client.
type PriceFeed struct {
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Monitor holds the configuration for the expiry/liquidation sweep.
type Monitor struct {
	SweepInterval int `mapstructure:"sweep_interval"` // seconds
}

// Settlement holds the configuration for the trade ledger.
type Settlement struct {
	// Percentage of the committed margin returned to the trader when a
	// leveraged position is liquidated. 0 means liquidation forfeits
	// the whole margin.
	LiquidationResidualPercent float64 `mapstructure:"liquidation_residual_percent"`
	MaxRetries                 int     `mapstructure:"max_retries"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
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
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("price_feed.rate_limit", 20)      // requests per second
	viper.SetDefault("price_feed.rate_limit_burst", 5) // burst size
	viper.SetDefault("monitor.sweep_interval", 5)
	viper.SetDefault("settlement.liquidation_residual_percent", 0)
	viper.SetDefault("settlement.max_retries", 3)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
