package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string            `mapstructure:"environment"`
	LogLevel    string            `mapstructure:"log_level"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Estimator   EstimatorConfig   `mapstructure:"estimator"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Margin      MarginConfig      `mapstructure:"margin"`
	Enrichment  EnrichmentConfig  `mapstructure:"enrichment"`
	ScrapeAPI   ScrapeAPIConfig   `mapstructure:"scrape_api"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EstimatorConfig carries the Tier-1 heuristic knobs. Price band
// multipliers encode the inverse relationship between average price and
// sales volume.
type EstimatorConfig struct {
	MaxProducts         int     `mapstructure:"max_products"`
	BaseUnitsPerListing int     `mapstructure:"base_units_per_listing"`
	HighPriceThreshold  float64 `mapstructure:"high_price_threshold"`
	LowPriceThreshold   float64 `mapstructure:"low_price_threshold"`
	HighPriceMultiplier float64 `mapstructure:"high_price_multiplier"`
	LowPriceMultiplier  float64 `mapstructure:"low_price_multiplier"`
	RankDecayExponent   float64 `mapstructure:"rank_decay_exponent"`
	Tier1TimeoutSeconds int     `mapstructure:"tier1_timeout_seconds"`
}

// CalibrationConfig gates the self-calibrating estimator's retraining job.
// RetrainMinRows is a hard minimum-sample-size gate, not a tuning knob.
type CalibrationConfig struct {
	Marketplaces      []string `mapstructure:"marketplaces"`
	RetrainMinRows    int      `mapstructure:"retrain_min_rows"`
	RetrainWindowRows int      `mapstructure:"retrain_window_rows"`
	RetrainSchedule   string   `mapstructure:"retrain_schedule"`
}

type MarginConfig struct {
	DefaultPrice  float64 `mapstructure:"default_price"`
	DefaultFeePct float64 `mapstructure:"default_fee_pct"`
}

// ScrapeAPIConfig points at the external listing scrape service.
type ScrapeAPIConfig struct {
	ServiceURL string `mapstructure:"service_url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"`
}

type EnrichmentConfig struct {
	MaxCallsPerAnalysis int    `mapstructure:"max_calls_per_analysis"`
	CacheTTL            string `mapstructure:"cache_ttl"`
}

// CacheTTLDuration parses the configured enrichment cache TTL.
func (e EnrichmentConfig) CacheTTLDuration() time.Duration {
	d, err := time.ParseDuration(e.CacheTTL)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects logically impossible configuration. Malformed config is
// a programming error and fails startup, unlike missing market data which
// the engine degrades around.
func (c *Config) Validate() error {
	if c.Estimator.MaxProducts <= 0 {
		return fmt.Errorf("estimator.max_products must be positive, got %d", c.Estimator.MaxProducts)
	}
	if c.Estimator.RankDecayExponent <= 0 {
		return fmt.Errorf("estimator.rank_decay_exponent must be positive, got %f", c.Estimator.RankDecayExponent)
	}
	if c.Estimator.LowPriceThreshold >= c.Estimator.HighPriceThreshold {
		return fmt.Errorf("estimator price thresholds inverted: low %f >= high %f",
			c.Estimator.LowPriceThreshold, c.Estimator.HighPriceThreshold)
	}
	if c.Calibration.RetrainMinRows <= 0 {
		return fmt.Errorf("calibration.retrain_min_rows must be positive, got %d", c.Calibration.RetrainMinRows)
	}
	if c.Calibration.RetrainWindowRows < c.Calibration.RetrainMinRows {
		return fmt.Errorf("calibration.retrain_window_rows %d below retrain_min_rows %d",
			c.Calibration.RetrainWindowRows, c.Calibration.RetrainMinRows)
	}
	if c.Margin.DefaultPrice <= 0 {
		return fmt.Errorf("margin.default_price must be positive, got %f", c.Margin.DefaultPrice)
	}
	if c.Enrichment.MaxCallsPerAnalysis < 0 {
		return fmt.Errorf("enrichment.max_calls_per_analysis must not be negative, got %d", c.Enrichment.MaxCallsPerAnalysis)
	}
	if _, err := time.ParseDuration(c.Enrichment.CacheTTL); err != nil {
		return fmt.Errorf("invalid enrichment cache TTL: %w", err)
	}
	if c.ScrapeAPI.ServiceURL == "" {
		return fmt.Errorf("scrape_api.service_url must not be empty")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "sellerscope")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Estimator
	viper.SetDefault("estimator.max_products", 49)
	viper.SetDefault("estimator.base_units_per_listing", 120)
	viper.SetDefault("estimator.high_price_threshold", 100.0)
	viper.SetDefault("estimator.low_price_threshold", 20.0)
	viper.SetDefault("estimator.high_price_multiplier", 0.6)
	viper.SetDefault("estimator.low_price_multiplier", 1.5)
	viper.SetDefault("estimator.rank_decay_exponent", 0.7)
	viper.SetDefault("estimator.tier1_timeout_seconds", 10)

	// Calibration
	viper.SetDefault("calibration.marketplaces", []string{"amazon.com"})
	viper.SetDefault("calibration.retrain_min_rows", 200)
	viper.SetDefault("calibration.retrain_window_rows", 1000)
	viper.SetDefault("calibration.retrain_schedule", "0 3 * * *")

	// Margin
	viper.SetDefault("margin.default_price", 25.0)
	viper.SetDefault("margin.default_fee_pct", 15.0)

	// Enrichment
	viper.SetDefault("enrichment.max_calls_per_analysis", 10)
	viper.SetDefault("enrichment.cache_ttl", "168h")

	// Scrape API
	viper.SetDefault("scrape_api.service_url", "http://localhost:3001")
	viper.SetDefault("scrape_api.timeout", 30)
}
