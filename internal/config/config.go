// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/veganvoyager/venue-crawler/internal/crawler"
	"github.com/veganvoyager/venue-crawler/internal/extract"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig         `mapstructure:"server"`
	Crawler   CrawlerConfig        `mapstructure:"crawler"`
	HTTP      HTTPConfig           `mapstructure:"http"`
	Cities    []crawler.CityTarget `mapstructure:"cities"`
	Selectors extract.Selectors    `mapstructure:"selectors"`
	Output    OutputConfig         `mapstructure:"output"`
	DB        DBConfig             `mapstructure:"db"`
	Logging   LoggingConfig        `mapstructure:"logging"`
}

// ServerConfig controls the status/metrics HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CrawlerConfig governs pacing and the quality gate of the crawl pipeline.
type CrawlerConfig struct {
	UserAgent         string  `mapstructure:"user_agent"`
	InterPageDelaySec int     `mapstructure:"inter_page_delay_seconds"`
	InterCityDelaySec int     `mapstructure:"inter_city_delay_seconds"`
	MaxPages          int     `mapstructure:"max_pages"`
	CompletenessMin   float64 `mapstructure:"completeness_min"`
}

// HTTPConfig configures HTTP client retry behavior. Header keys are
// normalized to canonical MIME casing on load.
type HTTPConfig struct {
	TimeoutSeconds   int               `mapstructure:"timeout_seconds"`
	MaxRetries       int               `mapstructure:"max_retries"`
	BackoffInitialMs int               `mapstructure:"backoff_initial_ms"`
	Headers          map[string]string `mapstructure:"headers"`
}

// OutputConfig sets export destinations and snapshot behavior.
type OutputConfig struct {
	Dir           string `mapstructure:"dir"`
	SaveSnapshots bool   `mapstructure:"save_snapshots"`
	SnapshotDir   string `mapstructure:"snapshot_dir"`
}

// DBConfig controls access to the relational database; an empty DSN
// disables persistence.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VENUES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Selectors.VenueCard == "" {
		cfg.Selectors = extract.DefaultSelectors()
	}

	// Viper lowercases map keys during Unmarshal; restore canonical MIME
	// casing so configured headers survive the trip intact.
	if len(cfg.HTTP.Headers) > 0 {
		canonical := make(map[string]string, len(cfg.HTTP.Headers))
		for key, value := range cfg.HTTP.Headers {
			canonical[http.CanonicalHeaderKey(key)] = value
		}
		cfg.HTTP.Headers = canonical
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("crawler.inter_page_delay_seconds", 3)
	v.SetDefault("crawler.inter_city_delay_seconds", 5)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.completeness_min", 0.0)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.save_snapshots", false)
	v.SetDefault("output.snapshot_dir", "output/snapshots")
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 1 {
		return fmt.Errorf("http.max_retries must be >= 1")
	}
	if c.Crawler.InterPageDelaySec < 0 || c.Crawler.InterCityDelaySec < 0 {
		return fmt.Errorf("crawler delays must not be negative")
	}
	if c.Crawler.CompletenessMin < 0 || c.Crawler.CompletenessMin > 1 {
		return fmt.Errorf("crawler.completeness_min must be within [0, 1]")
	}
	for i, city := range c.Cities {
		if city.Name == "" || city.URL == "" {
			return fmt.Errorf("cities[%d] needs both a name and a url", i)
		}
	}
	return nil
}

// CrawlerSettings converts the pacing config into the crawler's terms.
func (c Config) CrawlerSettings() crawler.Config {
	return crawler.Config{
		MaxPages:       c.Crawler.MaxPages,
		InterPageDelay: time.Duration(c.Crawler.InterPageDelaySec) * time.Second,
		InterCityDelay: time.Duration(c.Crawler.InterCityDelaySec) * time.Second,
		MaxRetries:     c.HTTP.MaxRetries,
		RetryBaseDelay: time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
	}
}

// HTTPTimeout returns the per-request fetch budget.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
