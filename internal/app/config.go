package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/datingbot/core/config"
	coredatabase "github.com/m3rciful/datingbot/core/database"
	"github.com/m3rciful/datingbot/internal/album"
	"github.com/m3rciful/datingbot/internal/ingest"
	"github.com/m3rciful/datingbot/internal/photos"
)

// Session store backends.
const (
	SessionMemory = "memory"
	SessionBadger = "badger"
	SessionSQL    = "sql"
	SessionRemote = "remote"
)

// Photo store backends.
const (
	PhotosMemory = "memory"
	PhotosMinio  = "minio"
)

// SessionConfig selects where dialog sessions live.
type SessionConfig struct {
	Backend   string `yaml:"backend" envconfig:"SESSION_BACKEND"`
	BadgerDir string `yaml:"badger_dir" envconfig:"SESSION_BADGER_DIR"`
}

// RecordsConfig points at the record store API used by the remote backend.
type RecordsConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"RECORDS_BASE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"RECORDS_TIMEOUT_SECONDS"`
}

// GeoConfig configures the Nominatim geocoder.
type GeoConfig struct {
	BaseURL        string  `yaml:"base_url" envconfig:"GEO_BASE_URL"`
	UserAgent      string  `yaml:"user_agent" envconfig:"GEO_USER_AGENT"`
	TimeoutSeconds int     `yaml:"timeout_seconds" envconfig:"GEO_TIMEOUT_SECONDS"`
	Rate           float64 `yaml:"rate" envconfig:"GEO_RATE"`
}

// PhotosConfig selects the photo object store.
type PhotosConfig struct {
	Backend     string             `yaml:"backend" envconfig:"PHOTOS_BACKEND"`
	Minio       photos.MinioConfig `yaml:"minio"`
	MaxPictures int                `yaml:"max_pictures" envconfig:"PHOTOS_MAX_PICTURES"`
}

// IngestConfig bounds the event loop.
type IngestConfig struct {
	Workers               int `yaml:"workers" envconfig:"INGEST_WORKERS"`
	MaxPending            int `yaml:"max_pending" envconfig:"INGEST_MAX_PENDING"`
	HandlerTimeoutSeconds int `yaml:"handler_timeout_seconds" envconfig:"INGEST_HANDLER_TIMEOUT_SECONDS"`
}

// APIConfig configures the record store HTTP API.
type APIConfig struct {
	Listen string `yaml:"listen" envconfig:"API_LISTEN"`
}

// Config is the application configuration. The core sections sit at the top
// level of the YAML file next to the application ones.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Session  SessionConfig       `yaml:"session"`
	Records  RecordsConfig       `yaml:"records"`
	Geo      GeoConfig           `yaml:"geo"`
	Photos   PhotosConfig        `yaml:"photos"`
	Ingest   IngestConfig        `yaml:"ingest"`
	API      APIConfig           `yaml:"api"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// RecordsTimeout returns the record API timeout.
func (c *Config) RecordsTimeout() time.Duration {
	return time.Duration(c.Records.TimeoutSeconds) * time.Second
}

// HandlerTimeout returns the per-event handler deadline.
func (c *Config) HandlerTimeout() time.Duration {
	return time.Duration(c.Ingest.HandlerTimeoutSeconds) * time.Second
}

// RateLimitOptions converts the core rate limit section for the event loop.
func (c *Config) RateLimitOptions() ingest.RateLimitOptions {
	exclude := make(map[string]struct{}, len(c.RateLimit.ExcludeUpdates))
	for _, kind := range c.RateLimit.ExcludeUpdates {
		if kind != "" {
			exclude[kind] = struct{}{}
		}
	}
	return ingest.RateLimitOptions{
		Interval: time.Duration(c.RateLimit.IntervalMS) * time.Millisecond,
		Exclude:  exclude,
	}
}

// LoadConfig reads and validates the bot configuration.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := cfg.normalizeBot(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadAPIConfig reads and validates the record store API configuration.
// The Telegram sections are not required.
func LoadAPIConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.API.Listen) == "" {
		cfg.API.Listen = ":8080"
	}
	if err := cfg.Database.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Warnings lists accepted but risky settings.
func (c *Config) Warnings() []string {
	var out []string
	if c.Session.Backend != SessionMemory && c.Photos.Backend == PhotosMemory {
		out = append(out, fmt.Sprintf(
			"photos.backend %q loses photos on restart while session.backend %q keeps their refs",
			PhotosMemory, c.Session.Backend))
	}
	return out
}

func (c *Config) normalizeBot() error {
	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	if c.Session.Backend == "" {
		c.Session.Backend = SessionMemory
	}
	switch c.Session.Backend {
	case SessionMemory:
	case SessionBadger:
		if strings.TrimSpace(c.Session.BadgerDir) == "" {
			return fmt.Errorf("session.badger_dir is required for backend %q", SessionBadger)
		}
	case SessionSQL:
		if err := c.Database.Normalize(); err != nil {
			return err
		}
	case SessionRemote:
		if strings.TrimSpace(c.Records.BaseURL) == "" {
			return fmt.Errorf("records.base_url is required for backend %q", SessionRemote)
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, badger, sql, remote", c.Session.Backend)
	}
	if c.Records.TimeoutSeconds <= 0 {
		c.Records.TimeoutSeconds = 10
	}

	if strings.TrimSpace(c.Geo.UserAgent) == "" {
		return fmt.Errorf("geo.user_agent is required")
	}
	if c.Geo.TimeoutSeconds < 0 || c.Geo.Rate < 0 {
		return fmt.Errorf("geo.timeout_seconds and geo.rate must be >= 0")
	}

	c.Photos.Backend = strings.ToLower(strings.TrimSpace(c.Photos.Backend))
	switch c.Photos.Backend {
	case "", PhotosMemory:
		c.Photos.Backend = PhotosMemory
	case PhotosMinio:
		if err := c.Photos.Minio.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid photos.backend %q; allowed: memory, minio", c.Photos.Backend)
	}
	if c.Photos.MaxPictures <= 0 {
		c.Photos.MaxPictures = album.DefaultMaxPictures
	}

	if c.Ingest.Workers < 0 || c.Ingest.MaxPending < 0 || c.Ingest.HandlerTimeoutSeconds < 0 {
		return fmt.Errorf("ingest settings must be >= 0")
	}
	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = ingest.DefaultWorkers
	}
	if c.Ingest.MaxPending == 0 {
		c.Ingest.MaxPending = ingest.DefaultMaxPending
	}
	if c.Ingest.HandlerTimeoutSeconds == 0 {
		c.Ingest.HandlerTimeoutSeconds = int(ingest.DefaultHandlerTimeout / time.Second)
	}
	return nil
}
