package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"anchorledger/core/anchor"
	"anchorledger/crypto"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for anchord.
type Config struct {
	ListenAddress string        `yaml:"listen"`
	DatabasePath  string        `yaml:"database"`
	Domain        DomainConfig  `yaml:"domain"`
	Owner         string        `yaml:"owner"`
	Limits        LimitsConfig  `yaml:"limits"`
	Journal       JournalConfig `yaml:"journal"`
	Admin         AdminConfig   `yaml:"admin"`
	HTTP          HTTPConfig    `yaml:"http"`
	Log           LogConfig     `yaml:"log"`
}

// DomainConfig selects the typed-data domain clients must sign against.
type DomainConfig struct {
	Name              string `yaml:"name"`
	Version           string `yaml:"version"`
	ChainID           uint64 `yaml:"chain_id"`
	VerifyingContract string `yaml:"verifying_contract"`
}

// LimitsConfig tunes the per-user anchoring limits.
type LimitsConfig struct {
	MaxPerWindow uint64   `yaml:"max_per_window"`
	Window       Duration `yaml:"window"`
	MinDelay     Duration `yaml:"min_delay"`
}

// JournalConfig selects the audit journal backend. Driver is "sqlite" or
// "postgres"; an empty DSN disables the journal.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AdminConfig protects the pause endpoints.
type AdminConfig struct {
	JWTSecretEnv string `yaml:"jwt_secret_env"`
	Issuer       string `yaml:"issuer"`
	Audience     string `yaml:"audience"`
}

// HTTPConfig tunes the API listener.
type HTTPConfig struct {
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	StreamBuffer       int      `yaml:"stream_buffer"`
}

// LogConfig controls the JSON logger and its optional rotating file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7081"
	}
	if cfg.Domain.Name == "" {
		cfg.Domain.Name = "PortfolioAnchor"
	}
	if cfg.Domain.Version == "" {
		cfg.Domain.Version = "1"
	}
	if cfg.Limits.MaxPerWindow == 0 {
		cfg.Limits.MaxPerWindow = 10
	}
	if cfg.Limits.Window.Duration == 0 {
		cfg.Limits.Window.Duration = time.Hour
	}
	if cfg.Limits.MinDelay.Duration == 0 {
		cfg.Limits.MinDelay.Duration = time.Minute
	}
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = "sqlite"
	}
	if cfg.Admin.JWTSecretEnv == "" {
		cfg.Admin.JWTSecretEnv = "ANCHORD_ADMIN_JWT_SECRET"
	}
	if cfg.HTTP.RateLimitPerSecond == 0 {
		cfg.HTTP.RateLimitPerSecond = 20
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 40
	}
	if cfg.HTTP.ReadTimeout.Duration == 0 {
		cfg.HTTP.ReadTimeout.Duration = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout.Duration == 0 {
		cfg.HTTP.WriteTimeout.Duration = 15 * time.Second
	}
	if cfg.HTTP.StreamBuffer == 0 {
		cfg.HTTP.StreamBuffer = 64
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Owner) == "" {
		return fmt.Errorf("owner must be configured")
	}
	if _, err := crypto.ParseAddress(cfg.Owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if cfg.Domain.ChainID == 0 {
		return fmt.Errorf("domain.chain_id must be non-zero")
	}
	if !common.IsHexAddress(cfg.Domain.VerifyingContract) {
		return fmt.Errorf("domain.verifying_contract must be a hex address")
	}
	if cfg.Limits.Window.Duration < time.Second {
		return fmt.Errorf("limits.window must be at least 1s")
	}
	if cfg.Limits.MinDelay.Duration < 0 {
		return fmt.Errorf("limits.min_delay must not be negative")
	}
	switch cfg.Journal.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("journal.driver must be sqlite or postgres")
	}
	if cfg.HTTP.RateLimitPerSecond < 0 || cfg.HTTP.RateLimitBurst < 0 {
		return fmt.Errorf("http rate limits must not be negative")
	}
	return nil
}

// OwnerAddress parses the configured owner. Load has already validated it.
func (c Config) OwnerAddress() common.Address {
	addr, _ := crypto.ParseAddress(c.Owner)
	return addr.Address
}

// AdminSecret reads the JWT signing secret from the configured environment
// variable. An empty secret disables the admin routes.
func (c Config) AdminSecret() []byte {
	return []byte(strings.TrimSpace(os.Getenv(c.Admin.JWTSecretEnv)))
}

// AnchorDomain builds the typed-data domain.
func (c Config) AnchorDomain() anchor.Domain {
	return anchor.Domain{
		Name:              c.Domain.Name,
		Version:           c.Domain.Version,
		ChainID:           c.Domain.ChainID,
		VerifyingContract: common.HexToAddress(c.Domain.VerifyingContract),
	}
}

// AnchorLimits builds the rate limits handed to the ledger.
func (c Config) AnchorLimits() anchor.Limits {
	return anchor.Limits{
		MaxPerWindow: c.Limits.MaxPerWindow,
		Window:       c.Limits.Window.Duration,
		MinDelay:     c.Limits.MinDelay.Duration,
	}
}
