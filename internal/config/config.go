// Package config loads faultline's settings.
//
// Precedence, highest first:
//  1. FAULTLINE_* environment variables (FAULTLINE_DATABASE_URL -> database_url)
//  2. the optional YAML file passed to Load
//  3. built-in defaults
package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"
)

const (
	EnvPrefix         = "FAULTLINE_"
	maxConfigFileSize = 1024 * 1024
)

type Config struct {
	HTTPAddr        string        `koanf:"http_addr"`
	CORSOrigin      string        `koanf:"cors_origin"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	ReportTimeout   time.Duration `koanf:"report_timeout"`

	DatabaseURL string        `koanf:"database_url"`
	RedisURL    string        `koanf:"redis_url"`
	CacheTTL    time.Duration `koanf:"cache_ttl"`

	MeiliURL    string `koanf:"meili_url"`
	MeiliAPIKey string `koanf:"meili_api_key"`

	NATSURL           string `koanf:"nats_url"`
	IngestQueue       string `koanf:"ingest_queue"`
	IngestMaxInFlight int    `koanf:"ingest_max_in_flight"`

	WebhookURL        string        `koanf:"webhook_url"`
	DiscordAPIURL     string        `koanf:"discord_api_url"`
	DiscordPublicKey  string        `koanf:"discord_public_key"`
	DiscordTimeout    time.Duration `koanf:"discord_timeout"`
	DiscordRate       float64       `koanf:"discord_rate"`
	DiscordBurst      int           `koanf:"discord_burst"`
	SignatureMaxSkew  time.Duration `koanf:"signature_max_skew"`
	BotUser           string        `koanf:"bot_user"`
	IngestTokenSecret string        `koanf:"ingest_token_secret"`

	AttachmentLimit   int           `koanf:"attachment_limit"`
	S3Endpoint        string        `koanf:"s3_endpoint"`
	S3AccessKey       string        `koanf:"s3_access_key"`
	S3SecretKey       string        `koanf:"s3_secret_key"`
	S3Bucket          string        `koanf:"s3_bucket"`
	S3UseSSL          bool          `koanf:"s3_use_ssl"`
	ArchiveLinkExpiry time.Duration `koanf:"archive_link_expiry"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// Default returns the settings used when nothing overrides them. Every
// external dependency is off by default, which runs the server in dry-run
// mode against in-memory backends.
func Default() Config {
	return Config{
		HTTPAddr:          ":8787",
		CORSOrigin:        "*",
		ShutdownTimeout:   10 * time.Second,
		ReportTimeout:     30 * time.Second,
		CacheTTL:          7 * 24 * time.Hour,
		IngestQueue:       "faultline",
		IngestMaxInFlight: 16,
		DiscordTimeout:    10 * time.Second,
		DiscordRate:       5,
		DiscordBurst:      5,
		SignatureMaxSkew:  5 * time.Minute,
		BotUser:           "faultline",
		AttachmentLimit:   8 << 20,
		S3Bucket:          "faultline-tracebacks",
		ArchiveLinkExpiry: 24 * time.Hour,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// Load reads configuration. An empty path skips the file layer; a path that
// does not exist is an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

// applyDefaults fills string settings that a layer set to empty.
func (c *Config) applyDefaults() {
	d := Default()
	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = d.HTTPAddr
	}
	if strings.TrimSpace(c.IngestQueue) == "" {
		c.IngestQueue = d.IngestQueue
	}
	if strings.TrimSpace(c.BotUser) == "" {
		c.BotUser = d.BotUser
	}
	if strings.TrimSpace(c.S3Bucket) == "" {
		c.S3Bucket = d.S3Bucket
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
}

func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	durations := map[string]time.Duration{
		"shutdown_timeout":    c.ShutdownTimeout,
		"report_timeout":      c.ReportTimeout,
		"discord_timeout":     c.DiscordTimeout,
		"cache_ttl":           c.CacheTTL,
		"archive_link_expiry": c.ArchiveLinkExpiry,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.SignatureMaxSkew < 0 {
		return fmt.Errorf("signature_max_skew must not be negative")
	}
	if c.DiscordRate <= 0 || c.DiscordBurst <= 0 {
		return fmt.Errorf("discord_rate and discord_burst must be positive")
	}
	if c.IngestMaxInFlight <= 0 {
		return fmt.Errorf("ingest_max_in_flight must be positive")
	}
	if c.AttachmentLimit <= 0 {
		return fmt.Errorf("attachment_limit must be positive")
	}
	if c.DiscordPublicKey != "" {
		raw, err := hex.DecodeString(c.DiscordPublicKey)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("discord_public_key must be 32 hex-encoded bytes")
		}
	}
	return nil
}

// DryRun reports whether notifications stay in process.
func (c Config) DryRun() bool {
	return strings.TrimSpace(c.WebhookURL) == ""
}
