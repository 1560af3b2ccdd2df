package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/clipkeeper/internal/flagx"
	"github.com/dmitrijs2005/clipkeeper/internal/logging"
)

const (
	MirrorMemory   = "memory"
	MirrorGRPC     = "grpc"
	MirrorPostgres = "postgres"
)

// Log holds logging settings.
type Log struct {
	Level      string `validate:"omitempty,oneof=debug info warn warning error"`
	Format     string `validate:"omitempty,oneof=json text"`
	File       string
	MaxSizeMB  int `validate:"gte=0"`
	MaxBackups int `validate:"gte=0"`
}

// Options converts l for logging.New.
func (l Log) Options() logging.Options {
	return logging.Options{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
	}
}

// Config holds runtime settings for the clipkeeper CLI.
//
// DeviceID may stay empty: the store then generates one on first open and
// keeps it in the database. There is no direct S3 mirror for devices: an
// object store bucket takes a single writer, so devices reach it through
// mirrord.
type Config struct {
	DBPath   string `validate:"required"`
	DeviceID string

	Mirror             string `validate:"oneof=memory grpc postgres"`
	ServerEndpointAddr string `validate:"required_if=Mirror grpc"`
	AccessToken        string `validate:"required_if=Mirror grpc"`
	AccountID          string
	DatabaseDSN        string `validate:"required_if=Mirror postgres"`

	SyncInterval  time.Duration `validate:"gt=0"`
	RemoteTimeout time.Duration `validate:"gte=0"`
	RetryAttempts uint64
	RetryBase     time.Duration `validate:"gte=0"`

	Log Log
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DBPath = "clipkeeper.db"
	c.Mirror = MirrorGRPC
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.SyncInterval = 30 * time.Second
	c.RemoteTimeout = 10 * time.Second
	c.RetryAttempts = 3
	c.RetryBase = 200 * time.Millisecond
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 10
	c.Log.MaxBackups = 3
}

// Validate checks field constraints. The postgres mirror has no token to
// carry the account, so it needs AccountID.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Mirror == MirrorPostgres && c.AccountID == "" {
		return fmt.Errorf("invalid config: account id is required for the %s mirror", c.Mirror)
	}
	return nil
}

// LoadConfig applies defaults, then the JSON file named by -c/-config in
// args, then the flags in args, and validates the result. Later sources
// take precedence over earlier ones. Arguments that are not config flags
// are ignored.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, flagx.ConfigPath(args)); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
