package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/clipkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It is
// pre-filled from the current Config so keys missing in the file keep
// their values.
type JsonConfig struct {
	DBPath             string         `json:"db_path"`
	DeviceID           string         `json:"device_id"`
	Mirror             string         `json:"mirror"`
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	AccessToken        string         `json:"access_token"`
	AccountID          string         `json:"account_id"`
	DatabaseDSN        string         `json:"database_dsn"`
	SyncInterval       timex.Duration `json:"sync_interval"`
	RemoteTimeout      timex.Duration `json:"remote_timeout"`
	RetryAttempts      uint64         `json:"retry_attempts"`
	RetryBase          timex.Duration `json:"retry_base"`
	Log                jsonLog        `json:"log"`
}

type jsonLog struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

func toJson(c *Config) JsonConfig {
	return JsonConfig{
		DBPath:             c.DBPath,
		DeviceID:           c.DeviceID,
		Mirror:             c.Mirror,
		ServerEndpointAddr: c.ServerEndpointAddr,
		AccessToken:        c.AccessToken,
		AccountID:          c.AccountID,
		DatabaseDSN:        c.DatabaseDSN,
		SyncInterval:       timex.Duration{Duration: c.SyncInterval},
		RemoteTimeout:      timex.Duration{Duration: c.RemoteTimeout},
		RetryAttempts:      c.RetryAttempts,
		RetryBase:          timex.Duration{Duration: c.RetryBase},
		Log:                jsonLog(c.Log),
	}
}

// parseJson overlays cfg with the JSON file at path. An empty path loads
// nothing.
func parseJson(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	jc := toJson(cfg)
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.DBPath = jc.DBPath
	cfg.DeviceID = jc.DeviceID
	cfg.Mirror = jc.Mirror
	cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	cfg.AccessToken = jc.AccessToken
	cfg.AccountID = jc.AccountID
	cfg.DatabaseDSN = jc.DatabaseDSN
	cfg.SyncInterval = jc.SyncInterval.Duration
	cfg.RemoteTimeout = jc.RemoteTimeout.Duration
	cfg.RetryAttempts = jc.RetryAttempts
	cfg.RetryBase = jc.RetryBase.Duration
	cfg.Log = Log(jc.Log)
	return nil
}
