package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/flagx"
)

// FlagNames lists every flag LoadConfig consumes, including the config file
// selectors. Callers sharing argv with other parsers strip these first.
var FlagNames = []string{"-d", "-m", "-a", "-t", "-u", "-p", "-i", "-l", "-c", "-config", "--config"}

// parseFlags overlays cfg with the config flags found in args.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-d", "-m", "-a", "-t", "-u", "-p", "-i", "-l"})

	fs := flag.NewFlagSet("clipkeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "local database path")
	fs.StringVar(&cfg.Mirror, "m", cfg.Mirror, "mirror backend (memory, grpc, postgres)")
	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port of the mirror server")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.AccountID, "u", cfg.AccountID, "account id")
	fs.StringVar(&cfg.DatabaseDSN, "p", cfg.DatabaseDSN, "PostgreSQL DSN")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")
	fs.StringVar(&cfg.Log.Level, "l", cfg.Log.Level, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
	return nil
}
