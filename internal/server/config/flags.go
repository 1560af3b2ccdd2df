package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/flagx"
)

var serverFlags = []string{"-a", "-k", "-d", "-s", "-t", "-u", "-p", "-b", "-g", "-e", "-l"}

// FlagNames lists every flag LoadConfig consumes, including the config file
// selectors.
var FlagNames = append(append([]string{}, serverFlags...), "-c", "-config", "--config")

// stringFlags binds the plain string options to their Config fields.
func stringFlags(c *Config) []struct {
	name, usage string
	dst         *string
} {
	return []struct {
		name, usage string
		dst         *string
	}{
		{"a", "gRPC listen address", &c.EndpointAddrGRPC},
		{"k", "mirror backend: memory, postgres or s3", &c.Backend},
		{"d", "PostgreSQL DSN", &c.DatabaseDSN},
		{"s", "JWT signing key", &c.SecretKey},
		{"u", "S3 access key", &c.S3RootUser},
		{"p", "S3 secret key", &c.S3RootPassword},
		{"b", "S3 bucket", &c.S3Bucket},
		{"g", "S3 region", &c.S3Region},
		{"e", "S3 endpoint override", &c.S3BaseEndpoint},
		{"l", "log level", &c.LogLevel},
	}
}

// parseFlags overlays command-line flags on c. Token validity (-t) is given
// in whole minutes.
func parseFlags(c *Config, args []string) error {
	fs := flag.NewFlagSet("mirrord", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	for _, f := range stringFlags(c) {
		fs.StringVar(f.dst, f.name, *f.dst, f.usage)
	}
	fs.Func("t", "access token validity, minutes", func(v string) error {
		m, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.AccessTokenValidityDuration = time.Duration(m) * time.Minute
		return nil
	})

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}
