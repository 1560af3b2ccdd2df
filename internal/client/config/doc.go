// Package config loads runtime configuration for the clipkeeper device CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-d string   local database path
//	-m string   mirror backend: memory, grpc or postgres
//	-a string   address:port of the mirror gRPC endpoint
//	-t string   access token for the gRPC mirror
//	-u string   account id (postgres mirror)
//	-p string   PostgreSQL DSN of the postgres mirror
//	-i int      sync interval (seconds)
//	-l string   log level
//
// # JSON schema
//
// Durations use timex.Duration, so "30s" and integer nanoseconds both work:
//
//	{
//	  "db_path": "clipkeeper.db",
//	  "mirror": "grpc",
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "access_token": "...",
//	  "sync_interval": "30s",
//	  "remote_timeout": "10s",
//	  "retry_attempts": 3,
//	  "log": {"level": "info", "format": "json"}
//	}
//
// Keys absent from the file keep their default values.
package config
