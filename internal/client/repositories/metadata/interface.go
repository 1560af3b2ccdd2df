// Package metadata stores small device-level values in the local database:
// the device id and the per-kind sync checkpoints.
package metadata

import "context"

// Repository is a string key/value store.
type Repository interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set inserts or replaces the value of key.
	Set(ctx context.Context, key, value string) error
	// List returns every pair whose key starts with prefix.
	List(ctx context.Context, prefix string) (map[string]string, error)
}
