package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given files or directories on top of
	// Default. The result is not validated.
	Load(ctx context.Context, paths ...string) (*Config, error)
}
