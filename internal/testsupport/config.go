package testsupport

import (
	"path/filepath"
	"testing"

	"apkharvest/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// WithOutputDir places the category directories under dir instead of the origin.
func WithOutputDir(dir string) ConfigOption {
	return func(c *config.Config) { c.Paths.OutputDir = dir }
}

// WithWorkers sets both pool sizes.
func WithWorkers(n int) ConfigOption {
	return func(c *config.Config) {
		c.Harvest.ScanWorkers = n
		c.Harvest.ExtractWorkers = n
	}
}

// WithHardlinks toggles hardlink materialization.
func WithHardlinks(enabled bool) ConfigOption {
	return func(c *config.Config) { c.Harvest.UseHardlinks = enabled }
}

// WithParallelScan toggles the file-scan worker pool.
func WithParallelScan(enabled bool) ConfigOption {
	return func(c *config.Config) { c.Harvest.ParallelScan = enabled }
}

// NewConfig produces a normalized config whose origin is a fresh temp
// directory, with any provided options applied before normalization.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.OriginDir = filepath.Join(t.TempDir(), "origin")
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	return &cfg
}
