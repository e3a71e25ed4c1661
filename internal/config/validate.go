package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateHarvest(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.OriginDir == "" {
		return errors.New("paths.origin_dir must be set")
	}
	names := map[string]string{
		"paths.temp_dir_name": c.Paths.TempDirName,
		"paths.image_dir":     c.Paths.ImageDir,
		"paths.bugdroid_dir":  c.Paths.BugdroidDir,
		"paths.media_dir":     c.Paths.MediaDir,
	}
	seen := make(map[string]string, len(names))
	for key, name := range names {
		if name != filepath.Base(name) || name == "." || name == ".." {
			return fmt.Errorf("%s must be a plain directory name, got %q", key, name)
		}
		if other, ok := seen[name]; ok {
			return fmt.Errorf("%s and %s must differ (both %q)", key, other, name)
		}
		seen[name] = key
	}
	return nil
}

func (c *Config) validateHarvest() error {
	if err := ensurePositiveMap(map[string]int{
		"harvest.partial_hash_kib":    c.Harvest.PartialHashKiB,
		"harvest.full_hash_limit_mib": c.Harvest.FullHashLimitMiB,
		"harvest.extract_workers":     c.Harvest.ExtractWorkers,
		"harvest.scan_workers":        c.Harvest.ScanWorkers,
	}); err != nil {
		return err
	}
	if c.PartialHashBytes()*2 > c.FullHashLimitBytes() {
		return errors.New("harvest.full_hash_limit_mib must be at least twice harvest.partial_hash_kib")
	}
	if len(c.Harvest.ArchiveExtensions) == 0 {
		return errors.New("harvest.archive_extensions must not be empty")
	}
	for _, ext := range c.Harvest.ImageExtensions {
		for _, media := range c.Harvest.MediaExtensions {
			if ext == media {
				return fmt.Errorf("extension %q cannot be both an image and a media extension", ext)
			}
		}
	}
	switch c.Harvest.KeywordScope {
	case KeywordScopePath, KeywordScopeName:
	default:
		return fmt.Errorf("harvest.keyword_scope must be %q or %q, got %q", KeywordScopePath, KeywordScopeName, c.Harvest.KeywordScope)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
