package config

import (
	"fmt"
	"os"
	"strings"
)

// Normalize expands paths, fills unset values with defaults, and canonicalizes
// extension and keyword lists. Load calls it; callers that mutate a Config
// after loading (for example from CLI flags) should call it again.
func (c *Config) Normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeHarvest()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OriginDir) == "" {
		if value, ok := os.LookupEnv(originEnvVar); ok && strings.TrimSpace(value) != "" {
			c.Paths.OriginDir = strings.TrimSpace(value)
		} else {
			c.Paths.OriginDir = defaultOriginDir
		}
	}
	if c.Paths.OriginDir, err = expandPath(c.Paths.OriginDir); err != nil {
		return fmt.Errorf("paths.origin_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = c.Paths.OriginDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.TempDirName = defaultIfBlank(c.Paths.TempDirName, defaultTempDirName)
	c.Paths.ImageDir = defaultIfBlank(c.Paths.ImageDir, defaultImageDir)
	c.Paths.BugdroidDir = defaultIfBlank(c.Paths.BugdroidDir, defaultBugdroidDir)
	c.Paths.MediaDir = defaultIfBlank(c.Paths.MediaDir, defaultMediaDir)
	return nil
}

func (c *Config) normalizeHarvest() {
	if c.Harvest.PartialHashKiB <= 0 {
		c.Harvest.PartialHashKiB = defaultPartialHashKiB
	}
	if c.Harvest.FullHashLimitMiB <= 0 {
		c.Harvest.FullHashLimitMiB = defaultFullHashLimitMiB
	}
	if c.Harvest.ExtractWorkers <= 0 {
		c.Harvest.ExtractWorkers = DefaultWorkers()
	}
	if c.Harvest.ScanWorkers <= 0 {
		c.Harvest.ScanWorkers = DefaultWorkers()
	}
	c.Harvest.ArchiveExtensions = normalizeExtensions(c.Harvest.ArchiveExtensions, defaultArchiveExtensions)
	c.Harvest.ImageExtensions = normalizeExtensions(c.Harvest.ImageExtensions, defaultImageExtensions)
	c.Harvest.MediaExtensions = normalizeExtensions(c.Harvest.MediaExtensions, defaultMediaExtensions)
	c.Harvest.BugdroidKeywords = normalizeList(c.Harvest.BugdroidKeywords, nil, func(s string) string { return s })
	c.Harvest.KeywordScope = strings.ToLower(strings.TrimSpace(c.Harvest.KeywordScope))
	if c.Harvest.KeywordScope == "" {
		c.Harvest.KeywordScope = KeywordScopePath
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeExtensions(values, fallback []string) []string {
	return normalizeList(values, fallback, func(s string) string {
		if !strings.HasPrefix(s, ".") {
			return "." + s
		}
		return s
	})
}

// normalizeList lower-cases, trims, and de-duplicates values, preserving order.
// An empty result falls back to a copy of fallback.
func normalizeList(values, fallback []string, shape func(string) string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		normalized = shape(normalized)
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 && len(fallback) > 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func defaultIfBlank(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
