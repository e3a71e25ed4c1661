package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the origin tree and output directory layout.
type Paths struct {
	OriginDir   string `toml:"origin_dir"`
	OutputDir   string `toml:"output_dir"`
	TempDirName string `toml:"temp_dir_name"`
	ImageDir    string `toml:"image_dir"`
	BugdroidDir string `toml:"bugdroid_dir"`
	MediaDir    string `toml:"media_dir"`
	LogDir      string `toml:"log_dir"`
}

// Harvest contains fingerprinting, classification, and concurrency settings.
type Harvest struct {
	UseHardlinks      bool     `toml:"use_hardlinks"`
	PartialHashKiB    int      `toml:"partial_hash_kib"`
	FullHashLimitMiB  int      `toml:"full_hash_limit_mib"`
	ExtractWorkers    int      `toml:"extract_workers"`
	ScanWorkers       int      `toml:"scan_workers"`
	ParallelScan      bool     `toml:"parallel_scan"`
	ArchiveExtensions []string `toml:"archive_extensions"`
	ImageExtensions   []string `toml:"image_extensions"`
	MediaExtensions   []string `toml:"media_extensions"`
	BugdroidKeywords  []string `toml:"bugdroid_keywords"`
	// KeywordScope selects what bugdroid keywords are matched against:
	// "path" (path relative to the scanned root) or "name" (base name only).
	KeywordScope string `toml:"keyword_scope"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for apkharvest.
//
// Configuration sections:
//   - Paths: origin tree, output root, and category directory names
//   - Harvest: hashing windows, worker pools, extension and keyword rules
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Harvest Harvest `toml:"harvest"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// TempRoot returns the absolute path of the temporary extraction root.
func (c *Config) TempRoot() string {
	return filepath.Join(c.Paths.OriginDir, c.Paths.TempDirName)
}

// ImageOutputDir returns the absolute directory for non-bugdroid images.
func (c *Config) ImageOutputDir() string {
	return filepath.Join(c.Paths.OutputDir, c.Paths.ImageDir)
}

// BugdroidOutputDir returns the absolute directory for bugdroid images.
func (c *Config) BugdroidOutputDir() string {
	return filepath.Join(c.Paths.OutputDir, c.Paths.BugdroidDir)
}

// MediaOutputDir returns the absolute directory for media files.
func (c *Config) MediaOutputDir() string {
	return filepath.Join(c.Paths.OutputDir, c.Paths.MediaDir)
}

// PartialHashBytes returns the quick fingerprint window size in bytes.
func (c *Config) PartialHashBytes() int64 {
	return int64(c.Harvest.PartialHashKiB) * 1024
}

// FullHashLimitBytes returns the size above which the quick fingerprint also
// samples the file tail.
func (c *Config) FullHashLimitBytes() int64 {
	return int64(c.Harvest.FullHashLimitMiB) * 1024 * 1024
}

// EnsureDirectories creates the output root and every category directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.ImageOutputDir(), c.BugdroidOutputDir(), c.MediaOutputDir()}
	if strings.TrimSpace(c.Paths.LogDir) != "" {
		dirs = append(dirs, c.Paths.LogDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// DefaultWorkers returns min(8, NumCPU), the pool size used when a worker
// count is left at zero.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n <= 0 {
		n = 4
	}
	return min(n, maxDefaultWorkers)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
