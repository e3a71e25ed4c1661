package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"apkharvest/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check that applies to cfg.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckOrigin(cfg.Paths.OriginDir)}
	if filepath.Clean(cfg.Paths.OutputDir) != filepath.Clean(cfg.Paths.OriginDir) {
		results = append(results, CheckWritable("Output directory", cfg.Paths.OutputDir))
	}
	if strings.TrimSpace(cfg.Paths.LogDir) != "" {
		results = append(results, CheckWritable("Log directory", cfg.Paths.LogDir))
	}
	return results
}

// Err folds failed results into a single error, or nil when all passed.
func Err(results []Result) error {
	var errs []error
	for _, result := range results {
		if !result.Passed {
			errs = append(errs, fmt.Errorf("%s: %s", result.Name, result.Detail))
		}
	}
	return errors.Join(errs...)
}

// CheckOrigin verifies that the origin tree exists and is readable and writable.
func CheckOrigin(path string) Result {
	const name = "Origin directory"

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckWritable verifies that path, or its nearest existing ancestor when path
// does not exist yet, is a writable directory.
func CheckWritable(name, path string) Result {
	target := filepath.Clean(path)
	for {
		info, err := os.Stat(target)
		if err == nil {
			if !info.IsDir() {
				return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s is not a directory)", path, target)}
			}
			break
		}
		if !os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
		}
		parent := filepath.Dir(target)
		if parent == target {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: no existing ancestor)", path)}
		}
		target = parent
	}

	if err := unix.Access(target, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s not writable: %v)", path, target, err)}
	}
	if target != filepath.Clean(path) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created under %s)", path, target)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (writable)", path)}
}
