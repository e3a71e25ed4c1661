// Package scanner enumerates regular files under a root and hands each one to
// a visitor, optionally across a bounded worker pool.
package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"apkharvest/internal/logging"
)

// File is one regular file found during a scan.
type File struct {
	// Path is the path as enumerated (not symlink-resolved).
	Path string
	// RelPath is Path relative to the scanned root.
	RelPath string
	// Label is the source label the scan was started with.
	Label string
}

// Visitor processes one file. It must be safe for concurrent use when the
// scan runs in parallel and must not retain errors past the file it handles.
type Visitor func(ctx context.Context, file File)

// Exclude reports whether path (a file or a directory) should be skipped.
// Excluded directories are not descended into.
type Exclude func(path string, d fs.DirEntry) bool

// ExcludeSymlinks skips symbolic links.
func ExcludeSymlinks(_ string, d fs.DirEntry) bool {
	return d.Type()&fs.ModeSymlink != 0
}

// ExcludeUnder skips dirs and everything below them.
func ExcludeUnder(dirs ...string) Exclude {
	cleaned := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir != "" {
			cleaned = append(cleaned, filepath.Clean(dir))
		}
	}
	return func(path string, _ fs.DirEntry) bool {
		path = filepath.Clean(path)
		for _, dir := range cleaned {
			if IsWithin(path, dir) {
				return true
			}
		}
		return false
	}
}

// AnyOf combines predicates; nil entries are ignored.
func AnyOf(excludes ...Exclude) Exclude {
	return func(path string, d fs.DirEntry) bool {
		for _, exclude := range excludes {
			if exclude != nil && exclude(path, d) {
				return true
			}
		}
		return false
	}
}

// IsWithin reports whether path equals dir or lies below it. Both must be clean.
func IsWithin(path, dir string) bool {
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
}

// Options controls a scan.
type Options struct {
	Parallel bool
	Workers  int
	Exclude  Exclude
	Logger   *slog.Logger
}

// Result summarizes a completed scan.
type Result struct {
	Files    int64
	Excluded int64
	Errors   int64
}

// Scan walks root and calls visit once for every regular file, including
// symlinks that resolve to regular files unless opts.Exclude rejects them.
// Unreadable entries are logged and skipped; only context cancellation or an
// unreadable root is returned as an error.
func Scan(ctx context.Context, root, label string, visit Visitor, opts Options) (Result, error) {
	logger := logging.NewComponentLogger(opts.Logger, "scanner")
	root = filepath.Clean(root)

	var result Result

	var group errgroup.Group
	workers := max(opts.Workers, 1)
	if opts.Parallel {
		group.SetLimit(workers)
	}

	dispatch := func(file File) {
		result.Files++
		if !opts.Parallel {
			visit(ctx, file)
			return
		}
		group.Go(func() error {
			if ctx.Err() == nil {
				visit(ctx, file)
			}
			return nil
		})
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			result.Errors++
			logging.WarnWithContext(logger, "skipping unreadable entry", "scan_entry_unreadable",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check file permissions"),
			)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path != root && opts.Exclude != nil && opts.Exclude(path, d) {
			result.Excluded++
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !isRegular(path, d) {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		dispatch(File{Path: path, RelPath: rel, Label: label})
		return nil
	})

	_ = group.Wait()

	if walkErr != nil {
		return result, walkErr
	}
	logger.Debug("scan complete",
		logging.String("root", root),
		logging.String("label", label),
		logging.Int64("files", result.Files),
		logging.Int64("excluded", result.Excluded),
	)
	return result, nil
}

func isRegular(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
