package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"apkharvest/internal/logging"
	"apkharvest/internal/scanner"
)

// ErrInvalidArchive marks archives that cannot be read as zip containers or
// that contain unsafe entry names.
var ErrInvalidArchive = errors.New("invalid archive")

// Result is the outcome of extracting one archive.
type Result struct {
	Archive string
	// Dir is the extracted tree; empty when extraction failed.
	Dir     string
	Entries int
	Err     error
}

// OK reports whether the archive was extracted.
func (r Result) OK() bool {
	return r.Err == nil && r.Dir != ""
}

// Label returns the source label for files in the extracted tree.
func (r Result) Label() string {
	return filepath.Base(r.Dir)
}

// Discover returns every archive below root whose extension is in exts
// (case-insensitive), skipping anything exclude rejects. The result is sorted.
func Discover(ctx context.Context, root string, exts []string, exclude scanner.Exclude, logger *slog.Logger) ([]string, error) {
	want := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		want[strings.ToLower(ext)] = struct{}{}
	}

	var found []string
	collect := func(_ context.Context, file scanner.File) {
		if _, ok := want[strings.ToLower(filepath.Ext(file.Path))]; ok {
			found = append(found, file.Path)
		}
	}
	if _, err := scanner.Scan(ctx, root, "", collect, scanner.Options{Exclude: exclude, Logger: logger}); err != nil {
		return nil, fmt.Errorf("discover archives: %w", err)
	}
	sort.Strings(found)
	return found, nil
}

// Extractor unpacks archives below TempRoot. It is safe for concurrent use.
type Extractor struct {
	tempRoot string
	logger   *slog.Logger

	mu       sync.Mutex
	reserved map[string]struct{}
	planned  map[string][]string
}

// NewExtractor returns an Extractor writing below tempRoot, which must exist.
func NewExtractor(tempRoot string, logger *slog.Logger) *Extractor {
	return &Extractor{
		tempRoot: tempRoot,
		logger:   logging.NewComponentLogger(logger, "extractor"),
		reserved: make(map[string]struct{}),
		planned:  make(map[string][]string),
	}
}

// reserveLocked claims a unique destination directory name derived from the
// archive's base name without extension. e.mu must be held.
func (e *Extractor) reserveLocked(archivePath string) string {
	base := filepath.Base(archivePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}

	name := stem
	for i := 2; ; i++ {
		if _, taken := e.reserved[name]; !taken {
			break
		}
		name = stem + "-" + strconv.Itoa(i)
	}
	e.reserved[name] = struct{}{}
	return filepath.Join(e.tempRoot, name)
}

// plan reserves destinations for archives in order, so same-stem suffixes
// follow input order rather than worker scheduling.
func (e *Extractor) plan(archives []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, archivePath := range archives {
		e.planned[archivePath] = append(e.planned[archivePath], e.reserveLocked(archivePath))
	}
}

// destination returns the planned directory for archivePath, reserving a new
// one when none was planned.
func (e *Extractor) destination(archivePath string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if queue := e.planned[archivePath]; len(queue) > 0 {
		dest := queue[0]
		if len(queue) == 1 {
			delete(e.planned, archivePath)
		} else {
			e.planned[archivePath] = queue[1:]
		}
		return dest
	}
	return e.reserveLocked(archivePath)
}

// Extract unpacks archivePath into its own directory below the temp root.
func (e *Extractor) Extract(ctx context.Context, archivePath string) Result {
	return e.extractTo(ctx, archivePath, e.destination(archivePath))
}

// ExtractAll extracts every archive using at most workers concurrent
// extractions and returns one Result per input, in input order.
func (e *Extractor) ExtractAll(ctx context.Context, archives []string, workers int) []Result {
	e.plan(archives)

	results := make([]Result, len(archives))
	var group errgroup.Group
	group.SetLimit(max(workers, 1))
	for i, archivePath := range archives {
		group.Go(func() error {
			results[i] = e.Extract(ctx, archivePath)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (e *Extractor) extractTo(ctx context.Context, archivePath, dest string) Result {
	result := Result{Archive: archivePath}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	e.logger.Info("extracting archive", logging.String("archive", archivePath))
	entries, err := unzip(ctx, archivePath, dest)
	if err != nil {
		if rmErr := os.RemoveAll(dest); rmErr != nil {
			e.logger.Debug("remove partial extraction failed", logging.String("dir", dest), logging.Error(rmErr))
		}
		result.Err = err
		logging.WarnWithContext(e.logger, "archive extraction failed", "archive_extract_failed",
			logging.String("archive", archivePath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "verify the archive is a valid zip container"),
			logging.String(logging.FieldImpact, "archive contents not harvested"),
		)
		return result
	}

	result.Dir = dest
	result.Entries = entries
	e.logger.Debug("archive extracted",
		logging.String("archive", archivePath),
		logging.String("dir", dest),
		logging.Int("entries", entries),
	)
	return result
}

func unzip(ctx context.Context, archivePath, dest string) (int, error) {
	reader, err := zip.OpenReader(archivePath)
	if errors.Is(err, zip.ErrInsecurePath) && reader != nil {
		// entryPath sanitizes each name below.
		err = nil
	}
	if err != nil {
		if isFilesystemError(err) {
			return 0, fmt.Errorf("open %s: %w", archivePath, err)
		}
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArchive, filepath.Base(archivePath), err)
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("create extraction directory: %w", err)
	}

	count := 0
	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		target, ok, err := entryPath(dest, entry.Name)
		if err != nil {
			return count, err
		}
		if !ok {
			continue
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return count, fmt.Errorf("create %s: %w", entry.Name, err)
			}
			continue
		}
		if err := writeEntry(entry, target); err != nil {
			if isFilesystemError(err) {
				return count, fmt.Errorf("extract %s: %w", entry.Name, err)
			}
			return count, fmt.Errorf("%w: %s: %v", ErrInvalidArchive, entry.Name, err)
		}
		count++
	}
	return count, nil
}

// isFilesystemError separates local I/O failures from malformed container data.
func isFilesystemError(err error) bool {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	return errors.As(err, &pathErr) || errors.As(err, &linkErr)
}

// entryPath maps an entry name to a path below dest. Leading separators and
// drive letters are dropped, and entries naming the root itself are skipped
// (ok is false). Names that still climb above dest after cleaning are rejected.
func entryPath(dest, name string) (target string, ok bool, err error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	if len(slashed) >= 2 && slashed[1] == ':' {
		slashed = slashed[2:]
	}
	cleaned := path.Clean(strings.TrimLeft(slashed, "/"))
	switch {
	case cleaned == ".":
		return "", false, nil
	case cleaned == ".." || strings.HasPrefix(cleaned, "../"):
		return "", false, fmt.Errorf("%w: unsafe entry name %q", ErrInvalidArchive, name)
	}
	return filepath.Join(dest, filepath.FromSlash(cleaned)), true, nil
}

func writeEntry(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if mod := entry.Modified; !mod.IsZero() {
		_ = os.Chtimes(target, mod, mod)
	}
	return nil
}
