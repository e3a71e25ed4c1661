package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"apkharvest/internal/archive"
	"apkharvest/internal/classify"
	"apkharvest/internal/config"
	"apkharvest/internal/dedup"
	"apkharvest/internal/fingerprint"
	"apkharvest/internal/logging"
	"apkharvest/internal/preflight"
	"apkharvest/internal/scanner"
	"apkharvest/internal/staging"
)

const (
	// LooseLabel is the source label for files found directly under the origin.
	LooseLabel = "loose"
	// LockFileName guards the origin and output trees against concurrent runs.
	LockFileName = ".apkharvest.lock"
)

// ErrLocked is returned when another run holds the lock on the same tree.
var ErrLocked = errors.New("another harvest is running")

// Options configures a harvest run.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
}

// Summary reports what a run did.
type Summary struct {
	RunID    string
	Started  time.Time
	Duration time.Duration

	LooseFiles        int64
	ArchivesFound     int
	ArchivesExtracted int
	FailedArchives    []string
	ExtractedFiles    int64

	Files    HandlerStats
	Registry dedup.Stats

	ImageDir    string
	BugdroidDir string
	MediaDir    string
}

// Run executes one harvest. Only setup failures and cancellation are returned;
// the temporary extraction root is removed on every path out once created.
func Run(ctx context.Context, opts Options) (summary Summary, err error) {
	cfg := opts.Config
	if cfg == nil {
		return summary, errors.New("harvest: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	summary.RunID = uuid.NewString()
	summary.Started = time.Now()
	summary.ImageDir = cfg.ImageOutputDir()
	summary.BugdroidDir = cfg.BugdroidOutputDir()
	summary.MediaDir = cfg.MediaOutputDir()
	defer func() { summary.Duration = time.Since(summary.Started) }()

	logger := opts.Logger.With(logging.String(logging.FieldRunID, summary.RunID))
	runLogger := logging.NewComponentLogger(logger, "harvest")

	if err := preflight.Err(preflight.RunAll(cfg)); err != nil {
		return summary, fmt.Errorf("preflight: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return summary, fmt.Errorf("setup: %w", err)
	}

	unlock, err := acquireLocks(cfg.Paths.OriginDir, cfg.Paths.OutputDir)
	if err != nil {
		return summary, err
	}
	defer unlock()

	tempRoot := cfg.TempRoot()
	staging.CleanStale(ctx, tempRoot, 0, runLogger)
	if err := staging.Prepare(tempRoot); err != nil {
		return summary, fmt.Errorf("setup: %w", err)
	}
	defer func() {
		if rmErr := staging.Remove(tempRoot); rmErr != nil {
			logging.WarnWithContext(runLogger, "temporary extraction folder not removed", "staging_cleanup_failed",
				logging.String("path", tempRoot),
				logging.Error(rmErr),
				logging.String(logging.FieldErrorHint, "remove the directory manually"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			return
		}
		runLogger.Info("temporary extraction folder deleted", logging.String("path", tempRoot))
	}()

	registry := dedup.NewRegistry()
	handler := NewHandler(HandlerConfig{
		Classifier: classify.New(classify.Rules{
			ImageExtensions: cfg.Harvest.ImageExtensions,
			MediaExtensions: cfg.Harvest.MediaExtensions,
			Keywords:        cfg.Harvest.BugdroidKeywords,
			Scope:           classify.Scope(cfg.Harvest.KeywordScope),
		}),
		Registry: registry,
		Fingerprint: fingerprint.Options{
			PartialSize:   cfg.PartialHashBytes(),
			TailThreshold: cfg.FullHashLimitBytes(),
		},
		ImageDir:     summary.ImageDir,
		BugdroidDir:  summary.BugdroidDir,
		MediaDir:     summary.MediaDir,
		UseHardlinks: cfg.Harvest.UseHardlinks,
		Logger:       logger,
	})
	if err := handler.EnsureOutputDirs(); err != nil {
		return summary, fmt.Errorf("setup: %w", err)
	}
	defer func() {
		summary.Files = handler.Stats()
		summary.Registry = registry.Stats()
	}()

	scanOpts := scanner.Options{
		Parallel: cfg.Harvest.ParallelScan,
		Workers:  cfg.Harvest.ScanWorkers,
		Logger:   logger,
	}

	runLogger.Info("scanning loose images and media",
		logging.String("origin", cfg.Paths.OriginDir),
		logging.Bool("parallel", scanOpts.Parallel),
		logging.Int("workers", scanOpts.Workers),
	)
	looseOpts := scanOpts
	looseOpts.Exclude = scanner.AnyOf(
		scanner.ExcludeSymlinks,
		scanner.ExcludeUnder(tempRoot, summary.ImageDir, summary.BugdroidDir, summary.MediaDir),
	)
	loose, err := scanner.Scan(ctx, cfg.Paths.OriginDir, LooseLabel, handler.Visit, looseOpts)
	summary.LooseFiles = loose.Files
	if err != nil {
		return summary, fmt.Errorf("scan origin: %w", err)
	}

	archives, err := archive.Discover(ctx, cfg.Paths.OriginDir, cfg.Harvest.ArchiveExtensions,
		scanner.AnyOf(scanner.ExcludeSymlinks, scanner.ExcludeUnder(tempRoot)), logger)
	if err != nil {
		return summary, err
	}
	summary.ArchivesFound = len(archives)
	runLogger.Info("archives discovered", logging.Int("count", len(archives)))
	if len(archives) == 0 {
		logDone(runLogger, summary)
		return summary, nil
	}

	runLogger.Info("extracting archives", logging.Int("workers", cfg.Harvest.ExtractWorkers))
	extractor := archive.NewExtractor(tempRoot, logger)
	results := extractor.ExtractAll(ctx, archives, cfg.Harvest.ExtractWorkers)
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	for _, result := range results {
		if !result.OK() {
			summary.FailedArchives = append(summary.FailedArchives, result.Archive)
			continue
		}
		summary.ArchivesExtracted++
		scanned, err := scanner.Scan(ctx, result.Dir, result.Label(), handler.Visit, scanOpts)
		summary.ExtractedFiles += scanned.Files
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			logging.WarnWithContext(runLogger, "extracted tree scan failed", "extracted_scan_failed",
				logging.String("archive", result.Archive),
				logging.String("dir", result.Dir),
				logging.Error(err),
				logging.String(logging.FieldImpact, "archive contents partially harvested"),
			)
		}
	}

	logDone(runLogger, summary)
	return summary, nil
}

func logDone(logger *slog.Logger, summary Summary) {
	logger.Info("harvest complete",
		logging.Int("archives_extracted", summary.ArchivesExtracted),
		logging.Int("archives_failed", len(summary.FailedArchives)),
		logging.String("images", summary.ImageDir),
		logging.String("bugdroid_images", summary.BugdroidDir),
		logging.String("media", summary.MediaDir),
	)
}

// acquireLocks takes a non-blocking file lock in each distinct directory and
// returns a function releasing all of them. Release deletes each lock file
// before unlocking it.
func acquireLocks(dirs ...string) (func(), error) {
	var held []*flock.Flock
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = os.Remove(held[i].Path())
			_ = held[i].Unlock()
		}
	}

	seen := make(map[string]struct{}, len(dirs))
	for _, dir := range dirs {
		dir = filepath.Clean(dir)
		if _, dup := seen[dir]; dup {
			continue
		}
		seen[dir] = struct{}{}

		path := filepath.Join(dir, LockFileName)
		lock := flock.New(path)
		locked, err := lock.TryLock()
		if err != nil {
			release()
			return nil, fmt.Errorf("acquire run lock %s: %w", path, err)
		}
		if !locked {
			release()
			return nil, fmt.Errorf("%w: lock held on %s", ErrLocked, path)
		}
		if !lockStillLinked(lock) {
			// Another run removed the file between our open and lock.
			_ = lock.Unlock()
			release()
			return nil, fmt.Errorf("%w: lock released concurrently on %s", ErrLocked, path)
		}
		held = append(held, lock)
	}
	return release, nil
}

func lockStillLinked(lock *flock.Flock) bool {
	held, err := lock.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(lock.Path())
	if err != nil {
		return false
	}
	return os.SameFile(held, current)
}
