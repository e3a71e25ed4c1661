package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"apkharvest/internal/classify"
	"apkharvest/internal/dedup"
	"apkharvest/internal/fileutil"
	"apkharvest/internal/fingerprint"
	"apkharvest/internal/imageinfo"
	"apkharvest/internal/logging"
	"apkharvest/internal/scanner"
)

// Outcome is what Handle did with one file.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeUnreadable
	OutcomeDuplicate
	OutcomeMaterialized
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnreadable:
		return "unreadable"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeMaterialized:
		return "materialized"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// HandlerConfig wires a Handler to its collaborators for one run.
type HandlerConfig struct {
	Classifier   *classify.Classifier
	Registry     *dedup.Registry
	Fingerprint  fingerprint.Options
	ImageDir     string
	BugdroidDir  string
	MediaDir     string
	UseHardlinks bool
	Logger       *slog.Logger
}

// categoryCounters are updated concurrently by scan workers.
type categoryCounters struct {
	linked     atomic.Int64
	copied     atomic.Int64
	duplicates atomic.Int64
	bytes      atomic.Int64
}

type outputDir struct {
	path string
	once sync.Once
	err  error
}

// Handler classifies, deduplicates, and materializes single files. It is safe
// for concurrent use; the registry is its only shared decision state.
type Handler struct {
	classifier *classify.Classifier
	registry   *dedup.Registry
	fpOpts     fingerprint.Options
	useLinks   bool
	logger     *slog.Logger

	dirs map[classify.Category]*outputDir

	namesMu sync.Mutex
	names   map[string]struct{}

	counters   map[classify.Category]*categoryCounters
	ignored    atomic.Int64
	unreadable atomic.Int64
	failed     atomic.Int64
}

// NewHandler returns a Handler writing into the configured category directories.
func NewHandler(cfg HandlerConfig) *Handler {
	registry := cfg.Registry
	if registry == nil {
		registry = dedup.NewRegistry()
	}
	return &Handler{
		classifier: cfg.Classifier,
		registry:   registry,
		fpOpts:     cfg.Fingerprint,
		useLinks:   cfg.UseHardlinks,
		logger:     logging.NewComponentLogger(cfg.Logger, "handler"),
		dirs: map[classify.Category]*outputDir{
			classify.Image:         {path: cfg.ImageDir},
			classify.BugdroidImage: {path: cfg.BugdroidDir},
			classify.Media:         {path: cfg.MediaDir},
		},
		names: make(map[string]struct{}),
		counters: map[classify.Category]*categoryCounters{
			classify.Image:         {},
			classify.BugdroidImage: {},
			classify.Media:         {},
		},
	}
}

// EnsureOutputDirs creates every category directory.
func (h *Handler) EnsureOutputDirs() error {
	var errs []error
	for _, category := range []classify.Category{classify.Image, classify.BugdroidImage, classify.Media} {
		if err := h.ensureDir(category); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) ensureDir(category classify.Category) error {
	dir, ok := h.dirs[category]
	if !ok {
		return fmt.Errorf("no output directory for category %s", category)
	}
	dir.once.Do(func() {
		if strings.TrimSpace(dir.path) == "" {
			dir.err = fmt.Errorf("%s output directory is not configured", category)
			return
		}
		if err := os.MkdirAll(dir.path, 0o755); err != nil {
			dir.err = fmt.Errorf("create %s output directory: %w", category, err)
		}
	})
	return dir.err
}

// Visit adapts Handle to scanner.Visitor.
func (h *Handler) Visit(ctx context.Context, file scanner.File) {
	h.Handle(ctx, file)
}

// Handle processes one enumerated file. Every failure is logged and counted
// here; nothing is returned to the scan.
func (h *Handler) Handle(ctx context.Context, file scanner.File) Outcome {
	if ctx.Err() != nil {
		return OutcomeCancelled
	}

	name := filepath.Base(file.Path)
	category := h.classifier.Classify(name, file.RelPath)
	if category == classify.Ignored {
		h.ignored.Add(1)
		return OutcomeIgnored
	}

	realPath, err := filepath.EvalSymlinks(file.Path)
	if err != nil {
		return h.unreadableFile(file, err)
	}

	fp, err := fingerprint.Compute(realPath, h.fpOpts)
	if err != nil {
		return h.unreadableFile(file, err)
	}

	full := dedup.Known(fp.Full)
	if fp.Full == "" {
		full = func() (string, error) { return fingerprint.Full(realPath) }
	}
	verdict, err := h.registry.TryAdmit(fp.Quick, full)
	if err != nil {
		return h.unreadableFile(file, err)
	}
	counters := h.counters[category]
	if verdict == dedup.Duplicate {
		counters.duplicates.Add(1)
		h.logger.Debug("duplicate skipped",
			logging.String("path", file.Path),
			logging.String("label", file.Label),
			logging.String("category", category.String()),
		)
		return OutcomeDuplicate
	}

	if err := h.ensureDir(category); err != nil {
		return h.failedFile(file, err)
	}
	tag := ""
	if category.IsImage() {
		tag = imageinfo.ResolutionTag(realPath)
	}
	dest := h.claim(filepath.Join(h.dirs[category].path, DestinationName(category, file.Label, name, tag)))

	method, err := fileutil.Materialize(realPath, dest, h.useLinks)
	if err != nil {
		return h.failedFile(file, err)
	}
	switch method {
	case fileutil.MethodLinked:
		counters.linked.Add(1)
	default:
		counters.copied.Add(1)
	}
	counters.bytes.Add(fp.Size)
	h.logger.Debug("file materialized",
		logging.String("path", file.Path),
		logging.String("dest", dest),
		logging.String("method", method.String()),
		logging.String("category", category.String()),
	)
	return OutcomeMaterialized
}

// DestinationName builds the output file name: "{label}_{tag}_{name}" for
// images and "{label}_{name}" for media. An empty image tag becomes "unknown".
func DestinationName(category classify.Category, label, name, tag string) string {
	if !category.IsImage() {
		return label + "_" + name
	}
	if tag == "" {
		tag = imageinfo.UnknownTag
	}
	return label + "_" + tag + "_" + name
}

// claim reserves dest for this run. Distinct content that maps to an already
// claimed name gets a numeric suffix before the extension.
func (h *Handler) claim(dest string) string {
	h.namesMu.Lock()
	defer h.namesMu.Unlock()

	candidate := dest
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	for i := 2; ; i++ {
		if _, taken := h.names[candidate]; !taken {
			break
		}
		candidate = stem + "-" + strconv.Itoa(i) + ext
	}
	h.names[candidate] = struct{}{}
	return candidate
}

func (h *Handler) unreadableFile(file scanner.File, err error) Outcome {
	h.unreadable.Add(1)
	logging.WarnWithContext(h.logger, "skipping unreadable file", "file_unreadable",
		logging.String("path", file.Path),
		logging.String("label", file.Label),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check file permissions"),
	)
	return OutcomeUnreadable
}

func (h *Handler) failedFile(file scanner.File, err error) Outcome {
	h.failed.Add(1)
	logging.WarnWithContext(h.logger, "materialization failed", "file_materialize_failed",
		logging.String("path", file.Path),
		logging.String("label", file.Label),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check free space and output directory permissions"),
		logging.String(logging.FieldImpact, "file missing from output"),
	)
	return OutcomeFailed
}

// CategoryStats counts materialized files for one output category.
type CategoryStats struct {
	Linked     int64
	Copied     int64
	Duplicates int64
	Bytes      int64
}

// Materialized returns the number of files written for the category.
func (s CategoryStats) Materialized() int64 {
	return s.Linked + s.Copied
}

// HandlerStats is a snapshot of handler counters.
type HandlerStats struct {
	Categories map[classify.Category]CategoryStats
	Ignored    int64
	Unreadable int64
	Failed     int64
}

// Stats returns a snapshot of handler counters.
func (h *Handler) Stats() HandlerStats {
	stats := HandlerStats{
		Categories: make(map[classify.Category]CategoryStats, len(h.counters)),
		Ignored:    h.ignored.Load(),
		Unreadable: h.unreadable.Load(),
		Failed:     h.failed.Load(),
	}
	for category, c := range h.counters {
		stats.Categories[category] = CategoryStats{
			Linked:     c.linked.Load(),
			Copied:     c.copied.Load(),
			Duplicates: c.duplicates.Load(),
			Bytes:      c.bytes.Load(),
		}
	}
	return stats
}
