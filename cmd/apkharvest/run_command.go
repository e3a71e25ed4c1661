package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"apkharvest/internal/config"
	"apkharvest/internal/harvest"
	"apkharvest/internal/logging"
)

type runFlags struct {
	origin      string
	output      string
	workers     int
	sequential  bool
	noHardlinks bool
	logLevel    string
	logFormat   string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest images and media from the origin tree and its archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := applyRunFlags(base, flags, cmd.Flags().Changed)
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			summary, err := harvest.Run(cmd.Context(), harvest.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderSummary(summary, shouldColorize(out)))
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.origin, "origin", "", "Directory to harvest (overrides paths.origin_dir)")
	cmd.Flags().StringVar(&flags.output, "output", "", "Root for output directories (overrides paths.output_dir)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "Worker count for extraction and scanning (0 = min(8, CPUs))")
	cmd.Flags().BoolVar(&flags.sequential, "sequential", false, "Scan files on a single goroutine")
	cmd.Flags().BoolVar(&flags.noHardlinks, "no-hardlinks", false, "Always copy instead of hardlinking")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "", "Log format (console, json)")
	return cmd
}

// applyRunFlags returns a copy of base with explicitly set flags applied,
// normalized and validated.
func applyRunFlags(base *config.Config, flags runFlags, changed func(string) bool) (*config.Config, error) {
	cfg := *base

	if changed("origin") {
		// An output root that only followed the old origin follows the new one.
		if cfg.Paths.OutputDir == cfg.Paths.OriginDir && !changed("output") {
			cfg.Paths.OutputDir = ""
		}
		cfg.Paths.OriginDir = strings.TrimSpace(flags.origin)
	}
	if changed("output") {
		cfg.Paths.OutputDir = strings.TrimSpace(flags.output)
	}
	if changed("workers") {
		if flags.workers < 0 {
			return nil, errors.New("--workers must be >= 0")
		}
		cfg.Harvest.ExtractWorkers = flags.workers
		cfg.Harvest.ScanWorkers = flags.workers
	}
	if flags.sequential {
		cfg.Harvest.ParallelScan = false
	}
	if flags.noHardlinks {
		cfg.Harvest.UseHardlinks = false
	}
	if changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if changed("log-format") {
		cfg.Logging.Format = flags.logFormat
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
