package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"apkharvest/internal/classify"
	"apkharvest/internal/harvest"
)

const (
	ansiReset = "\x1b[0m"
	ansiBlue  = "\x1b[34m"

	summaryLabelWidth = 20
	summaryIndent     = "  "
)

var summaryCategories = []classify.Category{classify.Image, classify.BugdroidImage, classify.Media}

func renderSummary(summary harvest.Summary, colorize bool) string {
	var b strings.Builder

	for _, line := range renderSectionHeader("Harvest Summary", colorize) {
		b.WriteString(line + "\n")
	}

	b.WriteString(renderCategoryTable(summary.Files))
	b.WriteString("\n")

	archives := fmt.Sprintf("%d found, %d extracted, %d failed",
		summary.ArchivesFound, summary.ArchivesExtracted, len(summary.FailedArchives))
	lines := [][2]string{
		{"Run ID", summary.RunID},
		{"Loose files", strconv.FormatInt(summary.LooseFiles, 10)},
		{"Archives", archives},
		{"Extracted files", strconv.FormatInt(summary.ExtractedFiles, 10)},
		{"Ignored", strconv.FormatInt(summary.Files.Ignored, 10)},
		{"Unreadable", strconv.FormatInt(summary.Files.Unreadable, 10)},
		{"Failed", strconv.FormatInt(summary.Files.Failed, 10)},
		{"Duration", summary.Duration.Round(time.Millisecond).String()},
		{"Images", summary.ImageDir},
		{"Bugdroid images", summary.BugdroidDir},
		{"Media", summary.MediaDir},
	}
	for _, line := range lines {
		fmt.Fprintf(&b, "%s%-*s %s\n", summaryIndent, summaryLabelWidth, line[0]+":", line[1])
	}
	for _, failed := range summary.FailedArchives {
		fmt.Fprintf(&b, "%s%-*s %s\n", summaryIndent, summaryLabelWidth, "Skipped archive:", failed)
	}
	return b.String()
}

// renderCategoryTable lists per-category placement counts with a totals footer.
func renderCategoryTable(stats harvest.HandlerStats) string {
	const sizeColumn = 6

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"Category", "Written", "Linked", "Copied", "Duplicates", "Size"})

	var total harvest.CategoryStats
	for _, category := range summaryCategories {
		cs := stats.Categories[category]
		tw.AppendRow(table.Row{categoryTitle(category), cs.Materialized(), cs.Linked, cs.Copied, cs.Duplicates, cs.Bytes})
		total.Linked += cs.Linked
		total.Copied += cs.Copied
		total.Duplicates += cs.Duplicates
		total.Bytes += cs.Bytes
	}
	tw.AppendFooter(table.Row{"Total", total.Materialized(), total.Linked, total.Copied, total.Duplicates, total.Bytes})

	configs := make([]table.ColumnConfig, 0, sizeColumn)
	for n := 2; n <= sizeColumn; n++ {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	configs[len(configs)-1].Transformer = formatBytes
	configs[len(configs)-1].TransformerFooter = formatBytes
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func formatBytes(val any) string {
	n, ok := val.(int64)
	if !ok {
		return fmt.Sprint(val)
	}
	return humanize.IBytes(uint64(max(n, 0)))
}

func categoryTitle(category classify.Category) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(category.String(), "-", " "))
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
