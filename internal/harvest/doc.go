// Package harvest runs the asset harvest: it scans loose files under the
// origin tree, extracts every discovered archive into a temporary root, scans
// each extracted tree, and removes the temporary root when done.
//
// Handler owns the per-file pipeline (classify, fingerprint, deduplicate,
// materialize) and is shared by every scan worker. Run owns the run lifecycle:
// setup failures are returned, while per-file and per-archive failures are
// logged, counted in the Summary, and skipped.
package harvest
