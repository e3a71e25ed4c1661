// Package logging assembles the structured slog loggers used across apkharvest.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and serializes every write so scanner and extractor workers never
// interleave partial lines. Component loggers carry a "component" attribute
// that the console handler renders as a bracketed prefix. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same shape and routing.
package logging
