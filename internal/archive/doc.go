// Package archive discovers application archives under an origin tree and
// unpacks each one into its own directory below a temporary extraction root.
//
// Extraction never returns an error to the caller: every archive yields a
// Result that either names its extracted tree or carries the reason it was
// skipped. Corrupt containers are reported with ErrInvalidArchive, and entries
// whose names would escape the destination reject the whole archive. A failed
// archive's partial tree is removed before its Result is returned.
//
// ExtractAll runs extractions across a bounded worker pool. Destination
// directory names are reserved up front so two archives sharing a base name
// never unpack into the same tree.
package archive
