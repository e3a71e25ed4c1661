// Package fingerprint computes two-tier content fingerprints for harvested files.
//
// This package has no apkharvest-specific dependencies.
//
// Tiers:
//   - Quick: "<size>:<blake3>" over the first PartialSize bytes, plus the last
//     PartialSize bytes when the file is larger than TailThreshold. Cheap and
//     collision-prone for same-sized files; used as the first-pass filter.
//   - Full: SHA-256 over the whole file, streamed in bounded chunks. Only
//     needed to break Quick ties.
//
// Compute returns both tiers in a single read when the file fits inside the
// quick window, since hashing it fully costs the same as hashing it partially.
//
// Identical bytes always yield identical Quick and Full values.
package fingerprint
