// Package preflight provides the filesystem readiness checks a harvest run
// performs before it touches anything on disk.
//
// The origin tree must be a readable and writable directory, since the
// temporary extraction root is created inside it. Output directories may not
// exist yet; CheckWritable walks up to the nearest existing ancestor and
// verifies it can be written to.
package preflight
