package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"

	"github.com/zeebo/blake3"
)

const (
	// DefaultPartialSize is the quick window read from each end of a file.
	DefaultPartialSize int64 = 64 * 1024
	// DefaultTailThreshold is the size above which the tail window is also hashed.
	DefaultTailThreshold int64 = 20 * 1024 * 1024

	fullChunkSize = 32 * 1024
)

// ErrNotRegular is returned for paths that are not regular files.
var ErrNotRegular = errors.New("not a regular file")

// Options controls the quick fingerprint windows.
type Options struct {
	PartialSize   int64
	TailThreshold int64
}

// DefaultOptions returns the 64 KiB / 20 MiB windows.
func DefaultOptions() Options {
	return Options{PartialSize: DefaultPartialSize, TailThreshold: DefaultTailThreshold}
}

func (o Options) normalized() Options {
	if o.PartialSize <= 0 {
		o.PartialSize = DefaultPartialSize
	}
	if o.TailThreshold <= 0 {
		o.TailThreshold = DefaultTailThreshold
	}
	// Files inside the head window never get a tail window.
	o.TailThreshold = max(o.TailThreshold, o.PartialSize)
	return o
}

// Fingerprint holds the tiers computed for one file. Full is empty when it has
// not been computed yet.
type Fingerprint struct {
	Size  int64
	Quick string
	Full  string
}

// quickOnly returns the partial-content fingerprint of path.
func quickOnly(path string, opts Options) (string, error) {
	opts = opts.normalized()
	file, size, err := openRegular(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := blake3.New()
	if err := hashWindows(h, file, size, opts); err != nil {
		return "", fmt.Errorf("quick hash %s: %w", path, err)
	}
	return quickKey(size, h), nil
}

// Full returns the whole-file SHA-256 fingerprint of path.
func Full(path string) (string, error) {
	file, _, err := openRegular(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	buf := make([]byte, fullChunkSize)
	if _, err := io.CopyBuffer(h, file, buf); err != nil {
		return "", fmt.Errorf("full hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Compute returns the quick fingerprint of path and, when the file fits inside
// the quick window, the full fingerprint from the same read.
func Compute(path string, opts Options) (Fingerprint, error) {
	opts = opts.normalized()
	file, size, err := openRegular(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer file.Close()

	quick := blake3.New()
	if size > opts.PartialSize {
		if err := hashWindows(quick, file, size, opts); err != nil {
			return Fingerprint{}, fmt.Errorf("quick hash %s: %w", path, err)
		}
		return Fingerprint{Size: size, Quick: quickKey(size, quick)}, nil
	}

	full := sha256.New()
	if _, err := io.Copy(io.MultiWriter(quick, full), io.LimitReader(file, opts.PartialSize)); err != nil {
		return Fingerprint{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return Fingerprint{
		Size:  size,
		Quick: quickKey(size, quick),
		Full:  hex.EncodeToString(full.Sum(nil)),
	}, nil
}

func openRegular(path string) (*os.File, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, 0, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	return file, info.Size(), nil
}

// hashWindows feeds the head window and, past the tail threshold, the tail
// window of file into h.
func hashWindows(h hash.Hash, file *os.File, size int64, opts Options) error {
	if _, err := io.Copy(h, io.LimitReader(file, opts.PartialSize)); err != nil {
		return err
	}
	if size <= opts.TailThreshold {
		return nil
	}
	offset := max(0, size-opts.PartialSize)
	if _, err := io.Copy(h, io.NewSectionReader(file, offset, size-offset)); err != nil {
		return err
	}
	return nil
}

func quickKey(size int64, h hash.Hash) string {
	return strconv.FormatInt(size, 10) + ":" + hex.EncodeToString(h.Sum(nil))
}
