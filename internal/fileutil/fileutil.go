// Package fileutil places harvested files into output directories.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Method reports how Materialize placed a file.
type Method int

const (
	MethodLinked Method = iota + 1
	MethodCopied
)

func (m Method) String() string {
	switch m {
	case MethodLinked:
		return "hardlink"
	case MethodCopied:
		return "copy"
	default:
		return "none"
	}
}

// copyFileMode streams src to dst, creating dst with the given mode.
func copyFileMode(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// copyPreserve copies src to dst through a temporary sibling and renames
// it into place, carrying over the permission bits and modification time.
// An existing dst is replaced.
func copyPreserve(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	tmp := dst + ".tmp"
	if err := copyFileMode(src, tmp, info.Mode().Perm()); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, info.Mode().Perm()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Chtimes(tmp, info.ModTime(), info.ModTime()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("set times: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tmp->final: %w", err)
	}
	return nil
}

// Materialize places src at dst. With useLinks it first tries a hardlink when
// dst does not exist yet; any link failure, or useLinks=false, falls back to a
// full copy. Only a failed copy is returned as an error.
func Materialize(src, dst string, useLinks bool) (Method, error) {
	if useLinks {
		if _, err := os.Lstat(dst); errors.Is(err, fs.ErrNotExist) {
			if err := os.Link(src, dst); err == nil {
				return MethodLinked, nil
			}
		}
	}
	if err := copyPreserve(src, dst); err != nil {
		return 0, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return MethodCopied, nil
}
