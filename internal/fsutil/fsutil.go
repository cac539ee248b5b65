// Package fsutil provides the filesystem primitives build outputs go
// through: atomic writes that create their parent directories, atomic
// copies, and guarded recursive removal.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Atomic Writes
// ///////////////////////////////////////////////

// WriteFile atomically writes data to path, creating missing parent
// directories. Readers such as the development server see either the old
// file or the complete new one.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	return writeAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// CopyFile atomically copies src to dst, preserving the source permissions.
func CopyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	return writeAtomic(dst, info.Mode().Perm(), func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// writeAtomic creates a temp file next to path, fills it, sets permissions
// and renames it over path. The temp file is removed on any failure.
func writeAtomic(path string, perm os.FileMode, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()
	var success bool
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	if err := fill(f); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}

// ///////////////////////////////////////////////
// Removal
// ///////////////////////////////////////////////

// RemoveAll deletes dir and everything below it. A missing dir is not an
// error. The empty path, "." and filesystem roots are refused.
func RemoveAll(dir string) error {
	if dir == "" {
		return fmt.Errorf("refusing to remove empty path")
	}
	clean := filepath.Clean(dir)
	if clean == "." || isRoot(clean) {
		return fmt.Errorf("refusing to remove %q", dir)
	}
	if err := os.RemoveAll(clean); err != nil {
		return fmt.Errorf("remove %s: %w", clean, err)
	}
	return nil
}

func isRoot(p string) bool {
	vol := filepath.VolumeName(p)
	rest := p[len(vol):]
	return rest == "" || rest == string(filepath.Separator)
}
