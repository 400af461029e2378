// Package filex contains small filesystem helpers for staging and cleaning
// up submission files.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnsureSubDir creates (if needed) and returns a subdirectory of the current
// working directory.
func EnsureSubDir(dirName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// Stage copies the file at src into dir under dstName and returns the staged
// path. The staged copy is owned by the caller and is what gets uploaded,
// so the user's original file can be moved or deleted while the upload is
// still pending.
func Stage(src string, dir string, dstName string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	dst := filepath.Join(dir, dstName)

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", fmt.Errorf("copy to %s: %w", dst, err)
	}

	if err := out.Sync(); err != nil {
		return "", fmt.Errorf("sync %s: %w", dst, err)
	}

	return dst, nil
}

// Size returns the size of the file at path in bytes.
func Size(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return fi.Size(), nil
}

// RemoveIfExists deletes the file at path. A missing file is not an error,
// so cleanup stays idempotent.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
