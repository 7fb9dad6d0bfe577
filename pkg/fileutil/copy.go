package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// CopyFile copies src to dst, creating parent directories as needed.
// The destination is written with 0644 permissions; an existing file is
// truncated. Returns the number of bytes copied.
func CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination file: %w", err)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("failed to copy file contents: %w", err)
	}

	// Flush to disk before the caller verifies the copy
	if err := out.Sync(); err != nil {
		out.Close()
		return n, fmt.Errorf("failed to sync destination file: %w", err)
	}

	if err := out.Close(); err != nil {
		return n, fmt.Errorf("failed to close destination file: %w", err)
	}

	return n, nil
}

// CopyFileVerified copies src to dst and verifies the destination exists
// with the same size as the source. Returns an error if verification fails.
func CopyFileVerified(src, dst string) error {
	srcSize, err := FileSize(src)
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	if _, err := CopyFile(src, dst); err != nil {
		return err
	}

	dstSize, err := FileSize(dst)
	if err != nil {
		return fmt.Errorf("copy verification failed: %w", err)
	}

	if dstSize != srcSize {
		return fmt.Errorf("copy verification failed: size mismatch (source %d bytes, copy %d bytes)", srcSize, dstSize)
	}

	return nil
}

// Touch updates the access and modification times of a file to now,
// creating an empty file if it does not exist.
func Touch(path string) error {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to update file times: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return f.Close()
}
