// Package atomicfile writes files through a temporary file and rename so
// readers never observe a partially written result or checkpoint.
package atomicfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write replaces path with data. The parent directory is created when absent.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempName := tempFile.Name()
	// Removing after a successful rename is a no-op
	defer os.Remove(tempName)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("error syncing temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Chmod(tempName, perm); err != nil {
		return fmt.Errorf("error setting permissions: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		if err := copyFile(tempName, path, perm); err != nil {
			return fmt.Errorf("error replacing %s: %w", path, err)
		}
	}
	return nil
}

// WriteJSON marshals v with indentation and writes it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling %s: %w", filepath.Base(path), err)
	}
	return Write(path, data, 0o644)
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}

// copyFile is the fallback when rename crosses filesystems
func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
