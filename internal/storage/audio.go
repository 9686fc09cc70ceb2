package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyUpload is returned when an upload carries no bytes.
var ErrEmptyUpload = errors.New("uploaded file is empty")

// SaveUpload writes an uploaded audio stream into dir and returns the path
// and the number of bytes written. The original extension is kept so the
// transcoder can guess the container; the base name is not trusted.
func SaveUpload(dir, filename string, src io.Reader) (string, int64, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create upload directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "" || len(ext) > 8 {
		ext = ".bin"
	}
	dst := filepath.Join(dir, "upload"+ext)

	out, err := os.Create(dst)
	if err != nil {
		return "", 0, fmt.Errorf("failed to save file: %w", err)
	}
	size, err := out.ReadFrom(src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return "", 0, fmt.Errorf("failed to save file: %w", err)
	}
	if size == 0 {
		os.Remove(dst)
		return "", 0, ErrEmptyUpload
	}
	return dst, size, nil
}
