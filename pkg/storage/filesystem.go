package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage persists files on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// StoredFile describes a file written by Save.
type StoredFile struct {
	Path     string
	Size     int64
	Checksum string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage directory required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes data to the relative path.
func (s *LocalStorage) Save(relPath string, data []byte) (StoredFile, error) {
	path, err := s.resolve(relPath)
	if err != nil {
		return StoredFile{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return StoredFile{}, fmt.Errorf("prepare directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return StoredFile{}, fmt.Errorf("write file: %w", err)
	}
	sum := sha256.Sum256(data)
	return StoredFile{Path: relPath, Size: int64(len(data)), Checksum: hex.EncodeToString(sum[:])}, nil
}

// Read loads a stored file fully into memory.
func (s *LocalStorage) Read(relPath string) ([]byte, error) {
	path, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(relPath string) error {
	path, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// resolve maps relPath under baseDir and refuses anything that escapes it.
func (s *LocalStorage) resolve(relPath string) (string, error) {
	if relPath == "" || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("invalid storage path %q", relPath)
	}
	clean := filepath.Clean(relPath)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage path %q", relPath)
	}
	return filepath.Join(s.baseDir, clean), nil
}
