package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// LocalStore keeps assets as files under a base directory.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates the base directory if missing.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("asset directory is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve asset dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &LocalStore{basePath: abs}, nil
}

// Dir returns the absolute asset directory.
func (f *LocalStore) Dir() string {
	return f.basePath
}

// Move renames src into the asset directory, copying when src is on another device.
func (f *LocalStore) Move(_ context.Context, src, name, _ string) error {
	target, err := f.path(name)
	if err != nil {
		return err
	}
	err = os.Rename(src, target)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, target); err != nil {
		_ = os.Remove(target)
		return err
	}
	return os.Remove(src)
}

// Remove deletes the asset file.
func (f *LocalStore) Remove(_ context.Context, name string) error {
	target, err := f.path(name)
	if err != nil {
		return err
	}
	return os.Remove(target)
}

// Location returns the absolute path for name.
func (f *LocalStore) Location(name string) string {
	return filepath.Join(f.basePath, filepath.Base(name))
}

func (f *LocalStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid asset name %q", name)
	}
	return filepath.Join(f.basePath, name), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
