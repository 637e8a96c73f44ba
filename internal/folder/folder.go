// Package folder persists projects into a user-chosen directory, with a
// downloads directory as the fallback when that directory is unavailable.
package folder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/twinerr"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
)

// ErrUnsupported is wrapped in the PermissionError returned when no picker
// is configured.
var ErrUnsupported = errors.New("directory access is not available")

// Picker asks for a writable directory. It is consulted at most once per
// Folder.
type Picker interface {
	Pick(ctx context.Context) (string, error)
}

// DirPicker always picks the same path. A leading ~ is expanded and the
// directory is created when missing.
type DirPicker string

func (p DirPicker) Pick(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := homedir.Expand(string(p))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Folder is the project directory of one session.
type Folder struct {
	picker Picker
	logger *logrus.Logger

	mu  sync.Mutex
	dir string
}

// New returns a Folder using p. A nil picker means the capability is absent
// and every call fails with a PermissionError.
func New(p Picker, logger *logrus.Logger) *Folder {
	return &Folder{picker: p, logger: logger}
}

// EnsureDirectory returns the project directory, prompting on first use.
// Write access is probed on every call.
func (f *Folder) EnsureDirectory(ctx context.Context) (string, error) {
	if f.picker == nil {
		return "", &twinerr.PermissionError{Err: ErrUnsupported}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dir == "" {
		pctx, cancel := context.WithTimeout(ctx, config.PermissionTimeout)
		dir, err := f.picker.Pick(pctx)
		cancel()
		if err != nil {
			return "", &twinerr.PermissionError{Err: err}
		}
		f.dir = dir
		f.logger.WithField("dir", dir).Info("Project directory selected")
	}
	if err := probe(f.dir); err != nil {
		return "", &twinerr.PermissionError{Path: f.dir, Err: err}
	}
	return f.dir, nil
}

func probe(dir string) error {
	tmp, err := os.CreateTemp(dir, ".sensorplus-probe-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	tmp.Close()
	return os.Remove(name)
}

// Write creates or replaces name inside the project directory.
func (f *Folder) Write(ctx context.Context, name string, data []byte) error {
	dir, err := f.EnsureDirectory(ctx)
	if err != nil {
		return err
	}
	return writeFile(dir, name, data)
}

// WriteDocument writes v as two-space indented JSON.
func (f *Folder) WriteDocument(ctx context.Context, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return f.Write(ctx, name, data)
}

// Read returns the content of name inside the project directory.
func (f *Folder) Read(ctx context.Context, name string) ([]byte, error) {
	dir, err := f.EnsureDirectory(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkName(name); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(dir, name))
}

// CleanupTemporary removes intermediate files. Failures are collected and
// logged; files that are already gone are not an error.
func (f *Folder) CleanupTemporary(names []string) *twinerr.Collector {
	errs := twinerr.NewCollector("folder.cleanup", f.logger)
	f.mu.Lock()
	dir := f.dir
	f.mu.Unlock()
	if dir == "" {
		return errs
	}
	for _, n := range names {
		if err := checkName(n); err != nil {
			errs.Add(err)
			continue
		}
		if err := os.Remove(filepath.Join(dir, n)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs.Add(err)
		}
	}
	return errs
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}

// WriteFile creates or replaces the file at path, creating its directory.
func WriteFile(path string, data []byte) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return classify(dir, err)
	}
	return writeFile(dir, filepath.Base(path), data)
}

// writeFile writes through a temp file in the same directory and renames it
// over name.
func writeFile(dir, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return classify(dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return classify(dir, err)
	}
	return nil
}

func classify(dir string, err error) error {
	if errors.Is(err, os.ErrPermission) {
		return &twinerr.PermissionError{Path: dir, Err: err}
	}
	return err
}
