package folder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/project"
	"github.com/kermanimohammad/SensorPlus-Client/internal/twinerr"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
)

// Downloader stores single files in a downloads directory. Existing files
// are never overwritten; a numbered suffix is added instead.
type Downloader struct {
	Dir    string
	Logger *logrus.Logger
}

// Download writes data as name and returns the path it ended up at.
func (d *Downloader) Download(name string, data []byte) (string, error) {
	dir, err := homedir.Expand(d.Dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", classify(dir, err)
	}

	target := name
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, target)); errors.Is(err, os.ErrNotExist) {
			break
		}
		target = fmt.Sprintf("%s (%d)%s", base, i, ext)
	}
	if err := writeFile(dir, target, data); err != nil {
		return "", err
	}

	path := filepath.Join(dir, target)
	if d.Logger != nil {
		d.Logger.WithField("path", path).Info("File downloaded")
	}
	return path, nil
}

// SaveOptions tunes SaveProject.
type SaveOptions struct {
	// ArchiveOnly removes the loose GLB files and project.json once the
	// archive is written.
	ArchiveOnly bool
}

// SaveResult reports where a project ended up.
type SaveResult struct {
	Dir      string
	Files    []string
	Archive  string
	Fallback bool
}

// SaveProject writes every environment GLB and project.json into the
// project directory, then the project.dtsp archive beside them. When the
// directory is unavailable the archive is handed to dl instead.
func SaveProject(ctx context.Context, f *Folder, dl *Downloader, ser *project.Serializer, opts SaveOptions, logger *logrus.Logger) (*SaveResult, error) {
	bundle, err := ser.Bundle(ctx)
	if err != nil {
		return nil, err
	}
	archive, err := bundle.Archive()
	if err != nil {
		return nil, err
	}

	res, err := saveToFolder(ctx, f, bundle, archive, opts)
	if err == nil {
		logger.WithFields(logrus.Fields{
			"dir":          res.Dir,
			"environments": len(bundle.Files),
			"sensors":      len(bundle.Document.Sensors),
		}).Info("Project saved to folder and archived")
		return res, nil
	}
	if !errors.Is(err, twinerr.ErrPermission) || dl == nil {
		return nil, err
	}

	logger.WithError(err).Warn("Project directory unavailable, downloading archive instead")
	path, derr := dl.Download(config.ProjectArchiveName, archive)
	if derr != nil {
		return nil, errors.Join(err, derr)
	}
	return &SaveResult{Archive: path, Fallback: true}, nil
}

func saveToFolder(ctx context.Context, f *Folder, b *project.Bundle, archive []byte, opts SaveOptions) (*SaveResult, error) {
	dir, err := f.EnsureDirectory(ctx)
	if err != nil {
		return nil, err
	}

	var written []string
	fail := func(err error) (*SaveResult, error) {
		f.CleanupTemporary(written)
		return nil, err
	}
	for _, file := range b.Files {
		if err := f.Write(ctx, file.Name, file.Data); err != nil {
			return fail(err)
		}
		written = append(written, file.Name)
	}
	if err := f.WriteDocument(ctx, config.ProjectDocumentName, b.Document); err != nil {
		return fail(err)
	}
	written = append(written, config.ProjectDocumentName)
	if err := f.Write(ctx, config.ProjectArchiveName, archive); err != nil {
		return fail(err)
	}

	res := &SaveResult{Dir: dir, Archive: filepath.Join(dir, config.ProjectArchiveName)}
	if opts.ArchiveOnly {
		f.CleanupTemporary(written)
	} else {
		res.Files = written
	}
	return res, nil
}

// ReadProject reads project.json and every GLB file next to it from the
// project directory.
func ReadProject(ctx context.Context, f *Folder) ([]byte, map[string][]byte, error) {
	raw, err := f.Read(ctx, config.ProjectDocumentName)
	if err != nil {
		return nil, nil, err
	}
	dir, err := f.EnsureDirectory(ctx)
	if err != nil {
		return nil, nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.glb"))
	if err != nil {
		return nil, nil, err
	}
	files := make(map[string][]byte, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, nil, err
		}
		files[filepath.Base(m)] = data
	}
	return raw, files, nil
}
