package app

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/kermanimohammad/SensorPlus-Client/internal/editor"
	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
	"github.com/sirupsen/logrus"
)

// watchModels reloads a sensor prefab whenever <dir>/<type>.glb is written.
func watchModels(ctx context.Context, dir string, ed *Editor, logger *logrus.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	logger.WithField("dir", dir).Debug("Watching prefab models")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !isPrefabFile(ev.Name) {
				continue
			}
			path := ev.Name
			err := ed.Do(ctx, func(s *editor.Session) error {
				return s.ReloadPrefab(ctx, path)
			})
			if err != nil {
				logger.WithError(err).WithField("file", path).Warn("Failed to reload prefab model")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("models watcher error")
		}
	}
}

func isPrefabFile(path string) bool {
	base := filepath.Base(path)
	if filepath.Ext(base) != ".glb" {
		return false
	}
	_, err := sensors.ParseType(strings.TrimSuffix(base, ".glb"))
	return err == nil
}
