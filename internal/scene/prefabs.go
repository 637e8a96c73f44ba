package scene

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Prefabs is the per-sensor-type template library. Templates are loaded once
// in the background; Wait blocks until that pass has finished.
type Prefabs struct {
	mu        sync.RWMutex
	templates map[string]Template
	done      chan struct{}
	logger    *logrus.Logger
}

// NewPrefabs returns an empty library that is already marked ready. Use
// LoadPrefabs to populate one from disk.
func NewPrefabs(logger *logrus.Logger) *Prefabs {
	p := &Prefabs{templates: make(map[string]Template), done: make(chan struct{}), logger: logger}
	close(p.done)
	return p
}

// LoadPrefabs starts loading <dir>/<type>.glb for every type. Types whose
// file is missing or malformed are logged and left without a prefab.
func LoadPrefabs(ctx context.Context, s Scene, dir string, types []string, timeout time.Duration, logger *logrus.Logger) *Prefabs {
	p := &Prefabs{templates: make(map[string]Template), done: make(chan struct{}), logger: logger}
	go func() {
		defer close(p.done)
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		for _, typ := range types {
			path := filepath.Join(dir, typ+".glb")
			data, err := os.ReadFile(path)
			if err != nil {
				logger.WithError(err).WithField("type", typ).Debug("No prefab model for sensor type")
				continue
			}
			t, err := s.LoadTemplate(ctx, data, "glb")
			if err != nil {
				logger.WithError(err).WithField("type", typ).Warn("Failed to load prefab model")
				continue
			}
			p.Set(typ, t)
			logger.WithField("type", typ).Debug("Loaded prefab model")
		}
		logger.WithField("count", p.Len()).Info("Prefab models ready")
	}()
	return p
}

// Set registers a template for typ.
func (p *Prefabs) Set(typ string, t Template) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.templates[typ] = t
}

func (p *Prefabs) Get(typ string) (Template, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.templates[typ]
	return t, ok
}

func (p *Prefabs) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.templates)
}

// Wait blocks until the load pass completes or ctx is done.
func (p *Prefabs) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
