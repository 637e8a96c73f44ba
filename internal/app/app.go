package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kermanimohammad/SensorPlus-Client/internal/bus"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/editor"
	"github.com/kermanimohammad/SensorPlus-Client/internal/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrStopped is returned by Do once the editor loop has exited.
var ErrStopped = errors.New("editor loop stopped")

type request struct {
	fn   func(*editor.Session) error
	done chan error
}

// Editor serialises access to a session: every mutation runs on the loop
// started by Run.
type Editor struct {
	session *editor.Session
	reqs    chan request
	stopped chan struct{}
}

func NewEditor(s *editor.Session) *Editor {
	return &Editor{session: s, reqs: make(chan request), stopped: make(chan struct{})}
}

// Do runs fn on the editor loop and returns its error.
func (e *Editor) Do(ctx context.Context, fn func(*editor.Session) error) error {
	r := request{fn: fn, done: make(chan error, 1)}
	select {
	case e.reqs <- r:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session returns the session for use after Run has returned.
func (e *Editor) Session() *editor.Session { return e.session }

// Run starts every telemetry source and the editor loop, and blocks until
// ctx is cancelled. A source that fails is logged; the editor keeps
// running without it.
func Run(
	parentCtx context.Context,
	cfg *config.Config,
	ed *Editor,
	messageBus *bus.Bus,
	sources []telemetry.Source,
	logger *logrus.Logger,
) error {
	grp, ctx := errgroup.WithContext(parentCtx)
	// subscribe before any source can publish
	sub := messageBus.Subscribe()

	// Telemetry sources ----------------------------------------------------
	for _, src := range sources {
		grp.Go(func() error {
			if err := src.Run(ctx); err != nil {
				logger.WithError(err).WithField("source", src.Name()).Warn("telemetry source stopped")
			}
			return nil
		})
	}

	// Prefab hot reload -----------------------------------------------------
	if cfg.ModelsDir != "" {
		grp.Go(func() error {
			if err := watchModels(ctx, cfg.ModelsDir, ed, logger); err != nil {
				logger.WithError(err).Debug("models watcher not running")
			}
			return nil
		})
	}

	// Editor loop -----------------------------------------------------------
	grp.Go(func() error {
		defer close(ed.stopped)
		defer messageBus.Unsubscribe(sub)
		return loop(ctx, ed, sub, config.AutosaveInterval, logger)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: background group exited: %w", err)
	}
	return nil
}

func loop(ctx context.Context, ed *Editor, sub <-chan bus.Message, autosave time.Duration, logger *logrus.Logger) error {
	ticker := time.NewTicker(autosave)
	defer ticker.Stop()

	applied := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub:
			if !ok {
				return nil
			}
			if ed.session.HandleMessage(msg) {
				applied++
			}
		case r := <-ed.reqs:
			r.done <- r.fn(ed.session)
		case <-ticker.C:
			wrote, err := ed.session.AutosaveSensors(ctx)
			if err != nil {
				logger.WithError(err).Warn("autosave failed")
				continue
			}
			if wrote || applied > 0 {
				logger.WithFields(logrus.Fields{
					"readings_applied": applied,
					"autosaved":        wrote,
					"devices":          len(ed.session.Devices()),
				}).Debug("editor status")
			}
			applied = 0
		}
	}
}
