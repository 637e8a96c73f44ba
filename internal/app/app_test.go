package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kermanimohammad/SensorPlus-Client/internal/bus"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/editor"
	"github.com/kermanimohammad/SensorPlus-Client/internal/scene"
	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
	"github.com/kermanimohammad/SensorPlus-Client/internal/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	bus *bus.Bus
	msg bus.Message
}

func (f *fakeSource) Name() string      { return "fake" }
func (f *fakeSource) IsConnected() bool { return true }
func (f *fakeSource) Run(ctx context.Context) error {
	f.bus.Publish(f.msg)
	<-ctx.Done()
	return nil
}

func newEditor(t *testing.T) (*Editor, *logrus.Logger) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	m := scene.NewMemory(logger)
	return NewEditor(editor.NewSession(m, scene.NewPrefabs(logger), editor.Options{}, logger)), logger
}

func TestRunFeedsTelemetryToTheEditorLoop(t *testing.T) {
	ed, logger := newEditor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := 22.5
	b := bus.New(config.BusBufferSize)
	src := &fakeSource{bus: b, msg: bus.Message{Topic: "building/demo/t", Reading: &sensors.Reading{DeviceID: "tem-500", Kind: sensors.Temperature, Value: &v}}}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, &config.Config{}, ed, b, []telemetry.Source{src}, logger)
	}()

	require.Eventually(t, func() bool {
		var devices []string
		err := ed.Do(ctx, func(s *editor.Session) error {
			devices = s.Devices()
			return nil
		})
		return err == nil && len(devices) == 1 && devices[0] == "tem-500"
	}, 2*time.Second, 10*time.Millisecond)

	var added string
	require.NoError(t, ed.Do(ctx, func(s *editor.Session) error {
		id, err := s.AddSensor(sensors.Temperature)
		added = id
		return err
	}))
	assert.NotEmpty(t, added)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.ErrorIs(t, ed.Do(context.Background(), func(*editor.Session) error { return nil }), ErrStopped)
	assert.Equal(t, 1, ed.Session().Sensors().Len())
}

func TestModelsWatcherReloadsPrefabs(t *testing.T) {
	ed, logger := newEditor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, &config.Config{ModelsDir: dir}, ed, bus.New(1), nil, logger)
	}()

	glb := scene.UnitBox("co2", [3]float32{-0.1, 0, -0.1}, [3]float32{0.1, 0.2, 0.1})
	require.Eventually(t, func() bool {
		// rewrite until the watcher is up and has picked the file up
		if err := os.WriteFile(filepath.Join(dir, "co2.glb"), glb, 0o644); err != nil {
			return false
		}
		fallback := true
		err := ed.Do(ctx, func(s *editor.Session) error {
			id, err := s.AddSensor(sensors.CO2)
			if err != nil {
				return err
			}
			h, _ := s.Sensors().Handle(id)
			fallback = h.Fallback
			s.DeleteSensor(id)
			return nil
		})
		return err == nil && !fallback
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}

func TestIsPrefabFile(t *testing.T) {
	assert.True(t, isPrefabFile("/models/temperature.glb"))
	assert.False(t, isPrefabFile("/models/temperature.gltf"))
	assert.False(t, isPrefabFile("/models/radiator.glb"))
	assert.False(t, isPrefabFile("/models/.co2.glb.tmp-123"))
}
