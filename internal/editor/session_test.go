package editor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kermanimohammad/SensorPlus-Client/internal/bus"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/folder"
	"github.com/kermanimohammad/SensorPlus-Client/internal/scene"
	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
	"github.com/kermanimohammad/SensorPlus-Client/internal/store"
	"github.com/kermanimohammad/SensorPlus-Client/internal/transform"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, opts Options) (*Session, *scene.Memory) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	m := scene.NewMemory(logger)
	return NewSession(m, scene.NewPrefabs(logger), opts, logger), m
}

func hall() []byte {
	return scene.UnitBox("hall", [3]float32{-3, 0, -3}, [3]float32{3, 2.5, 3})
}

func reading(device string, value float64) *sensors.Reading {
	return &sensors.Reading{DeviceID: device, Kind: sensors.Temperature, Value: &value}
}

func TestPickPrefersSensorsAndActivatesEnvironments(t *testing.T) {
	s, m := newSession(t, Options{})
	ctx := context.Background()
	a, err := s.ImportEnvironment(ctx, hall(), "a.glb")
	require.NoError(t, err)
	_, err = s.ImportEnvironment(ctx, hall(), "b.glb")
	require.NoError(t, err)

	id, err := s.AddSensor(sensors.CO2)
	require.NoError(t, err)
	assert.Equal(t, id, s.Selected())

	h, _ := s.Sensors().Handle(id)
	res := s.Pick(h.Node)
	assert.Equal(t, PickResult{Kind: PickSensor, ID: id}, res)

	var envMesh scene.NodeID
	for _, e := range s.Environments().All() {
		if e.ID == a {
			envMesh = m.ChildMeshes(e.Root)[0]
		}
	}
	res = s.Pick(envMesh)
	assert.Equal(t, PickResult{Kind: PickEnvironment, ID: a}, res)
	assert.Equal(t, a, s.Environments().ActiveID())
	assert.Equal(t, "", s.Selected())

	assert.Equal(t, PickResult{}, s.Pick(scene.NodeID(99999)))
}

func TestToolTargetsSelectionThenActiveEnvironment(t *testing.T) {
	s, _ := newSession(t, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, s.AttachTool(ToolMove), ErrNoTarget)

	_, err := s.ImportEnvironment(ctx, hall(), "a.glb")
	require.NoError(t, err)
	root, _ := s.Environments().ActiveRoot()
	require.NoError(t, s.AttachTool(ToolRotate))
	assert.Equal(t, root, s.Tool().Attached())
	assert.Equal(t, "", s.Tool().SensorID())

	id, err := s.AddSensor(sensors.Temperature)
	require.NoError(t, err)
	require.NoError(t, s.Select(id))
	h, _ := s.Sensors().Handle(id)
	assert.Equal(t, h.Node, s.Tool().Attached(), "an attached tool follows the selection")
	assert.Equal(t, ToolRotate, s.Tool().Mode())

	assert.ErrorIs(t, s.Select("s-nope"), ErrUnknownSensor)

	assert.True(t, s.DeleteSensor(id))
	assert.Equal(t, scene.NoNode, s.Tool().Attached())
	assert.Equal(t, ToolNone, s.Tool().Mode())
	assert.False(t, s.DeleteSensor(id))
}

func TestDragSyncsSensorRecordContinuously(t *testing.T) {
	s, m := newSession(t, Options{})
	id, err := s.AddSensor(sensors.Humidity)
	require.NoError(t, err)
	require.NoError(t, s.AttachTool(ToolMove))

	require.NoError(t, s.DragTo(transform.Pose{Position: transform.Vec3{X: 4, Y: 1, Z: -2}}))
	rec, _ := s.Sensors().Get(id)
	assert.InDelta(t, 4, rec.Position.X, 1e-5)
	assert.InDelta(t, 1, rec.Scale, 1e-5, "move leaves scale alone")

	require.NoError(t, s.AttachTool(ToolScale))
	require.NoError(t, s.DragTo(transform.Pose{Scale: transform.Uniform(2)}))
	require.NoError(t, s.DragEnd())
	rec, _ = s.Sensors().Get(id)
	assert.InDelta(t, 2, rec.Scale, 1e-5)
	assert.InDelta(t, 4, rec.Position.X, 1e-5)

	h, _ := s.Sensors().Handle(id)
	info, _ := m.Node(h.Node)
	assert.InDelta(t, 2*config.WorldScaleFactor, info.Transform.Scale.X, 1e-4)

	s.DetachTool()
	assert.ErrorIs(t, s.DragTo(transform.IdentityPose()), ErrNoTarget)
}

func TestHandleMessageAppliesAndDeduplicates(t *testing.T) {
	s, m := newSession(t, Options{})
	id, err := s.AddSensor(sensors.Temperature)
	require.NoError(t, err)
	rec, _ := s.Sensors().Get(id)

	assert.True(t, s.HandleMessage(bus.Message{Topic: "x", Reading: reading(rec.DeviceID, 35)}))
	assert.False(t, s.HandleMessage(bus.Message{Topic: "x", Reading: reading(rec.DeviceID, 35)}))
	assert.False(t, s.HandleMessage(bus.Message{Topic: "x", Reading: reading("nobody-1", 20)}))
	assert.False(t, s.HandleMessage(bus.Message{Topic: "x"}))
	assert.ElementsMatch(t, []string{"nobody-1", rec.DeviceID}, s.Devices())

	h, _ := s.Sensors().Handle(id)
	target := h.Node
	if meshes := m.ChildMeshes(h.Node); len(meshes) > 0 {
		target = meshes[0]
	}
	info, _ := m.Node(target)
	require.NotNil(t, info.Emissive)
}

func TestHandleMessageMatchesTopicOnlyReadings(t *testing.T) {
	s, m := newSession(t, Options{})
	id, err := s.AddSensor(sensors.Temperature)
	require.NoError(t, err)
	require.NoError(t, s.BindProperties(id, sensors.Patch{Topic: "building/demo/t1"}))

	assert.True(t, s.HandleMessage(bus.Message{Topic: "building/demo/t1", Reading: reading("", 30)}))
	assert.True(t, s.HandleMessage(bus.Message{Topic: "building/demo/t1", Reading: reading("", 30)}))
	assert.False(t, s.HandleMessage(bus.Message{Topic: "building/demo/t2", Reading: reading("", 30)}))
	assert.Empty(t, s.Devices())

	h, _ := s.Sensors().Handle(id)
	target := h.Node
	if meshes := m.ChildMeshes(h.Node); len(meshes) > 0 {
		target = meshes[0]
	}
	info, _ := m.Node(target)
	require.NotNil(t, info.Emissive)
}

func TestLiveReadingsDoNotGrowSavedScale(t *testing.T) {
	s, _ := newSession(t, Options{})
	ctx := context.Background()
	id, err := s.AddSensor(sensors.Temperature)
	require.NoError(t, err)
	rec, _ := s.Sensors().Get(id)

	for _, v := range []float64{40, 41, 42, 43} {
		require.True(t, s.HandleMessage(bus.Message{Topic: "x", Reading: reading(rec.DeviceID, v)}))
		doc, err := s.ExportDocument(ctx)
		require.NoError(t, err)
		require.Len(t, doc.Sensors, 1)
		got, _ := s.Sensors().Get(id)
		assert.InDelta(t, config.DefaultSensorScale, got.Scale, 1e-9, "after reading %v", v)
	}
}

func TestBindPropertiesReappliesLatestReading(t *testing.T) {
	s, m := newSession(t, Options{})
	id, err := s.AddSensor(sensors.Light)
	require.NoError(t, err)

	off := false
	s.HandleMessage(bus.Message{Topic: "lights", Reading: &sensors.Reading{DeviceID: "lig-777", Kind: sensors.Light, On: &off}})
	require.NoError(t, s.BindProperties(id, sensors.Patch{DeviceID: "lig-777"}))

	h, _ := s.Sensors().Handle(id)
	target := h.Node
	if meshes := m.ChildMeshes(h.Node); len(meshes) > 0 {
		target = meshes[0]
	}
	info, _ := m.Node(target)
	assert.InDelta(t, 0.25, info.Visibility, 1e-6)

	assert.Error(t, s.BindProperties("s-missing", sensors.Patch{}))
}

func TestSaveAndLoadProjectThroughFolder(t *testing.T) {
	dir := t.TempDir()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	s, _ := newSession(t, Options{Folder: folder.New(folder.DirPicker(dir), logger)})
	ctx := context.Background()

	_, err := s.ImportEnvironment(ctx, hall(), "hall.glb")
	require.NoError(t, err)
	id, err := s.AddSensor(sensors.Solar)
	require.NoError(t, err)

	res, err := s.SaveProject(ctx)
	require.NoError(t, err)
	assert.False(t, res.Fallback)

	s.DeleteSensor(id)
	s.RemoveEnvironment("")
	assert.Equal(t, 0, s.Environments().Len())

	report, err := s.LoadProject(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Environments)
	assert.Equal(t, 1, report.Sensors)
	_, ok := s.Sensors().Get(id)
	assert.True(t, ok)

	report, err = s.LoadProject(ctx, res.Archive)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sensors)

	out := filepath.Join(t.TempDir(), "exports", "copy.dtsp")
	require.NoError(t, s.ExportArchive(ctx, out))
	report, err = s.LoadProject(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Environments)

	report, err = s.LoadProjectFolder(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Environments)
}

func TestSceneSensorsThroughStoreAndDownload(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	st, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	defer st.Close()
	downloads := t.TempDir()

	s, _ := newSession(t, Options{Store: st, Downloader: &folder.Downloader{Dir: downloads}})
	ctx := context.Background()
	_, err = s.ImportEnvironment(ctx, hall(), "hall.glb")
	require.NoError(t, err)
	a, err := s.AddSensor(sensors.Temperature)
	require.NoError(t, err)
	_, err = s.AddSensor(sensors.CO2)
	require.NoError(t, err)

	path, err := s.SaveSceneSensors(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(downloads, "scene-sensors.json"), path)

	s.DeleteSensor(a)
	_, err = s.AddSensor(sensors.Humidity)
	require.NoError(t, err)

	report, err := s.RestoreSceneSensors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sensors)
	assert.Equal(t, 1, s.Environments().Len())
	_, ok := s.Sensors().Get(a)
	assert.True(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report, err = s.LoadSceneSensors(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sensors)
}

func TestImportEnvironmentFileRejectsNonGLB(t *testing.T) {
	s, _ := newSession(t, Options{})
	p := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))
	_, err := s.ImportEnvironmentFile(context.Background(), p)
	assert.Error(t, err)

	g := filepath.Join(t.TempDir(), "room.glb")
	require.NoError(t, os.WriteFile(g, hall(), 0o644))
	id, err := s.ImportEnvironmentFile(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, id, s.Environments().ActiveID())
	assert.Equal(t, "room.glb", s.Environments().List()[0].Name)
}

func TestParseToolMode(t *testing.T) {
	m, ok := ParseToolMode("scale")
	assert.True(t, ok)
	assert.Equal(t, ToolScale, m)
	assert.Equal(t, "scale", m.String())
	_, ok = ParseToolMode("spin")
	assert.False(t, ok)
}

func TestAutosaveWritesOnlyChanges(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	st, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	defer st.Close()

	s, _ := newSession(t, Options{Store: st})
	ctx := context.Background()
	_, err = s.AddSensor(sensors.CO2)
	require.NoError(t, err)

	wrote, err := s.AutosaveSensors(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)
	wrote, err = s.AutosaveSensors(ctx)
	require.NoError(t, err)
	assert.False(t, wrote)

	_, err = s.AddSensor(sensors.Light)
	require.NoError(t, err)
	wrote, err = s.AutosaveSensors(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)

	none, _ := newSession(t, Options{})
	wrote, err = none.AutosaveSensors(ctx)
	require.NoError(t, err)
	assert.False(t, wrote)
}

func TestReloadPrefabUsesNewModelForNewSensors(t *testing.T) {
	s, m := newSession(t, Options{})
	ctx := context.Background()
	before, err := s.AddSensor(sensors.Temperature)
	require.NoError(t, err)
	h, _ := s.Sensors().Handle(before)
	assert.True(t, h.Fallback)

	dir := t.TempDir()
	p := filepath.Join(dir, "temperature.glb")
	require.NoError(t, os.WriteFile(p, scene.UnitBox("probe", [3]float32{-0.1, 0, -0.1}, [3]float32{0.1, 0.3, 0.1}), 0o644))
	require.NoError(t, s.ReloadPrefab(ctx, p))

	after, err := s.AddSensor(sensors.Temperature)
	require.NoError(t, err)
	h, _ = s.Sensors().Handle(after)
	assert.False(t, h.Fallback)
	assert.NotEmpty(t, m.ChildMeshes(h.Node))

	bad := filepath.Join(dir, "radiation.glb")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o644))
	assert.Error(t, s.ReloadPrefab(ctx, bad))
}
