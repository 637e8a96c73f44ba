// Package editor ties the scene, the registries and persistence together
// into one editing session. A Session is not safe for concurrent use; the
// application drives it from a single goroutine.
package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kermanimohammad/SensorPlus-Client/internal/bus"
	"github.com/kermanimohammad/SensorPlus-Client/internal/cache"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/environment"
	"github.com/kermanimohammad/SensorPlus-Client/internal/folder"
	"github.com/kermanimohammad/SensorPlus-Client/internal/project"
	"github.com/kermanimohammad/SensorPlus-Client/internal/scene"
	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
	"github.com/kermanimohammad/SensorPlus-Client/internal/store"
	"github.com/kermanimohammad/SensorPlus-Client/internal/transform"
	"github.com/kermanimohammad/SensorPlus-Client/internal/twinerr"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoTarget      = errors.New("nothing to attach the tool to")
	ErrUnknownSensor = errors.New("unknown sensor")
)

// Options wires the optional persistence collaborators. Nil fields disable
// the corresponding feature.
type Options struct {
	Folder       *folder.Folder
	Downloader   *folder.Downloader
	Store        *store.Store
	Save         folder.SaveOptions
	AssetTimeout time.Duration
}

// Session is one editing session over a scene.
type Session struct {
	scene   scene.Scene
	tags    *scene.Tags
	prefabs *scene.Prefabs
	envs    *environment.Registry
	sensors *sensors.Registry
	ser     *project.Serializer
	des     *project.Deserializer
	latest  *cache.Latest
	tool    *Tool
	opts    Options
	logger  *logrus.Logger

	selected string
	// last sensor list written by AutosaveSensors
	autosaved []byte
}

func NewSession(s scene.Scene, prefabs *scene.Prefabs, opts Options, logger *logrus.Logger) *Session {
	if opts.Folder == nil {
		opts.Folder = folder.New(nil, logger)
	}
	if opts.AssetTimeout <= 0 {
		opts.AssetTimeout = 30 * time.Second
	}
	tags := scene.NewTags()
	tool := &Tool{}
	envs := environment.NewRegistry(s, tags, tool, logger)
	sens := sensors.NewRegistry(s, tags, prefabs, logger)
	return &Session{
		scene:   s,
		tags:    tags,
		prefabs: prefabs,
		envs:    envs,
		sensors: sens,
		ser:     project.NewSerializer(envs, sens, logger),
		des:     project.NewDeserializer(envs, sens, prefabs, logger),
		latest:  cache.NewLatest(logger),
		tool:    tool,
		opts:    opts,
		logger:  logger,
	}
}

func (s *Session) Environments() *environment.Registry { return s.envs }
func (s *Session) Sensors() *sensors.Registry          { return s.sensors }
func (s *Session) Tool() *Tool                         { return s.tool }
func (s *Session) Selected() string                    { return s.selected }
func (s *Session) Devices() []string                   { return s.latest.Devices() }

// AddSensor places a new sensor of type t with catalog defaults and selects
// it. The latest known reading of its device is applied right away.
func (s *Session) AddSensor(t sensors.Type) (string, error) {
	rec := sensors.NewRecord(t)
	if _, err := s.sensors.Create(rec); err != nil {
		return "", err
	}
	s.selected = rec.ID
	s.applyLatest(rec.ID)
	s.logger.WithFields(logrus.Fields{"sensor": rec.ID, "type": t}).Info("Sensor added")
	return rec.ID, nil
}

// Select marks a sensor as selected. An empty id clears the selection. An
// attached tool follows the selection.
func (s *Session) Select(id string) error {
	if id == "" {
		s.selected = ""
		return nil
	}
	h, ok := s.sensors.Handle(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSensor, id)
	}
	s.selected = id
	if s.tool.Mode() != ToolNone {
		s.tool.attach(h.Node, s.tool.Mode(), id)
	}
	return nil
}

// PickKind tells what a pick resolved to.
type PickKind int

const (
	PickNothing PickKind = iota
	PickSensor
	PickEnvironment
)

// PickResult is the outcome of Pick.
type PickResult struct {
	Kind PickKind
	ID   string
}

// Pick resolves a picked node. Sensors take precedence over environments:
// a sensor becomes selected, an environment becomes active.
func (s *Session) Pick(n scene.NodeID) PickResult {
	if res, ok := s.sensors.ResolveFromPickedNode(n); ok {
		_ = s.Select(res.SensorID)
		return PickResult{Kind: PickSensor, ID: res.SensorID}
	}
	if id, ok := s.envs.ResolveFromPickedNode(n); ok {
		s.selected = ""
		s.envs.SetActive(id)
		if s.tool.Mode() != ToolNone {
			if root, ok := s.envs.ActiveRoot(); ok {
				s.tool.attach(root, s.tool.Mode(), "")
			}
		}
		return PickResult{Kind: PickEnvironment, ID: id}
	}
	return PickResult{}
}

// AttachTool attaches the gizmo to the selected sensor, or to the active
// environment when no sensor is selected.
func (s *Session) AttachTool(mode ToolMode) error {
	if mode == ToolNone {
		s.DetachTool()
		return nil
	}
	if s.selected != "" {
		if h, ok := s.sensors.Handle(s.selected); ok {
			s.tool.attach(h.Node, mode, s.selected)
			return nil
		}
	}
	if root, ok := s.envs.ActiveRoot(); ok {
		s.tool.attach(root, mode, "")
		return nil
	}
	return ErrNoTarget
}

func (s *Session) DetachTool() { s.tool.Detach() }

// DragTo moves the attached node to p, restricted to the tool's mode: move
// changes position, rotate rotation, scale scale. Sensor scales in p are
// base factors. The sensor record is synced immediately.
func (s *Session) DragTo(p transform.Pose) error {
	n := s.tool.Attached()
	if n == scene.NoNode {
		return ErrNoTarget
	}
	factor := 1.0
	if s.tool.SensorID() != "" {
		factor = config.WorldScaleFactor
	}
	cur, err := transform.ReadPose(s.scene, n, factor)
	if err != nil {
		return err
	}
	switch s.tool.Mode() {
	case ToolMove:
		cur.Position = p.Position
	case ToolRotate:
		cur.RotationDeg = p.RotationDeg
	case ToolScale:
		cur.Scale = p.Scale
	}
	if err := transform.ApplyPose(s.scene, n, cur, factor); err != nil {
		return err
	}
	return s.DragUpdate()
}

// DragUpdate copies the live transform of an attached sensor into its
// record. Environments need no sync; their pose is read from the node.
func (s *Session) DragUpdate() error {
	if id := s.tool.SensorID(); id != "" {
		return s.sensors.SyncFromHandle(id)
	}
	return nil
}

// DragEnd finishes a drag.
func (s *Session) DragEnd() error {
	if err := s.DragUpdate(); err != nil {
		return err
	}
	if id := s.tool.SensorID(); id != "" {
		rec, _ := s.sensors.Get(id)
		s.logger.WithFields(logrus.Fields{
			"sensor":   id,
			"position": rec.Position,
			"scale":    rec.Scale,
		}).Debug("Sensor moved")
	}
	return nil
}

// BindProperties applies a property-panel edit to a sensor.
func (s *Session) BindProperties(id string, p sensors.Patch) error {
	if err := s.sensors.Update(id, p); err != nil {
		return err
	}
	s.applyLatest(id)
	return nil
}

// DeleteSensor removes a sensor, detaching the tool first when it points at
// it. Unknown ids report false.
func (s *Session) DeleteSensor(id string) bool {
	if id != "" && s.tool.SensorID() == id {
		s.tool.Detach()
	}
	if s.selected == id {
		s.selected = ""
	}
	return s.sensors.Delete(id, twinerr.NewCollector("editor.delete_sensor", s.logger))
}

// ImportEnvironment loads a mesh binary as a new active environment.
func (s *Session) ImportEnvironment(ctx context.Context, data []byte, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.AssetTimeout)
	defer cancel()
	return s.envs.AddFromBinary(ctx, data, name)
}

// ImportEnvironmentFile reads path and imports it under its base name.
func (s *Session) ImportEnvironmentFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &twinerr.AssetLoadError{Name: path, Err: err}
	}
	if !scene.IsGLB(data) {
		return "", &twinerr.AssetLoadError{Name: path, Err: errors.New("not a binary glTF file")}
	}
	return s.ImportEnvironment(ctx, data, filepath.Base(path))
}

// RemoveEnvironment removes id, or the active environment when id is "".
func (s *Session) RemoveEnvironment(id string) {
	if id == "" {
		s.envs.RemoveActive()
		return
	}
	s.envs.Remove(id)
}

// HandleMessage correlates a telemetry message with a sensor and applies
// it. Repeated identical readings from a device are skipped; readings
// without a device id are matched by topic alone and never deduplicated.
func (s *Session) HandleMessage(msg bus.Message) bool {
	if msg.Reading == nil {
		return false
	}
	if msg.Reading.DeviceID != "" && !s.latest.Changed(msg.Reading) {
		return false
	}
	id, ok := s.sensors.Match(msg.Topic, msg.Reading.DeviceID)
	if !ok {
		return false
	}
	return s.apply(id, msg.Reading)
}

func (s *Session) applyLatest(id string) {
	rec, ok := s.sensors.Get(id)
	if !ok || rec.DeviceID == "" {
		return
	}
	if r, ok := s.latest.Get(rec.DeviceID); ok {
		s.apply(id, &r)
	}
}

func (s *Session) apply(id string, r *sensors.Reading) bool {
	h, ok := s.sensors.Handle(id)
	if !ok {
		return false
	}
	if _, err := s.sensors.ApplyReading(h, r); err != nil {
		s.logger.WithError(err).WithField("sensor", id).Debug("Failed to apply reading")
		return false
	}
	return true
}

// SaveProject writes the project into the project folder, falling back to
// an archive download.
func (s *Session) SaveProject(ctx context.Context) (*folder.SaveResult, error) {
	return folder.SaveProject(ctx, s.opts.Folder, s.opts.Downloader, s.ser, s.opts.Save, s.logger)
}

// ExportArchive writes the project archive to path.
func (s *Session) ExportArchive(ctx context.Context, path string) error {
	data, err := s.ser.SerializeToArchive(ctx)
	if err != nil {
		return err
	}
	if err := folder.WriteFile(path, data); err != nil {
		return err
	}
	s.logger.WithField("path", path).Info("Project archive written")
	return nil
}

// ExportDocument returns the self-contained JSON form of the project.
func (s *Session) ExportDocument(ctx context.Context) (*project.DocumentV3, error) {
	return s.ser.Serialize(ctx)
}

// LoadProject replaces the scene with the project at path: a directory
// holding project.json, a .dtsp archive or a JSON document.
func (s *Session) LoadProject(ctx context.Context, path string) (*project.LoadReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		raw, files, err := folder.ReadProject(ctx, folder.New(folder.DirPicker(path), s.logger))
		if err != nil {
			return nil, err
		}
		s.beforeReplace()
		return s.afterLoad(s.des.DeserializeDocument(ctx, raw, files))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.LoadProjectData(ctx, data)
}

// LoadProjectData is LoadProject for in-memory content.
func (s *Session) LoadProjectData(ctx context.Context, data []byte) (*project.LoadReport, error) {
	s.beforeReplace()
	return s.afterLoad(s.des.Load(ctx, data))
}

// LoadProjectFolder loads from the session's project folder.
func (s *Session) LoadProjectFolder(ctx context.Context) (*project.LoadReport, error) {
	raw, files, err := folder.ReadProject(ctx, s.opts.Folder)
	if err != nil {
		return nil, err
	}
	s.beforeReplace()
	return s.afterLoad(s.des.DeserializeDocument(ctx, raw, files))
}

func (s *Session) beforeReplace() {
	s.tool.Detach()
	s.selected = ""
}

func (s *Session) afterLoad(report *project.LoadReport, err error) (*project.LoadReport, error) {
	if report == nil {
		return nil, err
	}
	// a partial load still gets live readings
	for _, rec := range s.sensors.Records() {
		s.applyLatest(rec.ID)
	}
	return report, err
}

// SaveSceneSensors stores the sensor list in the layout store and, when a
// downloader is configured, also downloads it. It returns the download
// path, if any.
func (s *Session) SaveSceneSensors(ctx context.Context) (string, error) {
	data, err := s.ser.ExportSensors(ctx)
	if err != nil {
		return "", err
	}
	if s.opts.Store != nil {
		if err := s.opts.Store.SaveLayout(ctx, config.SceneSensorsKey, data); err != nil {
			s.logger.WithError(err).Warn("Failed to store scene sensors")
		}
	}
	if s.opts.Downloader == nil {
		return "", nil
	}
	return s.opts.Downloader.Download(config.SceneSensorsName, data)
}

// LoadSceneSensors replaces every sensor with the list in data.
func (s *Session) LoadSceneSensors(ctx context.Context, data []byte) (*project.LoadReport, error) {
	if s.tool.SensorID() != "" {
		s.tool.Detach()
	}
	s.selected = ""
	return s.afterLoad(s.des.ImportSensors(ctx, data))
}

// RestoreSceneSensors loads the sensor list last saved to the layout store.
func (s *Session) RestoreSceneSensors(ctx context.Context) (*project.LoadReport, error) {
	if s.opts.Store == nil {
		return nil, errors.New("no layout store configured")
	}
	l, err := s.opts.Store.LoadLayout(ctx, config.SceneSensorsKey)
	if err != nil {
		return nil, err
	}
	return s.LoadSceneSensors(ctx, l.Payload)
}

// AutosaveSensors stores the sensor list in the layout store when it
// differs from the last autosave. It reports whether anything was written.
func (s *Session) AutosaveSensors(ctx context.Context) (bool, error) {
	if s.opts.Store == nil {
		return false, nil
	}
	data, err := s.ser.ExportSensors(ctx)
	if err != nil {
		return false, err
	}
	if bytes.Equal(data, s.autosaved) {
		return false, nil
	}
	if err := s.opts.Store.SaveLayout(ctx, config.SceneSensorsKey, data); err != nil {
		return false, err
	}
	s.autosaved = data
	return true, nil
}

// ReloadPrefab replaces the prefab of the sensor type named by path
// ("<models>/<type>.glb"). Existing sensors keep their model; new ones use
// the reloaded one.
func (s *Session) ReloadPrefab(ctx context.Context, path string) error {
	typ, err := sensors.ParseType(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.AssetTimeout)
	defer cancel()
	tpl, err := s.scene.LoadTemplate(ctx, data, "glb")
	if err != nil {
		return err
	}
	s.prefabs.Set(string(typ), tpl)
	s.logger.WithField("type", typ).Info("Prefab model reloaded")
	return nil
}
