package project

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/h2non/filetype"
	"github.com/kermanimohammad/SensorPlus-Client/internal/codec"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/environment"
	"github.com/kermanimohammad/SensorPlus-Client/internal/scene"
	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
	"github.com/kermanimohammad/SensorPlus-Client/internal/transform"
	"github.com/kermanimohammad/SensorPlus-Client/internal/twinerr"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
)

// LoadReport summarises a load. Warnings hold every entry that was skipped
// or could not be cleaned up; none of them aborted the load.
type LoadReport struct {
	Version      int
	Environments int
	Sensors      int
	Connection   *Connection
	Warnings     []error
}

// plan is a version-independent view of a parsed document.
type plan struct {
	version    int
	connection *Connection
	envs       []envPlan
	sensors    []sensors.Record
	rejected   []error
}

type envPlan struct {
	id      string
	name    string
	file    string
	dataB64 string
	pose    transform.Pose
}

type decoder func(raw []byte) (*plan, error)

var decoders map[int]decoder

func init() {
	decoders = map[int]decoder{
		1: decodeV1,
		2: decodeV2,
		3: decodeV3,
	}
}

func decodeV1(raw []byte) (*plan, error) {
	var doc DocumentV1
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	p := &plan{version: 1, connection: doc.Connection}
	if doc.Environment != nil {
		p.envs = append(p.envs, legacyEnv(*doc.Environment, false))
	}
	p.addSensors(doc.Sensors, false)
	return p, nil
}

func decodeV2(raw []byte) (*plan, error) {
	var doc DocumentV2
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	p := &plan{version: 2, connection: doc.Connection}
	for _, e := range doc.Environments {
		p.envs = append(p.envs, legacyEnv(e, true))
	}
	p.addSensors(doc.Sensors, false)
	return p, nil
}

func decodeV3(raw []byte) (*plan, error) {
	var doc DocumentV3
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	p := &plan{version: 3}
	for _, e := range doc.Environments {
		pose := transform.Pose{Position: e.Transform.Position, Scale: transform.Uniform(1)}
		if e.Transform.RotationEulerDeg != nil {
			pose.RotationDeg = *e.Transform.RotationEulerDeg
		}
		if e.Transform.Scale != nil {
			pose.Scale = e.Transform.Scale.Vec3
		}
		p.envs = append(p.envs, envPlan{
			id:      e.ID,
			name:    e.OriginalName,
			file:    e.File,
			dataB64: e.DataB64,
			pose:    pose,
		})
	}
	p.addSensors(doc.Sensors, doc.SensorScale != ScaleBase)
	return p, nil
}

// legacyEnv maps a v1/v2 environment. Rotation is about Y only; v2 may
// carry the scale as an object of which only x is used.
func legacyEnv(e LegacyEnvironment, list bool) envPlan {
	scale := 1.0
	if e.Transform.Scale != nil {
		scale = e.Transform.Scale.X
	}
	if scale <= 0 {
		scale = 1
	}
	name := e.Name
	if name == "" && !list {
		name = "environment"
	}
	return envPlan{
		id:      e.ID,
		name:    name,
		dataB64: e.DataB64,
		pose: transform.Pose{
			Position:    e.Transform.Position,
			RotationDeg: Vec3{Y: e.Transform.RotationYDeg},
			Scale:       transform.Uniform(scale),
		},
	}
}

func (p *plan) addSensors(ws []SensorWire, worldScale bool) {
	for _, w := range ws {
		rec, err := w.Record(worldScale)
		if err != nil {
			p.rejected = append(p.rejected, err)
			continue
		}
		p.sensors = append(p.sensors, rec)
	}
}

// Record converts a wire sensor into a normalised record. worldScale
// divides a nested transform scale by the world multiplier.
func (w SensorWire) Record(worldScale bool) (sensors.Record, error) {
	rec := sensors.Record{
		ID:       w.ID,
		Type:     sensors.Type(w.Type),
		Label:    w.Label,
		DeviceID: w.DeviceID,
		Color:    w.Color,
	}
	if w.Topic != nil {
		rec.Topic = *w.Topic
	}

	switch {
	case w.Transform != nil:
		rec.Position = w.Transform.Position
		if w.Transform.RotationEulerDeg != nil {
			rot := *w.Transform.RotationEulerDeg
			rec.Rotation = &rot
		}
		if w.Transform.Scale != nil {
			if worldScale {
				rec.Scale = transform.BaseScale(w.Transform.Scale.Vec3)
			} else {
				rec.Scale = w.Transform.Scale.Average()
			}
		}
	default:
		if w.Position != nil {
			rec.Position = *w.Position
		}
		if w.RotationEulerDeg != nil {
			rot := *w.RotationEulerDeg
			rec.Rotation = &rot
		}
		if w.Scale != nil {
			rec.Scale = w.Scale.Average()
		}
	}

	if err := rec.Normalize(); err != nil {
		return sensors.Record{}, &twinerr.FormatError{What: fmt.Sprintf("sensor %q", w.ID), Err: err}
	}
	return rec, nil
}

// parse picks a decoder from the declared version, falling back to
// structural inference for missing or unknown versions.
func parse(raw []byte) (*plan, error) {
	var pr probe
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, &twinerr.FormatError{What: "project document", Err: err}
	}
	p, err := decoders[pr.version()](raw)
	if err != nil {
		return nil, &twinerr.FormatError{What: "project document", Err: err}
	}
	return p, nil
}

// Deserializer replaces the live scene with the content of a document.
type Deserializer struct {
	envs    *environment.Registry
	sensors *sensors.Registry
	prefabs *scene.Prefabs
	logger  *logrus.Logger
}

func NewDeserializer(envs *environment.Registry, sens *sensors.Registry, prefabs *scene.Prefabs, logger *logrus.Logger) *Deserializer {
	return &Deserializer{envs: envs, sensors: sens, prefabs: prefabs, logger: logger}
}

// Load accepts either a zip archive or a JSON document.
func (d *Deserializer) Load(ctx context.Context, data []byte) (*LoadReport, error) {
	if filetype.Is(data, "zip") {
		return d.DeserializeArchive(ctx, data)
	}
	return d.Deserialize(ctx, data)
}

// Deserialize loads a self-contained JSON document of any version.
func (d *Deserializer) Deserialize(ctx context.Context, raw []byte) (*LoadReport, error) {
	return d.DeserializeDocument(ctx, raw, nil)
}

// DeserializeDocument loads raw, resolving file references against files.
// The document is parsed completely before the scene is cleared, so a
// malformed document leaves everything in place.
func (d *Deserializer) DeserializeDocument(ctx context.Context, raw []byte, files map[string][]byte) (*LoadReport, error) {
	p, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return d.apply(ctx, p, files)
}

// DeserializeBundle loads a document together with its sibling files.
func (d *Deserializer) DeserializeBundle(ctx context.Context, b *Bundle) (*LoadReport, error) {
	raw, err := json.Marshal(b.Document)
	if err != nil {
		return nil, fmt.Errorf("failed to encode project document: %w", err)
	}
	files := make(map[string][]byte, len(b.Files))
	for _, f := range b.Files {
		files[f.Name] = f.Data
	}
	return d.DeserializeDocument(ctx, raw, files)
}

// DeserializeArchive loads a zip produced by SerializeToArchive.
func (d *Deserializer) DeserializeArchive(ctx context.Context, data []byte) (*LoadReport, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &twinerr.CorruptArchiveError{Err: err}
	}

	var raw []byte
	files := make(map[string][]byte)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		b, err := readZipFile(f)
		if err != nil {
			return nil, &twinerr.CorruptArchiveError{Entry: f.Name, Err: err}
		}
		if f.Name == config.ProjectDocumentName {
			raw = b
			continue
		}
		files[f.Name] = b
	}
	if raw == nil {
		return nil, &twinerr.CorruptArchiveError{Entry: config.ProjectDocumentName}
	}
	return d.DeserializeDocument(ctx, raw, files)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// apply replaces the scene with p. Cancellation is only honoured before the
// registries are cleared; once clearing starts the load runs to completion.
func (d *Deserializer) apply(ctx context.Context, p *plan, files map[string][]byte) (*LoadReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	errs := twinerr.NewCollector("project.load", d.logger)
	for _, err := range p.rejected {
		errs.Add(err)
	}
	errs.Merge(d.sensors.ClearAll())
	errs.Merge(d.envs.ClearAll())

	report := &LoadReport{Version: p.version, Connection: p.connection}
	for i, e := range p.envs {
		ref := e.id
		if ref == "" {
			ref = fmt.Sprintf("#%d", i)
		}
		data, err := e.resolve(ref, files)
		if err != nil {
			errs.Add(err)
			continue
		}
		// the first environment that loads becomes active
		if _, err := d.envs.AddFromRecord(ctx, data, e.name, e.pose, d.envs.ActiveID() == ""); err != nil {
			errs.Add(err)
			continue
		}
		report.Environments++
	}

	if err := d.prefabs.Wait(ctx); err != nil {
		report.Warnings = errs.Errors()
		return report, fmt.Errorf("waiting for prefab models: %w", err)
	}
	for _, rec := range p.sensors {
		if _, err := d.sensors.Create(rec); err != nil {
			errs.Add(err)
			continue
		}
		report.Sensors++
	}

	report.Warnings = errs.Errors()
	d.logger.WithFields(logrus.Fields{
		"version":      p.version,
		"environments": report.Environments,
		"sensors":      report.Sensors,
		"warnings":     len(report.Warnings),
	}).Info("Project loaded")
	return report, nil
}

func (e envPlan) resolve(ref string, files map[string][]byte) ([]byte, error) {
	switch {
	case e.dataB64 != "":
		b, err := codec.Decode(e.dataB64)
		if err != nil {
			return nil, &twinerr.MissingAssetWarning{EnvironmentID: ref, Ref: "dataB64", Err: err}
		}
		return b, nil
	case e.file != "":
		b, ok := files[e.file]
		if !ok {
			return nil, &twinerr.MissingAssetWarning{EnvironmentID: ref, Ref: e.file}
		}
		return b, nil
	default:
		return nil, &twinerr.MissingAssetWarning{EnvironmentID: ref}
	}
}
