package project

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/kermanimohammad/SensorPlus-Client/internal/codec"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/environment"
	"github.com/kermanimohammad/SensorPlus-Client/internal/sensors"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
)

// File is one named payload of a bundle.
type File struct {
	Name string
	Data []byte
}

// Bundle is a v3 document whose environments reference sibling files.
type Bundle struct {
	Document *DocumentV3
	Files    []File
}

// Serializer snapshots the two registries into a project document.
type Serializer struct {
	envs    *environment.Registry
	sensors *sensors.Registry
	logger  *logrus.Logger
	now     func() time.Time
}

func NewSerializer(envs *environment.Registry, sens *sensors.Registry, logger *logrus.Logger) *Serializer {
	return &Serializer{envs: envs, sensors: sens, logger: logger, now: time.Now}
}

// Serialize builds a self-contained v3 document with every environment
// binary embedded as base64. Sensor records are synced from their handles
// first.
func (s *Serializer) Serialize(ctx context.Context) (*DocumentV3, error) {
	doc, err := s.document(ctx)
	if err != nil {
		return nil, err
	}
	for i, e := range s.envs.All() {
		doc.Environments[i].DataB64 = codec.Encode(e.Source)
	}
	return doc, nil
}

// Bundle builds a v3 document whose environments point at per-environment
// GLB files, plus those files.
func (s *Serializer) Bundle(ctx context.Context) (*Bundle, error) {
	doc, err := s.document(ctx)
	if err != nil {
		return nil, err
	}
	b := &Bundle{Document: doc}
	for i, e := range s.envs.All() {
		name := EnvironmentFileName(e.Name, e.ID)
		doc.Environments[i].File = name
		b.Files = append(b.Files, File{Name: name, Data: e.Source})
	}
	return b, nil
}

// SerializeToArchive packs Bundle into a DEFLATE zip with project.json at
// the root.
func (s *Serializer) SerializeToArchive(ctx context.Context) ([]byte, error) {
	b, err := s.Bundle(ctx)
	if err != nil {
		return nil, err
	}
	return b.Archive()
}

func (s *Serializer) document(ctx context.Context) (*DocumentV3, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.sensors.SyncAll(); err != nil {
		// a sensor whose handle went away keeps its last known record
		s.logger.WithError(err).Warn("Some sensors could not be synced before saving")
	}

	doc := &DocumentV3{
		Kind:        KindMeta,
		Version:     CurrentVersion,
		SavedAt:     s.now().UTC().Format(time.RFC3339Nano),
		SensorScale: ScaleBase,
	}
	for _, e := range s.envs.All() {
		pose, err := s.envs.Pose(e.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read environment %s: %w", e.ID, err)
		}
		rot := pose.RotationDeg
		doc.Environments = append(doc.Environments, EnvironmentV3{
			ID:           e.ID,
			OriginalName: e.Name,
			Transform: FullTransform{
				Position:         pose.Position,
				RotationEulerDeg: &rot,
				Scale:            VectorScale(pose.Scale),
			},
		})
	}
	for _, r := range s.sensors.Records() {
		doc.Sensors = append(doc.Sensors, sensorToWire(r))
	}

	s.logger.WithFields(logrus.Fields{
		"environments": len(doc.Environments),
		"sensors":      len(doc.Sensors),
	}).Debug("Project serialized")
	return doc, nil
}

func sensorToWire(r sensors.Record) SensorWire {
	pose := r.Pose()
	rot := pose.RotationDeg
	w := SensorWire{
		ID:       r.ID,
		Type:     string(r.Type),
		Label:    r.Label,
		DeviceID: r.DeviceID,
		Color:    r.Color,
		Transform: &FullTransform{
			Position:         pose.Position,
			RotationEulerDeg: &rot,
			Scale:            VectorScale(pose.Scale),
		},
	}
	if r.Topic != "" {
		topic := r.Topic
		w.Topic = &topic
	}
	return w
}

// Archive writes the bundle as a zip: every file, then the indented
// project document.
func (b *Bundle) Archive() ([]byte, error) {
	doc, err := json.MarshalIndent(b.Document, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode project document: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := append(append([]File(nil), b.Files...), File{Name: config.ProjectDocumentName, Data: doc})
	for _, f := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: time.Now()})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

var unsafeName = regexp.MustCompile(`[/\\?%*:|"<>]`)

// EnvironmentFileName returns "<sanitized base name>-<id>.glb". The
// extension of name is dropped; an empty name becomes "environment".
func EnvironmentFileName(name, id string) string {
	if name == "" {
		name = "environment"
	}
	if ext := path.Ext(name); ext != "" && len(ext) < len(name) {
		name = strings.TrimSuffix(name, ext)
	}
	return fmt.Sprintf("%s-%s.glb", unsafeName.ReplaceAllString(name, "_"), id)
}
