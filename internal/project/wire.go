// Package project reads and writes the versioned project document and its
// zip archive form.
package project

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kermanimohammad/SensorPlus-Client/internal/transform"
)

const (
	KindLegacy = "digital-twin-project"
	KindMeta   = "digital-twin-project-meta"

	CurrentVersion = 3

	// Sensor scale conventions of v3 documents. Documents that do not say
	// carry the handle's world scale.
	ScaleBase  = "base"
	ScaleWorld = "world"
)

type Vec3 = transform.Vec3

// ScaleValue accepts either a bare number (uniform) or an {x,y,z} object.
// It always marshals as an object.
type ScaleValue struct {
	Vec3
	Uniform bool `json:"-"`
}

func UniformScale(v float64) *ScaleValue {
	return &ScaleValue{Vec3: transform.Uniform(v), Uniform: true}
}

func VectorScale(v Vec3) *ScaleValue {
	return &ScaleValue{Vec3: v}
}

func (s *ScaleValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		s.Uniform = false
		return json.Unmarshal(b, &s.Vec3)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("scale must be a number or {x,y,z}: %w", err)
	}
	s.Vec3 = transform.Uniform(f)
	s.Uniform = true
	return nil
}

func (s ScaleValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Vec3)
}

// Connection is the broker block of v1/v2 documents.
type Connection struct {
	URL   string `json:"url"`
	Topic string `json:"topic"`
	User  string `json:"user,omitempty"`
	Pass  string `json:"pass,omitempty"`
}

// LegacyTransform is the v1/v2 environment transform.
type LegacyTransform struct {
	Position     Vec3        `json:"position"`
	RotationYDeg float64     `json:"rotationYDeg"`
	Scale        *ScaleValue `json:"scale,omitempty"`
}

// FullTransform is the v3 transform used by environments and sensors.
type FullTransform struct {
	Position         Vec3        `json:"position"`
	RotationEulerDeg *Vec3       `json:"rotationEulerDeg,omitempty"`
	Scale            *ScaleValue `json:"scale,omitempty"`
}

// LegacyEnvironment is an environment of a v1/v2 document; the mesh is
// always embedded.
type LegacyEnvironment struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	DataB64   string          `json:"dataB64"`
	Transform LegacyTransform `json:"transform"`
}

// EnvironmentV3 references its mesh either inline (DataB64) or by an
// archive-relative file name.
type EnvironmentV3 struct {
	ID           string        `json:"id"`
	OriginalName string        `json:"originalName"`
	File         string        `json:"file,omitempty"`
	DataB64      string        `json:"dataB64,omitempty"`
	Transform    FullTransform `json:"transform"`
}

// SensorWire tolerates both the flat record shape (v1/v2 and scene-only
// exports) and the v3 shape with a nested transform.
type SensorWire struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Label    string  `json:"label"`
	DeviceID string  `json:"deviceId"`
	Topic    *string `json:"topic"`
	Color    string  `json:"color,omitempty"`

	Position         *Vec3       `json:"position,omitempty"`
	RotationEulerDeg *Vec3       `json:"rotationEulerDeg,omitempty"`
	Scale            *ScaleValue `json:"scale,omitempty"`

	Transform *FullTransform `json:"transform,omitempty"`
}

// DocumentV1 holds a single optional environment.
type DocumentV1 struct {
	Kind        string             `json:"kind"`
	Version     int                `json:"version"`
	Connection  *Connection        `json:"connection,omitempty"`
	Sensors     []SensorWire       `json:"sensors"`
	Environment *LegacyEnvironment `json:"environment,omitempty"`
}

// DocumentV2 holds an environment list with Y-only rotation.
type DocumentV2 struct {
	Kind         string              `json:"kind"`
	Version      int                 `json:"version"`
	Connection   *Connection         `json:"connection,omitempty"`
	Sensors      []SensorWire        `json:"sensors"`
	Environments []LegacyEnvironment `json:"environments"`
}

// DocumentV3 is the current shape.
type DocumentV3 struct {
	Kind         string          `json:"kind"`
	Version      int             `json:"version"`
	SavedAt      string          `json:"savedAt"`
	SensorScale  string          `json:"sensorScale,omitempty"`
	Environments []EnvironmentV3 `json:"environments"`
	Sensors      []SensorWire    `json:"sensors"`
}

// probe is decoded first to pick a version when the document does not
// name a known one.
type probe struct {
	Version      *int            `json:"version"`
	Environment  json.RawMessage `json:"environment"`
	Environments []struct {
		Transform struct {
			RotationEulerDeg json.RawMessage `json:"rotationEulerDeg"`
			Scale            json.RawMessage `json:"scale"`
		} `json:"transform"`
	} `json:"environments"`
}

func (p *probe) version() int {
	if p.Version != nil {
		if _, known := decoders[*p.Version]; known {
			return *p.Version
		}
	}
	if len(p.Environment) > 0 && string(p.Environment) != "null" {
		return 1
	}
	for _, e := range p.Environments {
		if len(e.Transform.RotationEulerDeg) > 0 {
			return 3
		}
		if s := bytes.TrimSpace(e.Transform.Scale); len(s) > 0 && s[0] == '{' {
			return 3
		}
	}
	return 2
}
