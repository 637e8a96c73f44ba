package sensors

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/transform"
)

// Record is the logical, persisted description of a placed sensor.
type Record struct {
	ID       string          `json:"id"`
	Type     Type            `json:"type"`
	Label    string          `json:"label"`
	DeviceID string          `json:"deviceId"`
	Topic    string          `json:"topic,omitempty"`
	Color    string          `json:"color,omitempty"`
	Scale    float64         `json:"scale"`
	Rotation *transform.Vec3 `json:"rotationEulerDeg,omitempty"`
	Position transform.Vec3  `json:"position"`
}

// Pose returns the record's logical transform with a uniform base scale.
func (r *Record) Pose() transform.Pose {
	p := transform.Pose{Position: r.Position, Scale: transform.Uniform(r.Scale)}
	if r.Rotation != nil {
		p.RotationDeg = *r.Rotation
	}
	return p
}

// Patch carries the property-panel fields. Empty strings and a zero scale
// keep the current value; Topic is always replaced because clearing it is a
// valid edit.
type Patch struct {
	Label    string
	DeviceID string
	Topic    string
	Color    string
	Scale    float64
}

// NewID returns a short sensor id of the form "s-xxxxxx".
func NewID() string {
	return "s-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// NewRecord builds a record with catalog defaults for t: generated ids, a
// position just above the ground plane and the palette colour.
func NewRecord(t Type) Record {
	id := NewID()
	prefix := string(t)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return Record{
		ID:       id,
		Type:     t,
		Label:    fmt.Sprintf("%s-%s", t, strings.TrimPrefix(id, "s-")),
		DeviceID: fmt.Sprintf("%s-%d", prefix, 100+rand.IntN(900)),
		Position: transform.Vec3{Y: 0.7},
		Color:    Palette(t),
		Scale:    config.DefaultSensorScale,
	}
}

// Normalize fills the documented defaults for fields absent in older
// documents: palette colour and unit scale. An unknown type is an error.
func (r *Record) Normalize() error {
	t, err := ParseType(string(r.Type))
	if err != nil {
		return err
	}
	r.Type = t
	if r.Color == "" {
		r.Color = Palette(t)
	}
	if r.Scale <= 0 {
		r.Scale = config.DefaultSensorScale
	}
	if r.ID == "" {
		r.ID = NewID()
	}
	return nil
}

// EnabledTypes returns the sensor types whose prefab models should be
// loaded. SENSORPLUS_SENSOR_TYPES may narrow the catalog with a comma
// separated list ("temperature,co2"); unknown names are skipped and an empty
// result falls back to the full catalog.
func EnabledTypes() []string {
	raw := os.Getenv("SENSORPLUS_SENSOR_TYPES")
	if raw == "" {
		return TypeNames()
	}

	var out []string
	for _, p := range strings.Split(raw, ",") {
		t, err := ParseType(p)
		if err != nil {
			continue
		}
		out = append(out, string(t))
	}

	if len(out) == 0 {
		return TypeNames()
	}
	return out
}
