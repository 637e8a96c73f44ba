package sensors

import (
	"encoding/json"
	"fmt"
)

// Reading is a telemetry payload. Which fields are set depends on Kind:
// value+unit for temperature/humidity/co2, on+powerW for light and
// powerW+voltage+current for solar.
type Reading struct {
	DeviceID string  `json:"deviceId,omitempty"`
	Kind     Type    `json:"kind"`
	RoomID   string  `json:"roomId,omitempty"`
	TS       float64 `json:"ts"`

	Value   *float64 `json:"value,omitempty"`
	Unit    string   `json:"unit,omitempty"`
	On      *bool    `json:"on,omitempty"`
	PowerW  *float64 `json:"powerW,omitempty"`
	Voltage *float64 `json:"voltage,omitempty"`
	Current *float64 `json:"current,omitempty"`
}

// ParseReading decodes a telemetry payload and checks that the fields
// required by its kind are present.
func ParseReading(payload []byte) (*Reading, error) {
	var r Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reading: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the kind-specific field set.
func (r *Reading) Validate() error {
	switch r.Kind {
	case Temperature, Humidity, CO2:
		if r.Value == nil {
			return fmt.Errorf("%s reading without value", r.Kind)
		}
	case Light:
		if r.On == nil {
			return fmt.Errorf("light reading without on flag")
		}
	case Solar:
		if r.PowerW == nil {
			return fmt.Errorf("solar reading without powerW")
		}
	default:
		return fmt.Errorf("unknown reading kind %q", r.Kind)
	}
	return nil
}

// Continuous reports whether the kind carries a value that is normalised
// into a range rather than an on/off state.
func (r *Reading) Continuous() bool {
	return r.Kind != Light
}

// Magnitude returns the number that drives normalisation for the kind.
func (r *Reading) Magnitude() float64 {
	switch r.Kind {
	case Solar, Light:
		if r.PowerW != nil {
			return *r.PowerW
		}
	default:
		if r.Value != nil {
			return *r.Value
		}
	}
	return 0
}

// Summary renders the reading the way the device popup shows it.
func (r *Reading) Summary() string {
	switch r.Kind {
	case Light:
		state := "OFF"
		if r.On != nil && *r.On {
			state = "ON"
		}
		return fmt.Sprintf("light: %s | %.1f W", state, deref(r.PowerW))
	case Solar:
		return fmt.Sprintf("solar: %.1f W (V=%.2f, I=%.2f)", deref(r.PowerW), deref(r.Voltage), deref(r.Current))
	default:
		return fmt.Sprintf("%s: %.2f %s", r.Kind, deref(r.Value), r.Unit)
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
