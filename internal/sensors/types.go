package sensors

import (
	"fmt"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Type is the closed set of sensor kinds the editor can place.
type Type string

const (
	Temperature Type = "temperature"
	Humidity    Type = "humidity"
	CO2         Type = "co2"
	Light       Type = "light"
	Solar       Type = "solar"
)

// Range is the fixed normalisation interval for a continuous reading.
type Range struct {
	Min, Max float64
}

// Normalize clamps v into the range and maps it onto [0,1].
func (r Range) Normalize(v float64) float64 {
	if v < r.Min {
		v = r.Min
	}
	if v > r.Max {
		v = r.Max
	}
	return (v - r.Min) / (r.Max - r.Min)
}

// TypeDefinition provides metadata for a sensor type.
type TypeDefinition struct {
	Type        Type
	EnglishName string
	Unit        string
	Palette     string  // default record colour
	Range       Range   // zero for binary kinds
	Pulse       float64 // size pulse amplitude at full scale
	EmissiveLo  string  // emissive colour at the bottom of the range, empty = 0.4 × EmissiveHi
	EmissiveHi  string
}

// AllTypes defines the metadata for every placeable sensor type.
var AllTypes = []TypeDefinition{
	{Temperature, "Temperature", "°C", "#ff5a5f", Range{15, 35}, 0.15, "", "#ff5a5f"},
	{Humidity, "Humidity", "%", "#00b894", Range{0, 100}, 0.15, "", "#00b894"},
	{CO2, "CO₂", "ppm", "#3a86ff", Range{400, 2000}, 0.15, "", "#3a86ff"},
	{Light, "Light", "W", "#ffd6a5", Range{}, 0, "", ""},
	{Solar, "Solar", "W", "#ffd166", Range{0, 1000}, 0.25, "#996f00", "#ffd166"},
}

var typeIndex = func() map[Type]TypeDefinition {
	m := make(map[Type]TypeDefinition, len(AllTypes))
	for _, d := range AllTypes {
		m[d.Type] = d
	}
	return m
}()

// ParseType validates s against the catalog.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := typeIndex[t]; !ok {
		return "", fmt.Errorf("unknown sensor type %q", s)
	}
	return t, nil
}

// Definition returns the catalog entry for t.
func Definition(t Type) (TypeDefinition, bool) {
	d, ok := typeIndex[t]
	return d, ok
}

// TypeNames lists the catalog in order, as plain strings.
func TypeNames() []string {
	out := make([]string, len(AllTypes))
	for i, d := range AllTypes {
		out[i] = string(d.Type)
	}
	return out
}

// Palette returns the default colour for t.
func Palette(t Type) string {
	return typeIndex[t].Palette
}

// emissiveBounds returns the colours blended between for normalised 0 and 1.
func (d TypeDefinition) emissiveBounds() (lo, hi colorful.Color) {
	hi, err := colorful.Hex(d.EmissiveHi)
	if err != nil {
		hi, _ = colorful.Hex("#aaaaaa")
	}
	if d.EmissiveLo != "" {
		if lo, err = colorful.Hex(d.EmissiveLo); err == nil {
			return lo, hi
		}
	}
	return colorful.Color{R: hi.R * 0.4, G: hi.G * 0.4, B: hi.B * 0.4}, hi
}
