// Package transform converts between the logical pose stored in records
// (degrees, base scale) and the live node transform (radians, world scale).
package transform

import (
	"fmt"

	"cogentcore.org/core/math32"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/scene"
)

// Vec3 is the logical vector persisted in documents.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func Uniform(v float64) Vec3 { return Vec3{v, v, v} }

func (v Vec3) math() math32.Vector3 {
	return math32.Vec3(float32(v.X), float32(v.Y), float32(v.Z))
}

func fromMath(v math32.Vector3) Vec3 {
	return Vec3{float64(v.X), float64(v.Y), float64(v.Z)}
}

// Average returns the mean of the three components.
func (v Vec3) Average() float64 { return (v.X + v.Y + v.Z) / 3 }

// Pose is the logical transform of a sensor or environment root.
type Pose struct {
	Position    Vec3 `json:"position"`
	RotationDeg Vec3 `json:"rotationEulerDeg"`
	Scale       Vec3 `json:"scale"`
}

// IdentityPose has zero rotation and unit scale.
func IdentityPose() Pose {
	return Pose{Scale: Uniform(1)}
}

// EulerDegrees resolves a rotation variant to per-axis degrees. A quaternion,
// when present, wins over the Euler vector.
func EulerDegrees(r scene.Rotation) Vec3 {
	return fromMath(r.EulerRadians().MulScalar(math32.RadToDegFactor))
}

// RotationFromDegrees builds an Euler rotation in radians with no quaternion.
func RotationFromDegrees(deg Vec3) scene.Rotation {
	return scene.EulerRotation(deg.math().MulScalar(math32.DegToRadFactor))
}

// WorldScale applies the world multiplier to a base factor.
func WorldScale(base float64) float64 {
	return base * config.WorldScaleFactor
}

// BaseScale divides the world multiplier out of a live scale vector,
// averaging its axes and clamping the result to MinScale.
func BaseScale(world Vec3) float64 {
	return clamp(world.Average() / config.WorldScaleFactor)
}

func clamp(v float64) float64 {
	if v < config.MinScale {
		return config.MinScale
	}
	return v
}

// ReadPose reads the live transform of id. Scale is divided by worldFactor
// per axis and clamped. Reading has no side effects.
func ReadPose(s scene.Scene, id scene.NodeID, worldFactor float64) (Pose, error) {
	xf, ok := s.Transform(id)
	if !ok {
		return Pose{}, fmt.Errorf("node %d not found", id)
	}
	sc := fromMath(xf.Scale)
	return Pose{
		Position:    fromMath(xf.Position),
		RotationDeg: EulerDegrees(xf.Rotation),
		Scale: Vec3{
			X: clamp(sc.X / worldFactor),
			Y: clamp(sc.Y / worldFactor),
			Z: clamp(sc.Z / worldFactor),
		},
	}, nil
}

// ApplyPose writes p onto id, multiplying the scale by worldFactor.
func ApplyPose(s scene.Scene, id scene.NodeID, p Pose, worldFactor float64) error {
	return s.SetTransform(id, scene.Transform{
		Position: p.Position.math(),
		Rotation: RotationFromDegrees(p.RotationDeg),
		Scale: math32.Vec3(
			float32(p.Scale.X*worldFactor),
			float32(p.Scale.Y*worldFactor),
			float32(p.Scale.Z*worldFactor),
		),
	})
}
