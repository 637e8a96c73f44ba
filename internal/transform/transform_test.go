package transform

import (
	"testing"

	"cogentcore.org/core/math32"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/scene"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertVec(t *testing.T, want, got Vec3, delta float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, delta, "x")
	assert.InDelta(t, want.Y, got.Y, delta, "y")
	assert.InDelta(t, want.Z, got.Z, delta, "z")
}

func TestEulerDegreesPrefersQuaternion(t *testing.T) {
	q := math32.NewQuatEuler(math32.Vec3(0, math32.DegToRad(90), 0))
	r := scene.Rotation{Quat: &q, Euler: math32.Vec3(1, 1, 1)}
	assertVec(t, Vec3{0, 90, 0}, EulerDegrees(r), 1e-3)

	r = scene.EulerRotation(math32.Vec3(math32.DegToRad(10), math32.DegToRad(20), math32.DegToRad(30)))
	assertVec(t, Vec3{10, 20, 30}, EulerDegrees(r), 1e-3)
}

func TestRotationFromDegreesClearsQuaternion(t *testing.T) {
	r := RotationFromDegrees(Vec3{0, 180, 0})
	assert.Nil(t, r.Quat)
	assert.InDelta(t, math32.Pi, r.Euler.Y, 1e-5)
}

func TestScaleConversions(t *testing.T) {
	assert.InDelta(t, 2*config.WorldScaleFactor, WorldScale(2), 1e-9)
	assert.InDelta(t, 2.0, BaseScale(Uniform(WorldScale(2))), 1e-9)
	assert.InDelta(t, config.MinScale, BaseScale(Uniform(0)), 1e-12)
	assert.InDelta(t, config.MinScale, BaseScale(Vec3{-1, -1, -1}), 1e-12)
}

func TestApplyThenReadPoseRoundTrips(t *testing.T) {
	m := scene.NewMemory(logrus.New())
	id := m.NewTransformNode("root")
	p := Pose{
		Position:    Vec3{1.5, -2, 3.25},
		RotationDeg: Vec3{10, 20, 30},
		Scale:       Vec3{1, 2, 3},
	}
	require.NoError(t, ApplyPose(m, id, p, config.WorldScaleFactor))

	xf, ok := m.Transform(id)
	require.True(t, ok)
	assert.InDelta(t, 15, xf.Scale.Z, 1e-5)

	got, err := ReadPose(m, id, config.WorldScaleFactor)
	require.NoError(t, err)
	assertVec(t, p.Position, got.Position, 1e-5)
	assertVec(t, p.RotationDeg, got.RotationDeg, 1e-3)
	assertVec(t, p.Scale, got.Scale, 1e-5)

	again, err := ReadPose(m, id, config.WorldScaleFactor)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	_, err = ReadPose(m, 999, 1)
	assert.Error(t, err)
}
