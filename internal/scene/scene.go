// Package scene defines the narrow rendering-collaborator contract consumed
// by the registries, plus a headless in-memory implementation.
package scene

import (
	"context"

	"cogentcore.org/core/math32"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// NodeID is a stable identity for a node owned by the rendering
// collaborator. NoNode marks the top of an ownership chain.
type NodeID uint64

const NoNode NodeID = 0

// Rotation is the collaborator's rotation representation: a node stores
// either a quaternion or an Euler vector in radians. When Quat is non-nil it
// takes precedence over Euler.
type Rotation struct {
	Quat  *math32.Quat
	Euler math32.Vector3
}

// EulerRotation returns a rotation stored as Euler angles (radians).
func EulerRotation(rad math32.Vector3) Rotation {
	return Rotation{Euler: rad}
}

// QuatRotation returns a rotation stored as a quaternion.
func QuatRotation(q math32.Quat) Rotation {
	return Rotation{Quat: &q}
}

// EulerRadians resolves the variant to XYZ Euler angles in radians.
func (r Rotation) EulerRadians() math32.Vector3 {
	if r.Quat != nil {
		return r.Quat.ToEuler()
	}
	return r.Euler
}

// Quaternion resolves the variant to a quaternion.
func (r Rotation) Quaternion() math32.Quat {
	if r.Quat != nil {
		return *r.Quat
	}
	return math32.NewQuatEuler(r.Euler)
}

// Transform is a node's local transform.
type Transform struct {
	Position math32.Vector3
	Rotation Rotation
	Scale    math32.Vector3
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Scale: math32.Vec3(1, 1, 1)}
}

// Template is a parsed asset that can be instantiated repeatedly without
// being part of the rendered scene itself.
type Template interface {
	Name() string
}

// Scene is everything the core needs from the rendering engine.
type Scene interface {
	// Load parses data and adds the produced subtree to the scene, returning
	// its top-level nodes.
	Load(ctx context.Context, data []byte, hint string) ([]NodeID, error)
	// LoadTemplate parses data without adding anything to the scene.
	LoadTemplate(ctx context.Context, data []byte, hint string) (Template, error)
	// Instantiate clones a template into the scene; node names get prefix.
	Instantiate(t Template, prefix string) ([]NodeID, error)

	NewTransformNode(name string) NodeID
	// NewAnchor creates an invisible box mesh of the given edge size.
	NewAnchor(name string, size float32) NodeID
	// NewMarker creates a sphere mesh of the given diameter.
	NewMarker(name string, diameter float32) NodeID

	// SetParent reparents child, keeping its local transform. parent may be
	// NoNode to move child to the scene root.
	SetParent(child, parent NodeID) error
	Parent(id NodeID) NodeID
	// ChildMeshes returns every mesh below id, excluding id itself.
	ChildMeshes(id NodeID) []NodeID
	IsMesh(id NodeID) bool
	// HierarchyBounds returns the world-space bounds of all meshes in the
	// subtree rooted at id.
	HierarchyBounds(id NodeID) math32.Box3

	Transform(id NodeID) (Transform, bool)
	SetTransform(id NodeID, t Transform) error

	SetPickable(id NodeID, pickable bool)
	SetRenderingGroup(id NodeID, group int)
	SetVisibility(id NodeID, v float32)
	SetEmissive(id NodeID, c colorful.Color)

	// Dispose removes id and its whole subtree from the scene.
	Dispose(id NodeID) error
}
