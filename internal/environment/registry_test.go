package environment

import (
	"context"
	"errors"
	"testing"

	"github.com/kermanimohammad/SensorPlus-Client/internal/scene"
	"github.com/kermanimohammad/SensorPlus-Client/internal/transform"
	"github.com/kermanimohammad/SensorPlus-Client/internal/twinerr"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	node     scene.NodeID
	detaches int
}

func (f *fakeTool) Attached() scene.NodeID { return f.node }
func (f *fakeTool) Detach() {
	f.node = scene.NoNode
	f.detaches++
}

func building(name string) []byte {
	return scene.BuildGLB(
		scene.MeshSpec{Name: name, Empty: true, Children: []int{1, 2}},
		scene.MeshSpec{Name: name + "-floor", Min: [3]float32{-5, 0, -5}, Max: [3]float32{5, 0.2, 5}, Children: []int{3}},
		scene.MeshSpec{Name: name + "-walls", Min: [3]float32{-5, 0, -5}, Max: [3]float32{5, 3, 5}},
		scene.MeshSpec{Name: name + "-rug", Min: [3]float32{-1, 0.2, -1}, Max: [3]float32{1, 0.21, 1}},
	)
}

func newRegistry(t *testing.T) (*Registry, *scene.Memory, *fakeTool) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	m := scene.NewMemory(logger)
	tool := &fakeTool{}
	return NewRegistry(m, scene.NewTags(), tool, logger), m, tool
}

func TestPickedDescendantResolvesToEntry(t *testing.T) {
	r, m, _ := newRegistry(t)
	id, err := r.AddFromBinary(context.Background(), building("a"), "a.glb")
	require.NoError(t, err)

	root, ok := r.ActiveRoot()
	require.True(t, ok)
	meshes := m.ChildMeshes(root)
	require.Len(t, meshes, 3)
	for _, n := range meshes {
		got, ok := r.ResolveFromPickedNode(n)
		require.True(t, ok)
		assert.Equal(t, id, got)
	}

	stray := m.NewMarker("stray", 1)
	_, ok = r.ResolveFromPickedNode(stray)
	assert.False(t, ok)
}

func TestImportedNodesLiveUnderRootWithIdentityTransform(t *testing.T) {
	r, m, _ := newRegistry(t)
	_, err := r.AddFromBinary(context.Background(), building("a"), "a.glb")
	require.NoError(t, err)

	e := r.All()[0]
	for _, n := range e.Nodes {
		assert.Equal(t, e.Root, m.Parent(n))
	}
	xf, ok := m.Transform(e.Root)
	require.True(t, ok)
	assert.Equal(t, scene.Identity().Scale, xf.Scale)
	assert.Equal(t, building("a"), e.Source)
	assert.NotContains(t, m.Roots(), e.Nodes[0])
}

func TestRemoveActiveWalksBackThroughEntries(t *testing.T) {
	r, m, _ := newRegistry(t)
	ctx := context.Background()
	a, err := r.AddFromBinary(ctx, building("a"), "a.glb")
	require.NoError(t, err)
	b, err := r.AddFromBinary(ctx, building("b"), "b.glb")
	require.NoError(t, err)
	assert.Equal(t, b, r.ActiveID())

	r.RemoveActive()
	assert.Equal(t, a, r.ActiveID())
	r.RemoveActive()
	assert.Equal(t, "", r.ActiveID())
	_, ok := r.ActiveRoot()
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())

	r.RemoveActive()
	r.Remove("env-unknown")
}

func TestRemovedActiveNeverDangles(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()
	var ids []string
	for _, n := range []string{"a", "b", "c"} {
		id, err := r.AddFromBinary(ctx, building(n), n)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	r.SetActive(ids[1])
	r.Remove(ids[1])
	assert.NotEqual(t, ids[1], r.ActiveID())
	assert.Contains(t, []string{ids[0], ids[2]}, r.ActiveID())

	r.SetActive("env-missing")
	assert.Equal(t, ids[0], r.ActiveID())
}

func TestFailedLoadLeavesRegistryUnchanged(t *testing.T) {
	r, m, _ := newRegistry(t)
	_, err := r.AddFromBinary(context.Background(), []byte("not a model at all, just text"), "bad.glb")
	require.Error(t, err)
	assert.ErrorIs(t, err, twinerr.ErrAssetLoad)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, "", r.ActiveID())
	assert.Equal(t, 0, m.Len())
}

// stuckScene refuses every transform write.
type stuckScene struct {
	*scene.Memory
}

func (stuckScene) SetTransform(scene.NodeID, scene.Transform) error {
	return errors.New("transform rejected")
}

func TestRootPlacementFailureDisposesImportedNodes(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	m := scene.NewMemory(logger)
	r := NewRegistry(stuckScene{m}, scene.NewTags(), &fakeTool{}, logger)

	_, err := r.AddFromBinary(context.Background(), building("a"), "a.glb")
	require.Error(t, err)
	assert.ErrorIs(t, err, twinerr.ErrAssetLoad)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, "", r.ActiveID())
	assert.Equal(t, 0, m.Len())
}

func TestRemoveDetachesToolFirst(t *testing.T) {
	r, _, tool := newRegistry(t)
	ctx := context.Background()
	a, err := r.AddFromBinary(ctx, building("a"), "a")
	require.NoError(t, err)
	b, err := r.AddFromBinary(ctx, building("b"), "b")
	require.NoError(t, err)

	rootB, _ := r.ActiveRoot()
	tool.node = rootB
	r.Remove(a)
	assert.Equal(t, 0, tool.detaches)
	r.Remove(b)
	assert.Equal(t, 1, tool.detaches)
	assert.Equal(t, scene.NoNode, tool.node)
}

func TestClearAllToleratesDisposeErrors(t *testing.T) {
	r, m, _ := newRegistry(t)
	ctx := context.Background()
	for _, n := range []string{"a", "b"} {
		_, err := r.AddFromBinary(ctx, building(n), n)
		require.NoError(t, err)
	}
	first := r.All()[0].Root
	m.DisposeHook = func(id scene.NodeID) error {
		if id == first {
			return errors.New("locked")
		}
		return nil
	}
	errs := r.ClearAll()
	assert.Equal(t, 1, errs.Len())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, "", r.ActiveID())
	assert.Empty(t, r.List())
}

func TestAddFromRecordAppliesPoseWithoutActivating(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()
	first, err := r.AddFromBinary(ctx, building("a"), "a")
	require.NoError(t, err)

	pose := transform.Pose{
		Position:    transform.Vec3{X: 1, Y: 2, Z: 3},
		RotationDeg: transform.Vec3{X: 10, Y: 20, Z: 30},
		Scale:       transform.Vec3{X: 1, Y: 2, Z: 0.5},
	}
	id, err := r.AddFromRecord(ctx, building("b"), "b", pose, false)
	require.NoError(t, err)
	assert.Equal(t, first, r.ActiveID())

	got, err := r.Pose(id)
	require.NoError(t, err)
	assert.InDelta(t, 2, got.Position.Y, 1e-5)
	assert.InDelta(t, 20, got.RotationDeg.Y, 1e-3)
	assert.InDelta(t, 30, got.RotationDeg.Z, 1e-3)
	assert.InDelta(t, 0.5, got.Scale.Z, 1e-5)

	id2, err := r.AddFromRecord(ctx, building("c"), "c", transform.IdentityPose(), true)
	require.NoError(t, err)
	assert.Equal(t, id2, r.ActiveID())

	assert.Error(t, r.SetPose("env-nope", pose))
	_, err = r.Pose("env-nope")
	assert.Error(t, err)
}

func TestAllReturnsIndependentCopies(t *testing.T) {
	r, _, _ := newRegistry(t)
	_, err := r.AddFromBinary(context.Background(), building("a"), "a")
	require.NoError(t, err)

	snap := r.All()
	snap[0].Source[0] = 'X'
	snap[0].Name = "changed"
	again := r.All()
	assert.Equal(t, byte('g'), again[0].Source[0])
	assert.Equal(t, "a", again[0].Name)
	assert.Equal(t, []Summary{{ID: again[0].ID, Name: "a"}}, r.List())
}
