package scene

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cogentcore.org/core/math32"
	"github.com/kermanimohammad/SensorPlus-Client/internal/twinerr"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/sirupsen/logrus"
)

type nodeKind int

const (
	kindTransform nodeKind = iota
	kindMesh
)

type memNode struct {
	name       string
	kind       nodeKind
	parent     NodeID
	children   []NodeID
	xf         Transform
	bounds     math32.Box3 // local mesh bounds, empty for transform nodes
	pickable   bool
	group      int
	visibility float32
	emissive   *colorful.Color
}

// NodeInfo is a read-only view of a Memory node.
type NodeInfo struct {
	ID             NodeID
	Name           string
	Parent         NodeID
	Mesh           bool
	Pickable       bool
	RenderingGroup int
	Visibility     float32
	Emissive       *colorful.Color
	Transform      Transform
}

// Memory is a headless Scene. It understands GLB payloads well enough to
// rebuild their node hierarchy and mesh bounds, which is all the registries
// need. It is safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	nodes  map[NodeID]*memNode
	roots  []NodeID
	nextID NodeID
	logger *logrus.Logger

	// DisposeHook, when set, runs before a node is disposed; a non-nil
	// return aborts that disposal.
	DisposeHook func(id NodeID) error
}

// NewMemory returns an empty headless scene.
func NewMemory(logger *logrus.Logger) *Memory {
	return &Memory{nodes: make(map[NodeID]*memNode), logger: logger}
}

func (m *Memory) add(n *memNode) NodeID {
	m.nextID++
	id := m.nextID
	if n.visibility == 0 && n.kind == kindMesh {
		n.visibility = 1
	}
	m.nodes[id] = n
	m.roots = append(m.roots, id)
	return id
}

func checkHint(hint string) error {
	h := strings.ToLower(strings.TrimPrefix(hint, "."))
	if h != "" && h != "glb" {
		return fmt.Errorf("unsupported asset format %q", hint)
	}
	return nil
}

// LoadTemplate parses a GLB payload without touching the scene.
func (m *Memory) LoadTemplate(ctx context.Context, data []byte, hint string) (Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkHint(hint); err != nil {
		return nil, &twinerr.AssetLoadError{Name: hint, Err: err}
	}
	a, err := parseGLB(data, hint)
	if err != nil {
		return nil, &twinerr.AssetLoadError{Name: hint, Err: err}
	}
	return a, nil
}

// Load parses data and adds the resulting subtree to the scene.
func (m *Memory) Load(ctx context.Context, data []byte, hint string) ([]NodeID, error) {
	t, err := m.LoadTemplate(ctx, data, hint)
	if err != nil {
		return nil, err
	}
	return m.Instantiate(t, "")
}

// Instantiate clones a template produced by LoadTemplate.
func (m *Memory) Instantiate(t Template, prefix string) ([]NodeID, error) {
	a, ok := t.(*asset)
	if !ok {
		return nil, &twinerr.AssetLoadError{Name: t.Name(), Err: fmt.Errorf("template of type %T not produced by this scene", t)}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var created []NodeID
	var build func(idx int, parent NodeID, depth int) (NodeID, error)
	build = func(idx int, parent NodeID, depth int) (NodeID, error) {
		if depth > len(a.nodes) {
			return NoNode, fmt.Errorf("node hierarchy of %s contains a cycle", a.name)
		}
		d := a.nodes[idx]
		name := d.name
		if prefix != "" {
			name = prefix + "-" + name
		}
		n := &memNode{name: name, xf: d.xf, bounds: d.bounds}
		if d.mesh {
			n.kind = kindMesh
		}
		id := m.add(n)
		created = append(created, id)
		if parent != NoNode {
			m.attachLocked(id, parent)
		}
		for _, c := range d.children {
			if _, err := build(c, id, depth+1); err != nil {
				return NoNode, err
			}
		}
		return id, nil
	}

	var tops []NodeID
	for _, r := range a.roots {
		id, err := build(r, NoNode, 0)
		if err != nil {
			for _, c := range created {
				m.removeLocked(c)
			}
			return nil, &twinerr.AssetLoadError{Name: a.name, Err: err}
		}
		tops = append(tops, id)
	}
	return tops, nil
}

// NewTransformNode creates an empty node at the scene root.
func (m *Memory) NewTransformNode(name string) NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(&memNode{name: name, xf: Identity(), bounds: math32.B3Empty()})
}

// NewAnchor creates an invisible box mesh.
func (m *Memory) NewAnchor(name string, size float32) NodeID {
	h := size / 2
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.add(&memNode{name: name, kind: kindMesh, xf: Identity(), bounds: math32.B3(-h, -h, -h, h, h, h)})
	m.nodes[id].visibility = 0
	return id
}

// NewMarker creates a sphere mesh.
func (m *Memory) NewMarker(name string, diameter float32) NodeID {
	r := diameter / 2
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(&memNode{name: name, kind: kindMesh, xf: Identity(), bounds: math32.B3(-r, -r, -r, r, r, r)})
}

// SetParent reparents child under parent (NoNode for the scene root).
func (m *Memory) SetParent(child, parent NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[child]; !ok {
		return fmt.Errorf("unknown node %d", child)
	}
	if parent != NoNode {
		if _, ok := m.nodes[parent]; !ok {
			return fmt.Errorf("unknown parent node %d", parent)
		}
		for p := parent; p != NoNode; p = m.nodes[p].parent {
			if p == child {
				return fmt.Errorf("reparenting %d under %d would create a cycle", child, parent)
			}
		}
	}
	m.detachLocked(child)
	if parent == NoNode {
		m.roots = append(m.roots, child)
		return nil
	}
	m.attachLocked(child, parent)
	return nil
}

func (m *Memory) attachLocked(child, parent NodeID) {
	m.roots = removeID(m.roots, child)
	m.nodes[child].parent = parent
	p := m.nodes[parent]
	p.children = append(p.children, child)
}

func (m *Memory) detachLocked(id NodeID) {
	n := m.nodes[id]
	if n.parent == NoNode {
		m.roots = removeID(m.roots, id)
		return
	}
	if p, ok := m.nodes[n.parent]; ok {
		p.children = removeID(p.children, id)
	}
	n.parent = NoNode
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Parent returns the parent of id, or NoNode at the top of the chain or for
// unknown ids.
func (m *Memory) Parent(id NodeID) NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.nodes[id]; ok {
		return n.parent
	}
	return NoNode
}

// ChildMeshes returns every mesh below id.
func (m *Memory) ChildMeshes(id NodeID) []NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []NodeID
	m.walkLocked(id, func(d NodeID) {
		if d != id && m.nodes[d].kind == kindMesh {
			out = append(out, d)
		}
	})
	return out
}

func (m *Memory) walkLocked(id NodeID, fn func(NodeID)) {
	n, ok := m.nodes[id]
	if !ok {
		return
	}
	fn(id)
	for _, c := range n.children {
		m.walkLocked(c, fn)
	}
}

// IsMesh reports whether id is a mesh node.
func (m *Memory) IsMesh(id NodeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return ok && n.kind == kindMesh
}

// HierarchyBounds returns world-space bounds of every mesh under id,
// including id itself.
func (m *Memory) HierarchyBounds(id NodeID) math32.Box3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := math32.B3Empty()
	m.walkLocked(id, func(d NodeID) {
		n := m.nodes[d]
		if n.kind != kindMesh || n.bounds.IsEmpty() {
			return
		}
		b := n.bounds
		for cur := d; cur != NoNode; cur = m.nodes[cur].parent {
			b = transformBox(b, m.nodes[cur].xf)
		}
		out.ExpandByBox(b)
	})
	return out
}

// transformBox applies scale, then rotation, then translation.
func transformBox(b math32.Box3, t Transform) math32.Box3 {
	s := t.Scale
	scaled := math32.B3Empty()
	for _, x := range []float32{b.Min.X, b.Max.X} {
		for _, y := range []float32{b.Min.Y, b.Max.Y} {
			for _, z := range []float32{b.Min.Z, b.Max.Z} {
				scaled.ExpandByPoint(math32.Vec3(x*s.X, y*s.Y, z*s.Z))
			}
		}
	}
	return scaled.MulQuat(t.Rotation.Quaternion()).Translate(t.Position)
}

// Transform returns the local transform of id.
func (m *Memory) Transform(id NodeID) (Transform, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return Transform{}, false
	}
	return cloneTransform(n.xf), true
}

// SetTransform replaces the local transform of id.
func (m *Memory) SetTransform(id NodeID, t Transform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("unknown node %d", id)
	}
	n.xf = cloneTransform(t)
	return nil
}

func cloneTransform(t Transform) Transform {
	if t.Rotation.Quat != nil {
		q := *t.Rotation.Quat
		t.Rotation.Quat = &q
	}
	return t
}

func (m *Memory) SetPickable(id NodeID, pickable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		n.pickable = pickable
	}
}

func (m *Memory) SetRenderingGroup(id NodeID, group int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		n.group = group
	}
}

func (m *Memory) SetVisibility(id NodeID, v float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		n.visibility = v
	}
}

func (m *Memory) SetEmissive(id NodeID, c colorful.Color) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		n.emissive = &c
	}
}

// Dispose removes id and its subtree. Unknown ids are reported as errors so
// callers can tell a double dispose apart from a clean one.
func (m *Memory) Dispose(id NodeID) error {
	if m.DisposeHook != nil {
		if err := m.DisposeHook(id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[id]; !ok {
		return fmt.Errorf("dispose: unknown node %d", id)
	}
	m.detachLocked(id)
	m.removeLocked(id)
	return nil
}

func (m *Memory) removeLocked(id NodeID) {
	n, ok := m.nodes[id]
	if !ok {
		return
	}
	for _, c := range n.children {
		m.removeLocked(c)
	}
	m.roots = removeID(m.roots, id)
	delete(m.nodes, id)
	if m.logger != nil {
		m.logger.WithField("node", n.name).Debug("Disposed scene node")
	}
}

// Node returns a snapshot of id.
func (m *Memory) Node(id NodeID) (NodeInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return NodeInfo{}, false
	}
	return NodeInfo{
		ID:             id,
		Name:           n.name,
		Parent:         n.parent,
		Mesh:           n.kind == kindMesh,
		Pickable:       n.pickable,
		RenderingGroup: n.group,
		Visibility:     n.visibility,
		Emissive:       n.emissive,
		Transform:      cloneTransform(n.xf),
	}, true
}

// Roots returns the nodes sitting directly at the scene root.
func (m *Memory) Roots() []NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NodeID, len(m.roots))
	copy(out, m.roots)
	return out
}

// Len returns the number of live nodes.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}
