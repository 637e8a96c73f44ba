package scene

import (
	"encoding/binary"
	"encoding/json"
)

// MeshSpec describes one mesh node for BuildGLB. Min and Max are the local
// POSITION bounds; Children index into the same slice.
type MeshSpec struct {
	Name        string
	Min, Max    [3]float32
	Translation *[3]float32
	Children    []int
	Empty       bool // transform-only node, no mesh
}

// BuildGLB assembles a minimal GLB container whose JSON chunk describes the
// given nodes. Nodes not referenced as children become scene roots. It is
// used to produce stand-in models for tooling and tests.
func BuildGLB(nodes ...MeshSpec) []byte {
	type node struct {
		Name        string    `json:"name,omitempty"`
		Mesh        *int      `json:"mesh,omitempty"`
		Children    []int     `json:"children,omitempty"`
		Translation []float32 `json:"translation,omitempty"`
	}
	type accessor struct {
		Min []float32 `json:"min"`
		Max []float32 `json:"max"`
	}
	type primitive struct {
		Attributes map[string]int `json:"attributes"`
	}
	type mesh struct {
		Primitives []primitive `json:"primitives"`
	}
	doc := struct {
		Asset     map[string]string  `json:"asset"`
		Scene     int                `json:"scene"`
		Scenes    []map[string][]int `json:"scenes"`
		Nodes     []node             `json:"nodes"`
		Meshes    []mesh             `json:"meshes"`
		Accessors []accessor         `json:"accessors"`
	}{Asset: map[string]string{"version": "2.0"}}

	referenced := make(map[int]bool)
	for _, n := range nodes {
		out := node{Name: n.Name, Children: n.Children}
		if n.Translation != nil {
			out.Translation = n.Translation[:]
		}
		if !n.Empty {
			mi, ai := len(doc.Meshes), len(doc.Accessors)
			doc.Accessors = append(doc.Accessors, accessor{Min: n.Min[:], Max: n.Max[:]})
			doc.Meshes = append(doc.Meshes, mesh{Primitives: []primitive{{Attributes: map[string]int{"POSITION": ai}}}})
			out.Mesh = &mi
		}
		for _, c := range n.Children {
			referenced[c] = true
		}
		doc.Nodes = append(doc.Nodes, out)
	}
	var roots []int
	for i := range nodes {
		if !referenced[i] {
			roots = append(roots, i)
		}
	}
	doc.Scenes = []map[string][]int{{"nodes": roots}}

	js, _ := json.Marshal(doc)
	for len(js)%4 != 0 {
		js = append(js, ' ')
	}
	total := glbHeaderLen + 8 + len(js)
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], glbMagic)
	binary.LittleEndian.PutUint32(buf[4:8], glbVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(total))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(js)))
	binary.LittleEndian.PutUint32(buf[16:20], chunkJSON)
	copy(buf[20:], js)
	return buf
}

// UnitBox returns a GLB holding a single mesh named name spanning min..max.
func UnitBox(name string, min, max [3]float32) []byte {
	return BuildGLB(MeshSpec{Name: name, Min: min, Max: max})
}
