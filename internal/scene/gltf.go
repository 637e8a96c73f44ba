package scene

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"cogentcore.org/core/math32"
	"github.com/h2non/filetype"
)

// GLB container constants (glTF 2.0 binary).
const (
	glbMagic     = 0x46546C67 // "glTF"
	glbVersion   = 2
	glbHeaderLen = 12
	chunkJSON    = 0x4E4F534A // "JSON"
)

// GLBType is registered with filetype so callers can sniff mesh payloads
// alongside the built-in archive and document types.
var GLBType = filetype.NewType("glb", "model/gltf-binary")

func init() {
	filetype.AddMatcher(GLBType, func(buf []byte) bool {
		return len(buf) >= 4 && bytes.Equal(buf[:4], []byte("glTF"))
	})
}

// IsGLB reports whether data starts with the GLB magic.
func IsGLB(data []byte) bool {
	return filetype.IsType(data, GLBType)
}

type gltfDoc struct {
	Scene  *int `json:"scene"`
	Scenes []struct {
		Nodes []int `json:"nodes"`
	} `json:"scenes"`
	Nodes []struct {
		Name        string    `json:"name"`
		Mesh        *int      `json:"mesh"`
		Children    []int     `json:"children"`
		Translation []float32 `json:"translation"`
		Rotation    []float32 `json:"rotation"`
		Scale       []float32 `json:"scale"`
	} `json:"nodes"`
	Meshes []struct {
		Name       string `json:"name"`
		Primitives []struct {
			Attributes map[string]int `json:"attributes"`
		} `json:"primitives"`
	} `json:"meshes"`
	Accessors []struct {
		Min []float32 `json:"min"`
		Max []float32 `json:"max"`
	} `json:"accessors"`
}

// nodeDesc is one parsed glTF node ready to be instantiated.
type nodeDesc struct {
	name     string
	mesh     bool
	bounds   math32.Box3
	xf       Transform
	children []int
}

// asset is the parsed, scene-independent form of a GLB payload.
type asset struct {
	name  string
	nodes []nodeDesc
	roots []int
}

func (a *asset) Name() string { return a.name }

// parseGLB validates the container and extracts the node hierarchy with
// per-mesh bounds taken from the POSITION accessors.
func parseGLB(data []byte, name string) (*asset, error) {
	if len(data) < glbHeaderLen+8 {
		return nil, errors.New("payload too short for a GLB container")
	}
	if binary.LittleEndian.Uint32(data[0:4]) != glbMagic {
		return nil, errors.New("missing glTF magic")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != glbVersion {
		return nil, fmt.Errorf("unsupported GLB version %d", v)
	}
	total := binary.LittleEndian.Uint32(data[8:12])
	if int(total) > len(data) {
		return nil, fmt.Errorf("declared length %d exceeds payload size %d", total, len(data))
	}

	chunkLen := binary.LittleEndian.Uint32(data[12:16])
	chunkType := binary.LittleEndian.Uint32(data[16:20])
	if chunkType != chunkJSON {
		return nil, errors.New("first chunk is not JSON")
	}
	end := uint64(20) + uint64(chunkLen)
	if end > uint64(total) {
		return nil, errors.New("JSON chunk overruns container")
	}

	var doc gltfDoc
	if err := json.Unmarshal(data[20:end], &doc); err != nil {
		return nil, fmt.Errorf("invalid glTF JSON: %w", err)
	}
	return buildAsset(&doc, name)
}

func buildAsset(doc *gltfDoc, name string) (*asset, error) {
	a := &asset{name: name, nodes: make([]nodeDesc, len(doc.Nodes))}
	referenced := make([]bool, len(doc.Nodes))

	for i, n := range doc.Nodes {
		d := nodeDesc{name: n.Name, xf: Identity(), bounds: math32.B3Empty()}
		if d.name == "" {
			d.name = fmt.Sprintf("node%d", i)
		}
		if len(n.Translation) == 3 {
			d.xf.Position = math32.Vec3(n.Translation[0], n.Translation[1], n.Translation[2])
		}
		if len(n.Rotation) == 4 {
			d.xf.Rotation = QuatRotation(math32.NewQuat(n.Rotation[0], n.Rotation[1], n.Rotation[2], n.Rotation[3]))
		}
		if len(n.Scale) == 3 {
			d.xf.Scale = math32.Vec3(n.Scale[0], n.Scale[1], n.Scale[2])
		}
		for _, c := range n.Children {
			if c < 0 || c >= len(doc.Nodes) || c == i {
				return nil, fmt.Errorf("node %d has invalid child %d", i, c)
			}
			if referenced[c] {
				return nil, fmt.Errorf("node %d has more than one parent", c)
			}
			referenced[c] = true
		}
		d.children = n.Children
		if n.Mesh != nil {
			m := *n.Mesh
			if m < 0 || m >= len(doc.Meshes) {
				return nil, fmt.Errorf("node %d references unknown mesh %d", i, m)
			}
			d.mesh = true
			for _, p := range doc.Meshes[m].Primitives {
				acc, ok := p.Attributes["POSITION"]
				if !ok {
					continue
				}
				if acc < 0 || acc >= len(doc.Accessors) {
					return nil, fmt.Errorf("mesh %d references unknown accessor %d", m, acc)
				}
				mn, mx := doc.Accessors[acc].Min, doc.Accessors[acc].Max
				if len(mn) == 3 && len(mx) == 3 {
					d.bounds.ExpandByPoint(math32.Vec3(mn[0], mn[1], mn[2]))
					d.bounds.ExpandByPoint(math32.Vec3(mx[0], mx[1], mx[2]))
				}
			}
		}
		a.nodes[i] = d
	}

	switch {
	case len(doc.Scenes) > 0:
		si := 0
		if doc.Scene != nil {
			si = *doc.Scene
		}
		if si < 0 || si >= len(doc.Scenes) {
			return nil, fmt.Errorf("default scene %d out of range", si)
		}
		for _, r := range doc.Scenes[si].Nodes {
			if r < 0 || r >= len(doc.Nodes) {
				return nil, fmt.Errorf("scene references unknown node %d", r)
			}
			a.roots = append(a.roots, r)
		}
	default:
		for i := range doc.Nodes {
			if !referenced[i] {
				a.roots = append(a.roots, i)
			}
		}
	}
	return a, nil
}
