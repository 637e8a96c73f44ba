package editor

import (
	"github.com/kermanimohammad/SensorPlus-Client/internal/scene"
)

// ToolMode is the kind of transform gizmo attached to a node.
type ToolMode int

const (
	ToolNone ToolMode = iota
	ToolMove
	ToolRotate
	ToolScale
)

func (m ToolMode) String() string {
	switch m {
	case ToolMove:
		return "move"
	case ToolRotate:
		return "rotate"
	case ToolScale:
		return "scale"
	default:
		return "none"
	}
}

// ParseToolMode maps "move", "rotate" and "scale" to their modes.
func ParseToolMode(s string) (ToolMode, bool) {
	switch s {
	case "move":
		return ToolMove, true
	case "rotate":
		return ToolRotate, true
	case "scale":
		return ToolScale, true
	case "none", "":
		return ToolNone, true
	}
	return ToolNone, false
}

// Tool is the single gizmo of a session. At most one node is attached at a
// time; attaching elsewhere moves it.
type Tool struct {
	node     scene.NodeID
	mode     ToolMode
	sensorID string
}

func (t *Tool) Attached() scene.NodeID { return t.node }

func (t *Tool) Mode() ToolMode { return t.mode }

// SensorID is the sensor the tool is attached to, or "".
func (t *Tool) SensorID() string { return t.sensorID }

func (t *Tool) Detach() {
	t.node = scene.NoNode
	t.mode = ToolNone
	t.sensorID = ""
}

func (t *Tool) attach(n scene.NodeID, mode ToolMode, sensorID string) {
	t.node = n
	t.mode = mode
	t.sensorID = sensorID
}
