package scene

// TagKind identifies which registry owns a tagged node.
type TagKind int

const (
	TagEnvironment TagKind = iota + 1
	TagSensor
)

// Tag is the identity metadata attached to a node.
type Tag struct {
	Kind       TagKind
	OwnerID    string
	DeviceID   string
	SensorType string
}

// Tags maps nodes to owner metadata without touching the nodes themselves.
type Tags struct {
	byNode map[NodeID]Tag
}

func NewTags() *Tags {
	return &Tags{byNode: make(map[NodeID]Tag)}
}

func (t *Tags) Set(id NodeID, tag Tag) {
	t.byNode[id] = tag
}

func (t *Tags) Get(id NodeID) (Tag, bool) {
	tag, ok := t.byNode[id]
	return tag, ok
}

func (t *Tags) Delete(id NodeID) {
	delete(t.byNode, id)
}

// DeleteOwner drops every tag owned by ownerID.
func (t *Tags) DeleteOwner(kind TagKind, ownerID string) {
	for id, tag := range t.byNode {
		if tag.Kind == kind && tag.OwnerID == ownerID {
			delete(t.byNode, id)
		}
	}
}

func (t *Tags) Len() int { return len(t.byNode) }

// Resolve walks from id up the parent chain and returns the first tag of the
// requested kind. The walk stops at the scene root, and is bounded so a
// misbehaving collaborator cannot loop it forever.
func (t *Tags) Resolve(s Scene, id NodeID, kind TagKind) (Tag, NodeID, bool) {
	seen := make(map[NodeID]struct{})
	for cur := id; cur != NoNode; cur = s.Parent(cur) {
		if _, loop := seen[cur]; loop {
			break
		}
		seen[cur] = struct{}{}
		if tag, ok := t.byNode[cur]; ok && tag.Kind == kind {
			return tag, cur, true
		}
	}
	return Tag{}, NoNode, false
}
