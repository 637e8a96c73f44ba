// Package environment keeps the imported building/room models placed in the
// scene and the active-environment pointer used by the transform tools.
package environment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/scene"
	"github.com/kermanimohammad/SensorPlus-Client/internal/transform"
	"github.com/kermanimohammad/SensorPlus-Client/internal/twinerr"
	"github.com/sirupsen/logrus"
)

// ToolTarget is the transform tool (gizmo) attachment shared by the
// registries. Removal detaches it before disposing the node it points at.
type ToolTarget interface {
	Attached() scene.NodeID
	Detach()
}

// Entry is one imported environment. Nodes are the top-level nodes produced
// by the asset load, all parented under Root.
type Entry struct {
	ID     string
	Name   string
	Nodes  []scene.NodeID
	Root   scene.NodeID
	Source []byte
}

// Summary is the list view of an entry.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Registry owns every environment in a session. It is not safe for
// concurrent use.
type Registry struct {
	scene  scene.Scene
	tags   *scene.Tags
	tool   ToolTarget
	logger *logrus.Logger

	order   []string
	entries map[string]*Entry
	active  string
}

func NewRegistry(s scene.Scene, tags *scene.Tags, tool ToolTarget, logger *logrus.Logger) *Registry {
	return &Registry{
		scene:   s,
		tags:    tags,
		tool:    tool,
		logger:  logger,
		entries: make(map[string]*Entry),
	}
}

// NewID returns an environment id of the form "env-xxxxxxxx".
func NewID() string {
	return "env-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// AddFromBinary loads data into the scene under a fresh root, registers it
// and makes it active. A load failure leaves the registry untouched.
func (r *Registry) AddFromBinary(ctx context.Context, data []byte, name string) (string, error) {
	id, err := r.add(ctx, data, name)
	if err != nil {
		return "", err
	}
	r.active = id
	return id, nil
}

// AddFromRecord is AddFromBinary followed by applying a stored pose. The
// active pointer only moves when makeActive is set.
func (r *Registry) AddFromRecord(ctx context.Context, data []byte, name string, pose transform.Pose, makeActive bool) (string, error) {
	id, err := r.add(ctx, data, name)
	if err != nil {
		return "", err
	}
	if err := transform.ApplyPose(r.scene, r.entries[id].Root, pose, 1); err != nil {
		r.Remove(id)
		return "", fmt.Errorf("failed to place environment %s: %w", name, err)
	}
	if makeActive {
		r.active = id
	}
	return id, nil
}

func (r *Registry) add(ctx context.Context, data []byte, name string) (string, error) {
	nodes, err := r.scene.Load(ctx, data, "glb")
	if err != nil {
		return "", err
	}

	id := NewID()
	root := r.scene.NewTransformNode(id + "-root")
	discard := func(cause error) (string, error) {
		errs := twinerr.NewCollector("environment.add", r.logger)
		for _, n := range nodes {
			errs.Add(r.scene.Dispose(n))
		}
		errs.Add(r.scene.Dispose(root))
		return "", &twinerr.AssetLoadError{Name: name, Err: cause}
	}
	for _, n := range nodes {
		if err := r.scene.SetParent(n, root); err != nil {
			return discard(err)
		}
	}
	if err := r.scene.SetTransform(root, scene.Identity()); err != nil {
		return discard(err)
	}

	// draw above the ground grid, like sensors
	tag := scene.Tag{Kind: scene.TagEnvironment, OwnerID: id}
	r.tags.Set(root, tag)
	r.scene.SetRenderingGroup(root, config.OverlayRenderingGroup)
	for _, m := range r.scene.ChildMeshes(root) {
		r.tags.Set(m, tag)
		r.scene.SetRenderingGroup(m, config.OverlayRenderingGroup)
	}

	src := make([]byte, len(data))
	copy(src, data)
	r.entries[id] = &Entry{ID: id, Name: name, Nodes: nodes, Root: root, Source: src}
	r.order = append(r.order, id)

	r.logger.WithFields(logrus.Fields{
		"environment": id,
		"name":        name,
		"nodes":       len(nodes),
	}).Info("Environment added")
	return id, nil
}

// Remove disposes an entry. Unknown ids are a no-op. Disposal failures are
// logged and otherwise ignored.
func (r *Registry) Remove(id string) {
	r.remove(id, twinerr.NewCollector("environment.remove", r.logger))
}

func (r *Registry) remove(id string, errs *twinerr.Collector) {
	e, ok := r.entries[id]
	if !ok {
		return
	}
	if r.tool != nil && r.tool.Attached() != scene.NoNode {
		if owner, _, ok := r.tags.Resolve(r.scene, r.tool.Attached(), scene.TagEnvironment); ok && owner.OwnerID == id {
			r.tool.Detach()
		}
	}

	for _, n := range e.Nodes {
		if r.scene.Parent(n) == e.Root {
			errs.Add(r.scene.Dispose(n))
		}
	}
	errs.Add(r.scene.Dispose(e.Root))
	r.tags.DeleteOwner(scene.TagEnvironment, id)

	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.active == id {
		r.active = r.fallback()
	}
	r.logger.WithField("environment", id).Info("Environment removed")
}

// RemoveActive removes the active entry, if any.
func (r *Registry) RemoveActive() {
	if r.active != "" {
		r.Remove(r.active)
	}
}

// ClearAll removes every entry and returns the disposal failures.
func (r *Registry) ClearAll() *twinerr.Collector {
	errs := twinerr.NewCollector("environment.clear", r.logger)
	for _, id := range append([]string(nil), r.order...) {
		r.remove(id, errs)
	}
	r.active = ""
	return errs
}

// SetActive points at id when it is registered, otherwise at the first
// remaining entry, or at nothing.
func (r *Registry) SetActive(id string) {
	if _, ok := r.entries[id]; ok {
		r.active = id
		return
	}
	r.active = r.fallback()
}

func (r *Registry) fallback() string {
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

// ActiveID returns the active entry id, or "" when there is none.
func (r *Registry) ActiveID() string { return r.active }

// ActiveRoot returns the root node of the active entry.
func (r *Registry) ActiveRoot() (scene.NodeID, bool) {
	e, ok := r.entries[r.active]
	if !ok {
		return scene.NoNode, false
	}
	return e.Root, true
}

// ResolveFromPickedNode walks up from a picked node to the owning entry.
func (r *Registry) ResolveFromPickedNode(n scene.NodeID) (string, bool) {
	tag, _, ok := r.tags.Resolve(r.scene, n, scene.TagEnvironment)
	if !ok {
		return "", false
	}
	if _, live := r.entries[tag.OwnerID]; !live {
		return "", false
	}
	return tag.OwnerID, true
}

func (r *Registry) List() []Summary {
	out := make([]Summary, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Summary{ID: id, Name: r.entries[id].Name})
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }

// All returns a deep copy of every entry in insertion order.
func (r *Registry) All() []Entry {
	src := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		src = append(src, *r.entries[id])
	}
	var out []Entry
	if err := copier.CopyWithOption(&out, &src, copier.Option{DeepCopy: true}); err != nil {
		r.logger.WithError(err).Warn("Failed to deep-copy environment entries")
		return src
	}
	return out
}

// Pose reads the logical transform of an entry's root.
func (r *Registry) Pose(id string) (transform.Pose, error) {
	e, ok := r.entries[id]
	if !ok {
		return transform.Pose{}, fmt.Errorf("unknown environment %s", id)
	}
	return transform.ReadPose(r.scene, e.Root, 1)
}

// SetPose applies a logical transform to an entry's root.
func (r *Registry) SetPose(id string, p transform.Pose) error {
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("unknown environment %s", id)
	}
	return transform.ApplyPose(r.scene, e.Root, p, 1)
}
