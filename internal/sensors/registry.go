package sensors

import (
	"errors"
	"fmt"

	"cogentcore.org/core/math32"
	"github.com/jinzhu/copier"
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/scene"
	"github.com/kermanimohammad/SensorPlus-Client/internal/transform"
	"github.com/kermanimohammad/SensorPlus-Client/internal/twinerr"
	"github.com/sirupsen/logrus"
)

const (
	anchorSize     = 0.001
	markerDiameter = 0.7
)

// Handle is the live scene object of a sensor. Node is the anchor (or the
// fallback marker) that carries the sensor's transform.
type Handle struct {
	Node     scene.NodeID
	Fallback bool
}

// Resolved is the result of a pick lookup.
type Resolved struct {
	Handle   Handle
	SensorID string
	DeviceID string
	Type     Type
}

// Registry owns sensor records and their live handles. Records and handles
// are always created and destroyed together. It is not safe for concurrent
// use; the editor loop is its only caller.
type Registry struct {
	scene   scene.Scene
	tags    *scene.Tags
	prefabs *scene.Prefabs
	logger  *logrus.Logger

	order   []string
	records map[string]*Record
	handles map[string]Handle
	// last scale the registry itself put on each handle; anything else
	// on the handle came from a scale drag
	written map[string]math32.Vector3
}

func NewRegistry(s scene.Scene, tags *scene.Tags, prefabs *scene.Prefabs, logger *logrus.Logger) *Registry {
	return &Registry{
		scene:   s,
		tags:    tags,
		prefabs: prefabs,
		logger:  logger,
		records: make(map[string]*Record),
		handles: make(map[string]Handle),
		written: make(map[string]math32.Vector3),
	}
}

// Create registers rec and builds its live handle. Without a prefab for the
// type the handle is a plain sphere marker with the same metadata.
func (r *Registry) Create(rec Record) (Handle, error) {
	if err := rec.Normalize(); err != nil {
		return Handle{}, err
	}
	if _, exists := r.records[rec.ID]; exists {
		return Handle{}, fmt.Errorf("sensor %s already exists", rec.ID)
	}

	var (
		h   Handle
		err error
	)
	if tpl, ok := r.prefabs.Get(string(rec.Type)); ok {
		h, err = r.buildFromPrefab(&rec, tpl)
	} else {
		h = r.buildMarker(&rec)
	}
	if err != nil {
		return Handle{}, err
	}

	r.tag(h.Node, &rec)
	if err := transform.ApplyPose(r.scene, h.Node, rec.Pose(), config.WorldScaleFactor); err != nil {
		r.dispose(h, nil)
		return Handle{}, fmt.Errorf("failed to place sensor %s: %w", rec.ID, err)
	}

	stored := rec
	r.records[rec.ID] = &stored
	r.handles[rec.ID] = h
	r.order = append(r.order, rec.ID)
	r.remember(rec.ID, h.Node)

	r.logger.WithFields(logrus.Fields{
		"sensor":   rec.ID,
		"type":     rec.Type,
		"fallback": h.Fallback,
	}).Debug("Created sensor handle")
	return h, nil
}

// buildFromPrefab instantiates the template under a model root recentred so
// that the horizontal centre and bottom of the model sit at the anchor's
// origin.
func (r *Registry) buildFromPrefab(rec *Record, tpl scene.Template) (Handle, error) {
	roots, err := r.scene.Instantiate(tpl, rec.ID)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to instantiate %s prefab: %w", rec.Type, err)
	}

	modelRoot := r.scene.NewTransformNode(rec.ID + "-modelRoot")
	anchor := r.scene.NewAnchor(rec.ID+"-handle", anchorSize)
	cleanup := func(cause error) (Handle, error) {
		errs := twinerr.NewCollector("sensor.create", r.logger)
		for _, n := range roots {
			errs.Add(r.scene.Dispose(n))
		}
		errs.Add(r.scene.Dispose(anchor))
		errs.Add(r.scene.Dispose(modelRoot))
		return Handle{}, cause
	}

	for _, n := range roots {
		if err := r.scene.SetParent(n, modelRoot); err != nil {
			return cleanup(err)
		}
	}

	bb := r.scene.HierarchyBounds(modelRoot)
	offset := math32.Vector3{}
	if !bb.IsEmpty() {
		c := bb.Center()
		offset = math32.Vec3(-c.X, -bb.Min.Y, -c.Z)
	}
	xf := scene.Identity()
	xf.Position = offset
	if err := r.scene.SetTransform(modelRoot, xf); err != nil {
		return cleanup(err)
	}

	r.scene.SetVisibility(anchor, 0)
	r.scene.SetPickable(anchor, true)
	r.scene.SetRenderingGroup(anchor, config.OverlayRenderingGroup)
	if err := r.scene.SetParent(modelRoot, anchor); err != nil {
		return cleanup(err)
	}
	for _, m := range r.scene.ChildMeshes(modelRoot) {
		r.scene.SetPickable(m, true)
		r.scene.SetRenderingGroup(m, config.OverlayRenderingGroup)
	}
	return Handle{Node: anchor}, nil
}

func (r *Registry) buildMarker(rec *Record) Handle {
	m := r.scene.NewMarker(rec.ID, markerDiameter)
	r.scene.SetPickable(m, true)
	r.scene.SetRenderingGroup(m, config.OverlayRenderingGroup)
	return Handle{Node: m, Fallback: true}
}

func (r *Registry) tag(n scene.NodeID, rec *Record) {
	r.tags.Set(n, scene.Tag{
		Kind:       scene.TagSensor,
		OwnerID:    rec.ID,
		DeviceID:   rec.DeviceID,
		SensorType: string(rec.Type),
	})
}

// ResolveFromPickedNode walks up from a picked node to the owning sensor.
func (r *Registry) ResolveFromPickedNode(n scene.NodeID) (Resolved, bool) {
	tag, _, ok := r.tags.Resolve(r.scene, n, scene.TagSensor)
	if !ok {
		return Resolved{}, false
	}
	h, ok := r.handles[tag.OwnerID]
	if !ok {
		return Resolved{}, false
	}
	return Resolved{Handle: h, SensorID: tag.OwnerID, DeviceID: tag.DeviceID, Type: Type(tag.SensorType)}, true
}

// ApplyReading turns a reading into visual feedback on the handle. The
// record is never modified.
func (r *Registry) ApplyReading(h Handle, reading *Reading) (Feedback, error) {
	tag, ok := r.tags.Get(h.Node)
	if !ok || tag.Kind != scene.TagSensor {
		return Feedback{}, fmt.Errorf("node %d is not a sensor handle", h.Node)
	}
	base := config.DefaultSensorScale
	if rec, ok := r.records[tag.OwnerID]; ok {
		base = rec.Scale
	}
	fb := DeriveFeedback(reading, transform.WorldScale(base))

	targets := r.scene.ChildMeshes(h.Node)
	if len(targets) == 0 {
		targets = []scene.NodeID{h.Node}
	}
	for _, m := range targets {
		if fb.Emissive != nil {
			r.scene.SetEmissive(m, *fb.Emissive)
		}
		if fb.Visibility != nil {
			r.scene.SetVisibility(m, float32(*fb.Visibility))
		}
	}

	xf, ok := r.scene.Transform(h.Node)
	if !ok {
		return fb, fmt.Errorf("sensor handle %d has no transform", h.Node)
	}
	s := float32(fb.Scale)
	xf.Scale = math32.Vec3(s, s, s)
	if err := r.scene.SetTransform(h.Node, xf); err != nil {
		return fb, err
	}
	r.remember(tag.OwnerID, h.Node)
	return fb, nil
}

func (r *Registry) remember(id string, n scene.NodeID) {
	if xf, ok := r.scene.Transform(n); ok {
		r.written[id] = xf.Scale
	}
}

// Delete disposes the handle's meshes, then the handle itself, and drops the
// record. Unknown ids are ignored. Disposal failures go to errs.
func (r *Registry) Delete(id string, errs *twinerr.Collector) bool {
	h, ok := r.handles[id]
	if !ok {
		if _, rec := r.records[id]; !rec {
			return false
		}
	} else {
		r.dispose(h, errs)
	}
	r.tags.DeleteOwner(scene.TagSensor, id)
	delete(r.handles, id)
	delete(r.records, id)
	delete(r.written, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.WithField("sensor", id).Debug("Deleted sensor")
	return true
}

func (r *Registry) dispose(h Handle, errs *twinerr.Collector) {
	for _, m := range r.scene.ChildMeshes(h.Node) {
		// a mesh may already be gone with an earlier sibling's subtree
		if !r.scene.IsMesh(m) {
			continue
		}
		errs.Add(r.scene.Dispose(m))
	}
	errs.Add(r.scene.Dispose(h.Node))
}

// ClearAll deletes every sensor, continuing past disposal failures.
func (r *Registry) ClearAll() *twinerr.Collector {
	errs := twinerr.NewCollector("sensors.clear", r.logger)
	for _, id := range append([]string(nil), r.order...) {
		r.Delete(id, errs)
	}
	return errs
}

// Get returns a copy of the record.
func (r *Registry) Get(id string) (Record, bool) {
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	var out Record
	if err := copier.CopyWithOption(&out, rec, copier.Option{DeepCopy: true}); err != nil {
		return *rec, true
	}
	return out, true
}

func (r *Registry) Handle(id string) (Handle, bool) {
	h, ok := r.handles[id]
	return h, ok
}

func (r *Registry) Len() int { return len(r.order) }

// Records returns a deep copy of every record in creation order.
func (r *Registry) Records() []Record {
	src := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		src = append(src, *r.records[id])
	}
	var out []Record
	if err := copier.CopyWithOption(&out, &src, copier.Option{DeepCopy: true}); err != nil {
		r.logger.WithError(err).Warn("Failed to deep-copy sensor records")
		return src
	}
	return out
}

// Update applies a property-panel patch, re-applies the world scale and
// refreshes the pick metadata.
func (r *Registry) Update(id string, p Patch) error {
	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("unknown sensor %s", id)
	}
	if p.Label != "" {
		rec.Label = p.Label
	}
	if p.DeviceID != "" {
		rec.DeviceID = p.DeviceID
	}
	rec.Topic = p.Topic
	if p.Color != "" {
		rec.Color = p.Color
	}
	if p.Scale > 0 {
		rec.Scale = p.Scale
	}

	h := r.handles[id]
	r.tag(h.Node, rec)
	xf, ok := r.scene.Transform(h.Node)
	if !ok {
		return fmt.Errorf("sensor handle %d has no transform", h.Node)
	}
	s := float32(transform.WorldScale(rec.Scale))
	xf.Scale = math32.Vec3(s, s, s)
	if err := r.scene.SetTransform(h.Node, xf); err != nil {
		return err
	}
	r.remember(id, h.Node)
	return nil
}

// SyncFromHandle copies position, rotation and base scale from the live
// handle back into the record. The scale is only taken when something other
// than the registry changed it, so reading pulses never reach the record.
func (r *Registry) SyncFromHandle(id string) error {
	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("unknown sensor %s", id)
	}
	h, ok := r.handles[id]
	if !ok {
		return fmt.Errorf("sensor %s has no handle", id)
	}
	pose, err := transform.ReadPose(r.scene, h.Node, config.WorldScaleFactor)
	if err != nil {
		return err
	}
	rec.Position = pose.Position
	rot := pose.RotationDeg
	rec.Rotation = &rot
	if xf, ok := r.scene.Transform(h.Node); ok {
		if w, seen := r.written[id]; !seen || xf.Scale != w {
			rec.Scale = pose.Scale.Average()
			r.written[id] = xf.Scale
		}
	}
	return nil
}

// SyncAll syncs every sensor; failures are joined.
func (r *Registry) SyncAll() error {
	var errs []error
	for _, id := range r.order {
		if err := r.SyncFromHandle(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Match finds the sensor a telemetry message belongs to: a device id match
// wins, otherwise the first sensor subscribed to the topic.
func (r *Registry) Match(topic, deviceID string) (string, bool) {
	var byTopic string
	for _, id := range r.order {
		rec := r.records[id]
		if deviceID != "" && rec.DeviceID == deviceID {
			return id, true
		}
		if byTopic == "" && rec.Topic != "" && rec.Topic == topic {
			byTopic = id
		}
	}
	return byTopic, byTopic != ""
}
