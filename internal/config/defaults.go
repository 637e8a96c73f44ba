package config

import "time"

// Central place for all application-wide constants and other defaults.
// Changing a value here immediately affects all components that import
// github.com/kermanimohammad/SensorPlus-Client/internal/config.

const (
	// Scene units
	WorldScaleFactor   = 5.0  // magnifier for small GLB models authored in cm
	MinScale           = 1e-4 // floor for scales read back from live handles
	DefaultSensorScale = 1.0  // base (pre-multiplier) scale of new sensors
	EnablePulse        = true // size pulse on new readings

	// Rendering group that draws above the ground/grid plane
	OverlayRenderingGroup = 1

	// Telemetry
	DefaultTopic   = "building/demo/#"
	DefaultSubject = "building.demo.>"

	// Operation time-outs (to avoid blocking the editor loop)
	MQTTTimeout       = 5 * time.Second
	NATSTimeout       = 5 * time.Second
	PermissionTimeout = 10 * time.Second
	ShutdownTimeout   = 15 * time.Second // final save after the loop exits

	// Editor loop
	AutosaveInterval = 30 * time.Second // scene-sensor layout autosave cadence
	BusBufferSize    = 64               // per-subscriber telemetry backlog

	// Persistence names
	ProjectDocumentName = "project.json"
	ProjectArchiveName  = "project.dtsp"
	SceneSensorsName    = "scene-sensors.json"
	SceneSensorsKey     = "scene.sensors"
)
