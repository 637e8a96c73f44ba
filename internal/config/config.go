package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the SensorPlus editor runtime
type Config struct {
	// MQTT Configuration
	MQTTUrl   string `json:"mqtt_url" yaml:"mqtt_url"`     // MQTT URL (supports both WebSocket and standard MQTT)
	MQTTTopic string `json:"mqtt_topic" yaml:"mqtt_topic"` // Subscription filter for sensor readings
	MQTTUser  string `json:"mqtt_user" yaml:"mqtt_user"`   // Optional, overrides credentials embedded in the URL
	MQTTPass  string `json:"mqtt_pass" yaml:"mqtt_pass"`

	// NATS Configuration
	NATSUrl     string `json:"nats_url" yaml:"nats_url"`         // Optional second telemetry source
	NATSSubject string `json:"nats_subject" yaml:"nats_subject"` // Subject filter, e.g. building.demo.>

	// Session Configuration
	ClientID string `json:"client_id" yaml:"client_id"` // Used to build the broker client id
	Verbose  bool   `json:"verbose" yaml:"verbose"`     // Enable verbose logging

	// Assets & Persistence
	ModelsDir      string `json:"models_dir" yaml:"models_dir"`           // Directory holding <type>.glb sensor prefabs
	ProjectDir     string `json:"project_dir" yaml:"project_dir"`         // Folder save target; empty disables folder saves
	DownloadDir    string `json:"download_dir" yaml:"download_dir"`       // Fallback when the project folder is not writable
	LayoutDB       string `json:"layout_db" yaml:"layout_db"`             // SQLite file for scene-sensor layouts
	LoadPath       string `json:"load_path" yaml:"load_path"`             // Project (.json or .dtsp) restored at start
	ArchiveOut     string `json:"archive_out" yaml:"archive_out"`         // Archive written on shutdown
	AssetTimeout   int    `json:"asset_timeout" yaml:"asset_timeout"`     // Asset decode timeout in seconds (default: 30)
	PrefabsTimeout int    `json:"prefabs_timeout" yaml:"prefabs_timeout"` // Prefab readiness wait in seconds (default: 30)
}

// GetDefaultConfig returns a configuration with sensible defaults
func GetDefaultConfig() *Config {
	return &Config{
		MQTTTopic:      DefaultTopic,
		NATSSubject:    DefaultSubject,
		ClientID:       "", // Will be auto-generated
		Verbose:        false,
		ModelsDir:      "models",
		DownloadDir:    "downloads",
		LayoutDB:       "sensorplus.db",
		AssetTimeout:   30,
		PrefabsTimeout: 30,
	}
}

// LoadFile overlays the YAML file at path onto c. Fields absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}

	// MQTT validation - support both WebSocket and standard MQTT protocols
	if c.MQTTUrl != "" {
		if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
			!strings.HasPrefix(c.MQTTUrl, "wss://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
			return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
		}
		if strings.TrimSpace(c.MQTTTopic) == "" {
			c.MQTTTopic = DefaultTopic
		}
	}

	if c.NATSUrl != "" {
		if !strings.HasPrefix(c.NATSUrl, "nats://") && !strings.HasPrefix(c.NATSUrl, "tls://") {
			return fmt.Errorf("NATS URL must use nats:// or tls://")
		}
		if strings.TrimSpace(c.NATSSubject) == "" {
			c.NATSSubject = DefaultSubject
		}
	}

	// Set defaults for invalid values
	if c.AssetTimeout <= 0 {
		c.AssetTimeout = 30
	}
	if c.PrefabsTimeout <= 0 {
		c.PrefabsTimeout = 30
	}

	return nil
}

// HasMQTT returns true if MQTT is configured
func (c *Config) HasMQTT() bool {
	return c.MQTTUrl != ""
}

// HasNATS returns true if NATS is configured
func (c *Config) HasNATS() bool {
	return c.NATSUrl != ""
}

// HasProjectDir returns true if folder saves are enabled
func (c *Config) HasProjectDir() bool {
	return c.ProjectDir != ""
}

// GetAssetTimeout returns the asset decode timeout as a duration
func (c *Config) GetAssetTimeout() time.Duration {
	return time.Duration(c.AssetTimeout) * time.Second
}

// GetPrefabsTimeout returns the prefab readiness wait as a duration
func (c *Config) GetPrefabsTimeout() time.Duration {
	return time.Duration(c.PrefabsTimeout) * time.Second
}
