package main

import (
	"testing"

	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	"github.com/kermanimohammad/SensorPlus-Client/internal/project"
	"github.com/stretchr/testify/assert"
)

func TestAdoptConnectionOnlyWithoutConfiguredBroker(t *testing.T) {
	saved := &project.Connection{URL: "wss://broker.example:8884/mqtt", Topic: "site/+/t", User: "u", Pass: "p"}

	cfg := config.GetDefaultConfig()
	assert.True(t, adoptConnection(cfg, saved))
	assert.Equal(t, saved.URL, cfg.MQTTUrl)
	assert.Equal(t, "site/+/t", cfg.MQTTTopic)
	assert.Equal(t, "u", cfg.MQTTUser)
	assert.Equal(t, "p", cfg.MQTTPass)

	cfg = config.GetDefaultConfig()
	cfg.MQTTUrl = "mqtt://local:1883"
	assert.False(t, adoptConnection(cfg, saved))
	assert.Equal(t, "mqtt://local:1883", cfg.MQTTUrl)
	assert.Equal(t, config.DefaultTopic, cfg.MQTTTopic)

	cfg = config.GetDefaultConfig()
	cfg.MQTTUser = "explicit"
	assert.True(t, adoptConnection(cfg, &project.Connection{URL: "mqtt://b:1883"}))
	assert.Equal(t, config.DefaultTopic, cfg.MQTTTopic)
	assert.Equal(t, "explicit", cfg.MQTTUser)

	assert.False(t, adoptConnection(config.GetDefaultConfig(), nil))
	assert.False(t, adoptConnection(config.GetDefaultConfig(), &project.Connection{}))
}
