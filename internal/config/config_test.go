package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, "255.255.255.255", cfg.Network.Broadcast)
	assert.Equal(t, 38899, cfg.Network.Port)
	assert.Equal(t, 3, cfg.Network.DiscoveryAttempts)
	assert.Equal(t, time.Second, cfg.Network.DiscoveryRetryDelay.Duration())
	assert.Equal(t, 2*time.Second, cfg.Network.CallTimeout.Duration())
	assert.Equal(t, 20*time.Millisecond, cfg.Registry.IndicatorInterval.Duration())
	assert.Equal(t, 100*time.Millisecond, cfg.Scheduler.IdlePass.Duration())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "lightseq", cfg.MQTT.TopicRoot)
	assert.Equal(t, 4, cfg.EventBus.Workers)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout.Duration())
}

func TestParse_ZeroPollIntervalUsesDefault(t *testing.T) {
	cfg, err := Parse([]byte("registry:\n  poll_interval: 0s\n"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Registry.PollInterval.Duration())
}

func TestParse_Values(t *testing.T) {
	cfg, err := Parse([]byte(`
network:
  broadcast: 192.168.1.255
  discovery_attempts: 5
  discovery_retry_delay: 250ms
  lights: [192.168.1.20, 192.168.1.21]
registry:
  indicator: 192.168.1.20
  poll_interval: 1m
patterns:
  dir: /etc/lightseq/patterns
  autostart: Police
mqtt:
  enabled: true
  broker: tcp://mqtt:1883
`))
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.255", cfg.Network.Broadcast)
	assert.Equal(t, 5, cfg.Network.DiscoveryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Network.DiscoveryRetryDelay.Duration())
	assert.Equal(t, []string{"192.168.1.20", "192.168.1.21"}, cfg.Network.Lights)
	assert.Equal(t, "192.168.1.20", cfg.Registry.Indicator)
	assert.Equal(t, time.Minute, cfg.Registry.PollInterval.Duration())
	assert.Equal(t, "Police", cfg.Patterns.Autostart)
	assert.True(t, cfg.MQTT.Enabled)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"mqtt_without_broker", "mqtt:\n  enabled: true\n"},
		{"influx_without_bucket", "influxdb:\n  enabled: true\n  url: http://influx:8086\n"},
		{"negative_attempts", "network:\n  discovery_attempts: -1\n"},
		{"negative_indicator_interval", "registry:\n  indicator: 192.168.1.50\n  indicator_interval: -20ms\n"},
		{"negative_stop_timeout", "registry:\n  stop_timeout: -1s\n"},
		{"bad_duration", "network:\n  call_timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LIGHTSEQ_TEST_BROKER", "tcp://broker:1883")

	tests := []struct {
		input string
		want  string
	}{
		{"${LIGHTSEQ_TEST_BROKER}", "tcp://broker:1883"},
		{"${LIGHTSEQ_TEST_MISSING:fallback}", "fallback"},
		{"${LIGHTSEQ_TEST_MISSING}", ""},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnvVars(tt.input), tt.input)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: ${LIGHTSEQ_TEST_DB:/tmp/x.sqlite}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.sqlite", cfg.Database.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
