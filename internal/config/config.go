package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Network         NetworkConfig     `yaml:"network"`
	Registry        RegistryConfig    `yaml:"registry"`
	Patterns        PatternsConfig    `yaml:"patterns"`
	Scheduler       SchedulerConfig   `yaml:"scheduler"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	MQTT            MQTTConfig        `yaml:"mqtt"`
	InfluxDB        InfluxDBConfig    `yaml:"influxdb"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// NetworkConfig contains light transport and discovery settings
type NetworkConfig struct {
	Broadcast           string   `yaml:"broadcast"`
	Port                int      `yaml:"port"`                  // Bulb UDP port (default: 38899)
	DiscoveryAttempts   int      `yaml:"discovery_attempts"`    // Attempts before giving up (default: 3)
	DiscoveryRetryDelay Duration `yaml:"discovery_retry_delay"` // Pause between attempts (default: 1s)
	DiscoveryWait       Duration `yaml:"discovery_wait"`        // How long one attempt listens (default: 2s)
	CallTimeout         Duration `yaml:"call_timeout"`          // Per device call timeout (default: 2s)
	RateLimitRPS        float64  `yaml:"rate_limit_rps"`        // Per bulb request rate (default: 20)
	Lights              []string `yaml:"lights"`                // Static addresses registered without discovery
}

// RegistryConfig contains device polling settings
type RegistryConfig struct {
	PollInterval      Duration `yaml:"poll_interval"`      // Full poll interval (default: 30s)
	Indicator         string   `yaml:"indicator"`          // Light polled continuously, empty disables
	IndicatorInterval Duration `yaml:"indicator_interval"` // (default: 20ms)
	StopTimeout       Duration `yaml:"stop_timeout"`       // Bound on stopping the indicator (default: 500ms)
}

// PatternsConfig contains pattern library settings
type PatternsConfig struct {
	Dir       string `yaml:"dir"`
	Autostart string `yaml:"autostart"` // Pattern started after discovery, empty for none
}

// SchedulerConfig contains pattern scheduler settings
type SchedulerConfig struct {
	IdlePass Duration `yaml:"idle_pass"` // Wait after a pass that reached no lights (default: 100ms)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// MQTTConfig contains MQTT publishing settings
type MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	TopicRoot string `yaml:"topic_root"`
	QoS       byte   `yaml:"qos"`
}

// InfluxDBConfig contains time-series history settings
type InfluxDBConfig struct {
	Enabled       bool     `yaml:"enabled"`
	URL           string   `yaml:"url"`
	Token         string   `yaml:"token"`
	Org           string   `yaml:"org"`
	Bucket        string   `yaml:"bucket"`
	BatchSize     uint     `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// LedgerConfig contains run ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// HealthcheckConfig contains status server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration YAML, expands environment variables, applies
// defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lightseq.sqlite"
	}

	// Network defaults
	if cfg.Network.Broadcast == "" {
		cfg.Network.Broadcast = "255.255.255.255"
	}
	if cfg.Network.Port == 0 {
		cfg.Network.Port = 38899
	}
	if cfg.Network.DiscoveryAttempts == 0 {
		cfg.Network.DiscoveryAttempts = 3
	}
	if cfg.Network.DiscoveryRetryDelay == 0 {
		cfg.Network.DiscoveryRetryDelay = Duration(time.Second)
	}
	if cfg.Network.DiscoveryWait == 0 {
		cfg.Network.DiscoveryWait = Duration(2 * time.Second)
	}
	if cfg.Network.CallTimeout == 0 {
		cfg.Network.CallTimeout = Duration(2 * time.Second)
	}
	if cfg.Network.RateLimitRPS == 0 {
		cfg.Network.RateLimitRPS = 20
	}

	// Registry defaults
	if cfg.Registry.PollInterval == 0 {
		cfg.Registry.PollInterval = Duration(30 * time.Second)
	}
	if cfg.Registry.IndicatorInterval == 0 {
		cfg.Registry.IndicatorInterval = Duration(20 * time.Millisecond)
	}
	if cfg.Registry.StopTimeout == 0 {
		cfg.Registry.StopTimeout = Duration(500 * time.Millisecond)
	}

	if cfg.Patterns.Dir == "" {
		cfg.Patterns.Dir = "./patterns"
	}
	if cfg.Scheduler.IdlePass == 0 {
		cfg.Scheduler.IdlePass = Duration(100 * time.Millisecond)
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "lightseq"
	}
	if cfg.MQTT.TopicRoot == "" {
		cfg.MQTT.TopicRoot = "lightseq"
	}

	// InfluxDB defaults
	if cfg.InfluxDB.BatchSize == 0 {
		cfg.InfluxDB.BatchSize = 100
	}
	if cfg.InfluxDB.FlushInterval == 0 {
		cfg.InfluxDB.FlushInterval = Duration(time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	if cfg.EventBus.Workers <= 0 {
		cfg.EventBus.Workers = 4
	}
	if cfg.EventBus.QueueSize <= 0 {
		cfg.EventBus.QueueSize = 100
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate reports settings that cannot work.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Network.DiscoveryAttempts < 1 {
		errs = append(errs, fmt.Errorf("network.discovery_attempts must be at least 1"))
	}
	if cfg.Network.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("network.rate_limit_rps must not be negative"))
	}
	if cfg.Registry.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("registry.poll_interval must not be negative"))
	}
	if cfg.Registry.IndicatorInterval < 0 {
		errs = append(errs, fmt.Errorf("registry.indicator_interval must not be negative"))
	}
	if cfg.Registry.StopTimeout < 0 {
		errs = append(errs, fmt.Errorf("registry.stop_timeout must not be negative"))
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		errs = append(errs, fmt.Errorf("mqtt.broker is required when mqtt is enabled"))
	}
	if cfg.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2"))
	}
	if cfg.InfluxDB.Enabled && (cfg.InfluxDB.URL == "" || cfg.InfluxDB.Bucket == "" || cfg.InfluxDB.Org == "") {
		errs = append(errs, fmt.Errorf("influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled"))
	}
	return errors.Join(errs...)
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
