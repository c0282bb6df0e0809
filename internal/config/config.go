// Package config provides configuration management for the sdn-trust node.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the node configuration.
type Config struct {
	Network  NetworkConfig  `yaml:"network"`
	Overlay  OverlayConfig  `yaml:"overlay"`
	Identity IdentityConfig `yaml:"identity"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// NetworkConfig contains network-related settings.
type NetworkConfig struct {
	Listen          []string `yaml:"listen"`
	Bootstrap       []string `yaml:"bootstrap"`
	MaxConns        int      `yaml:"max_connections"`
	MDNSServiceName string   `yaml:"mdns_service_name"` // empty disables mDNS
	Rendezvous      string   `yaml:"rendezvous"`        // empty disables DHT rendezvous
	ProtocolPrefix  string   `yaml:"protocol_prefix"`
}

// OverlayConfig contains DHT query and replication settings.
type OverlayConfig struct {
	QueryTimeout       Duration `yaml:"query_timeout"`
	RecordMaxAge       Duration `yaml:"record_max_age"`
	PublishRetry       Duration `yaml:"publish_retry"`
	RendezvousInterval Duration `yaml:"rendezvous_interval"`
}

// IdentityConfig controls the node key and record generation.
type IdentityConfig struct {
	KeyPath string `yaml:"key_path"`
	// Deterministic derives the published records from the node key so they
	// survive restarts.
	Deterministic bool `yaml:"deterministic"`
}

// StorageConfig contains storage-related settings.
type StorageConfig struct {
	ArchivePath string `yaml:"archive_path"` // empty disables the archive
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig sets the default log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration is a time.Duration that reads and writes as "30s" in YAML.
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
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

// Default returns a default configuration.
func Default() *Config {
	base := BaseDir()

	return &Config{
		Network: NetworkConfig{
			Listen: []string{
				"/ip4/0.0.0.0/tcp/0",
			},
			Bootstrap:       []string{},
			MaxConns:        400,
			MDNSServiceName: "sdn-trust-mdns",
			Rendezvous:      "sdn-trust",
			ProtocolPrefix:  "/sdn-trust",
		},
		Overlay: OverlayConfig{
			QueryTimeout:       Duration(30 * time.Second),
			RecordMaxAge:       Duration(36 * time.Hour),
			PublishRetry:       Duration(2 * time.Minute),
			RendezvousInterval: Duration(30 * time.Second),
		},
		Identity: IdentityConfig{
			KeyPath:       filepath.Join(base, "keys", "node.key"),
			Deterministic: false,
		},
		Storage: StorageConfig{
			ArchivePath: filepath.Join(base, "data", "records.db"),
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// BaseDir returns the directory holding config, keys and data.
func BaseDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".sdn-trust")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(BaseDir(), "config.yaml")
}

// Load loads the configuration from a file. Settings missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a file.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
