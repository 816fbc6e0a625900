// Package daemon manages the vrrd daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/panelworks/vrrd/internal/display"
)

// Config holds all daemon configuration.
type Config struct {
	Node        NodeConfig        `toml:"node"`
	Panel       PanelConfig       `toml:"panel"`
	VRR         VRRConfig         `toml:"vrr"`
	Statistics  StatisticsConfig  `toml:"statistics"`
	RefreshRate RefreshRateConfig `toml:"refresh_rate"`
	API         APIConfig         `toml:"api"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// NodeConfig identifies this display node.
type NodeConfig struct {
	ID string `toml:"id"`
}

// PanelConfig locates the panel control and attribute nodes.
type PanelConfig struct {
	// Path is the panel file-node directory command tokens are written to.
	// Empty means "use the context provider's panel path".
	Path string `toml:"path"`
	// SysfsDir, when set, backs the display context provider with panel
	// attribute files (power_mode, brightness_mode, active_config).
	SysfsDir string `toml:"sysfs_dir"`
}

// VRRConfigEntry is one row of the per-configuration parameter table.
type VRRConfigEntry struct {
	ID               int32  `toml:"id"`
	MinFrameInterval string `toml:"min_frame_interval"`
	Timeout          string `toml:"timeout"`
}

// VRRConfig carries the configuration table and the boot-time active entry.
type VRRConfig struct {
	ActiveConfig int32            `toml:"active_config"`
	Configs      []VRRConfigEntry `toml:"configs"`
}

// StatisticsConfig controls the present statistics aggregator.
type StatisticsConfig struct {
	MaxFrameRate   int    `toml:"max_frame_rate"`
	MaxTeFrequency int    `toml:"max_te_frequency"`
	UpdatePeriod   string `toml:"update_period"`
	SnapshotPeriod string `toml:"snapshot_period"`
}

// RefreshRateConfig controls the period refresh-rate calculator.
type RefreshRateConfig struct {
	Calculator    string `toml:"calculator"` // "average" or "major"
	MeasurePeriod string `toml:"measure_period"`
	Confidence    int    `toml:"confidence"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// TelemetryConfig toggles the telemetry sinks.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
	SQLite     bool `toml:"sqlite"`
}

// DefaultConfig returns a configuration for a 120 Hz VRR panel with the
// production grace period and keep-alive cadence.
func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{ID: "display-primary"},
		VRR: VRRConfig{
			ActiveConfig: 1,
			Configs: []VRRConfigEntry{
				{ID: 1, MinFrameInterval: "8333333ns", Timeout: "30ms"},
			},
		},
		Statistics: StatisticsConfig{
			MaxFrameRate:   120,
			MaxTeFrequency: 120,
			UpdatePeriod:   "1s",
			SnapshotPeriod: "1m",
		},
		RefreshRate: RefreshRateConfig{
			Calculator:    "average",
			MeasurePeriod: "500ms",
			Confidence:    50,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8791,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
			SQLite:     true,
		},
	}
}

// LoadConfig reads config from $VRRD_HOME/config.toml, falling back to
// defaults when no file exists.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(vrrdHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to $VRRD_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(vrrdHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// VrrTable converts the config entries into the controller's parameter map.
func (c Config) VrrTable() (map[display.ConfigID]display.VrrConfig, error) {
	table := make(map[display.ConfigID]display.VrrConfig, len(c.VRR.Configs))
	for _, entry := range c.VRR.Configs {
		minInterval, err := parseDurationNs(entry.MinFrameInterval)
		if err != nil {
			return nil, fmt.Errorf("config %d min_frame_interval: %w", entry.ID, err)
		}
		timeout, err := parseDurationNs(entry.Timeout)
		if err != nil {
			return nil, fmt.Errorf("config %d timeout: %w", entry.ID, err)
		}
		table[display.ConfigID(entry.ID)] = display.VrrConfig{
			MinFrameIntervalNs: minInterval,
			NotifyExpectedPresentConfig: display.ExpectedPresentConfig{
				TimeoutNs: timeout,
			},
		}
	}
	return table, nil
}

func parseDurationNs(s string) (int64, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d.Nanoseconds(), nil
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// vrrdHome returns the vrrd data directory.
func vrrdHome() string {
	if env := os.Getenv("VRRD_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vrrd")
}

// VrrdHome is exported for use by other packages.
func VrrdHome() string {
	return vrrdHome()
}
