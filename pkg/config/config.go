// Package config loads the fabric controller configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glennswest/vlanfabric/pkg/network/topology"
)

// EnvConfigPath overrides DefaultPath when set.
const EnvConfigPath = "VLANFABRIC_CONFIG"

// DefaultPath is where the config is read from when nothing else is given.
const DefaultPath = "/etc/vlanfabric/config.yaml"

// Device backends.
const (
	BackendNetConf = "netconf"
	BackendRestful = "restful"
	BackendLinux   = "linux"
)

// Config is the controller configuration.
type Config struct {
	ListenAddr  string `yaml:"listenAddr"`  // fabric API, e.g. ":8080"
	MetricsAddr string `yaml:"metricsAddr"` // prometheus endpoint, empty disables

	Log      LogConfig      `yaml:"log"`
	Sync     SyncConfig     `yaml:"sync"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Devices  DevicesConfig  `yaml:"devices"`
	Store    StoreConfig    `yaml:"store"`

	// Cabling of the leaf/spine fabric
	Fabric FabricConfig `yaml:"fabric"`
}

// LogConfig selects log level, encoding and an optional rotated file.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console or auto
	File   string `yaml:"file"`
}

// SyncConfig controls the periodic full sync.
type SyncConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Schedule string        `yaml:"schedule"` // cron spec, takes precedence over Interval
	Overlap  bool          `yaml:"overlap"`  // replace device VLAN sets instead of merging
}

// IsEnabled reports whether the periodic sync should run. Defaults to true.
func (s SyncConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// WatchdogConfig controls device reachability probing.
type WatchdogConfig struct {
	Enabled   *bool         `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	Threshold int           `yaml:"threshold"` // failed probes before a device is down
}

// IsEnabled reports whether the watchdog should run. Defaults to true.
func (w WatchdogConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// DevicesConfig holds the credentials and transport shared by all switches.
type DevicesConfig struct {
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	Backend            string        `yaml:"backend"`
	Schema             string        `yaml:"schema"` // https or http
	OEM                string        `yaml:"oem"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
	Bridge             string        `yaml:"bridge"` // linux backend only
}

// StoreConfig selects the assignment store.
type StoreConfig struct {
	Backend string `yaml:"backend"` // sqlite, file or memory
	Path    string `yaml:"path"`
}

// FabricConfig is the static cabling description.
type FabricConfig struct {
	Leaves []topology.LeafSwitch  `yaml:"leaves"`
	Spines []topology.SpineSwitch `yaml:"spines"`
}

// Path returns the config path to use: explicit if given, then the
// environment override, then DefaultPath.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads, defaults and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = "127.0.0.1:2112"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 300 * time.Second
	}
	if c.Watchdog.Interval == 0 {
		c.Watchdog.Interval = 30 * time.Second
	}
	if c.Watchdog.Threshold == 0 {
		c.Watchdog.Threshold = 3
	}
	if c.Devices.Backend == "" {
		c.Devices.Backend = BackendNetConf
	}
	if c.Devices.Schema == "" {
		c.Devices.Schema = "https"
	}
	if c.Devices.OEM == "" {
		c.Devices.OEM = topology.DefaultOEM
	}
	if c.Devices.Timeout == 0 {
		c.Devices.Timeout = 10 * time.Second
	}
	if c.Devices.Bridge == "" {
		c.Devices.Bridge = "br0"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Store.Path == "" {
		switch c.Store.Backend {
		case "sqlite":
			c.Store.Path = "/var/lib/vlanfabric/fabric.db"
		case "file":
			c.Store.Path = "/var/lib/vlanfabric/state.yaml"
		}
	}
}

// Validate checks field values. It does not build the topology.
func (c *Config) Validate() error {
	var errs []error

	if c.Sync.Interval < 0 {
		errs = append(errs, fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval))
	}
	if c.Watchdog.Interval < 0 {
		errs = append(errs, fmt.Errorf("watchdog.interval must be positive, got %s", c.Watchdog.Interval))
	}
	if c.Watchdog.Threshold < 0 {
		errs = append(errs, fmt.Errorf("watchdog.threshold must be positive, got %d", c.Watchdog.Threshold))
	}
	switch c.Devices.Backend {
	case BackendNetConf, BackendRestful, BackendLinux:
	default:
		errs = append(errs, fmt.Errorf("devices.backend %q is not one of netconf, restful, linux", c.Devices.Backend))
	}
	switch c.Devices.Schema {
	case "http", "https":
	default:
		errs = append(errs, fmt.Errorf("devices.schema %q is not http or https", c.Devices.Schema))
	}
	if c.Devices.Timeout < 0 {
		errs = append(errs, fmt.Errorf("devices.timeout must be positive, got %s", c.Devices.Timeout))
	}
	switch c.Store.Backend {
	case "sqlite", "file", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of sqlite, file, memory", c.Store.Backend))
	}
	switch c.Log.Format {
	case "json", "console", "auto":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json, console or auto", c.Log.Format))
	}

	for i, l := range c.Fabric.Leaves {
		if l.IP == "" {
			errs = append(errs, fmt.Errorf("fabric.leaves[%d]: ip is required", i))
		}
	}
	for i, s := range c.Fabric.Spines {
		if s.IP == "" {
			errs = append(errs, fmt.Errorf("fabric.spines[%d]: ip is required", i))
		}
	}

	return errors.Join(errs...)
}

// Topology builds the immutable fabric model from the cabling section.
func (c *Config) Topology() (*topology.Fabric, error) {
	f, err := topology.New(c.Fabric.Leaves, c.Fabric.Spines, c.Devices.OEM)
	if err != nil {
		return nil, fmt.Errorf("building fabric: %w", err)
	}
	return f, nil
}
