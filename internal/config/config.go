// Package config handles loading and validating process-wide and per-pool
// configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/corepool/dbpool/pkg/poolcfg"
)

// ProcessConfig holds process-wide settings: the maintenance scheduler's
// cadence, the stats mirror, and the health/metrics HTTP surfaces.
type ProcessConfig struct {
	InstanceID                 string        `yaml:"instance_id"`
	MaintenanceInterval        time.Duration `yaml:"maintenance_interval"`
	MaintenanceKeepaliveSample int           `yaml:"maintenance_keepalive_sample"`
	HealthCheckPort            int           `yaml:"health_check_port"`
	MetricsPort                int           `yaml:"metrics_port"`

	StatsMirror StatsMirrorConfig `yaml:"stats_mirror"`
}

// StatsMirrorConfig holds the Redis connection configuration for the
// best-effort, non-authoritative stats mirror (component I).
type StatsMirrorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// Config is the root configuration: process-wide settings plus every
// named pool.
type Config struct {
	Process ProcessConfig        `yaml:"process"`
	Pools   []poolcfg.PoolConfig `yaml:"pools"`
}

// fileConfig mirrors the on-disk YAML shape; both process settings and
// pools may live in one file or be split across two, matching Load's two
// optional paths.
type fileConfig struct {
	Process ProcessConfig        `yaml:"process"`
	Pools   []poolcfg.PoolConfig `yaml:"pools"`
}

// Load reads the process config file and, if poolsConfigPath is non-empty
// and distinct, a second file carrying the `pools:` list; otherwise it
// expects `pools:` in the same document as `process:`.
func Load(processConfigPath, poolsConfigPath string) (*Config, error) {
	processData, err := os.ReadFile(processConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading process config %s: %w", processConfigPath, err)
	}

	var processFile fileConfig
	if err := yaml.Unmarshal(processData, &processFile); err != nil {
		return nil, fmt.Errorf("parsing process config %s: %w", processConfigPath, err)
	}

	cfg := &Config{
		Process: processFile.Process,
		Pools:   processFile.Pools,
	}

	if poolsConfigPath != "" && poolsConfigPath != processConfigPath {
		poolsData, err := os.ReadFile(poolsConfigPath)
		if err != nil {
			return nil, fmt.Errorf("reading pools config %s: %w", poolsConfigPath, err)
		}
		var poolsFile fileConfig
		if err := yaml.Unmarshal(poolsData, &poolsFile); err != nil {
			return nil, fmt.Errorf("parsing pools config %s: %w", poolsConfigPath, err)
		}
		cfg.Pools = poolsFile.Pools
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	cfg.applyDefaults()

	return cfg, nil
}

// validate checks that at least one pool is configured, that each pool's
// config is valid, and that pool names are unique. Process settings are
// not checked; applyDefaults fills the unset ones.
func (c *Config) validate() error {
	if len(c.Pools) == 0 {
		return fmt.Errorf("at least one pool must be configured")
	}

	seen := make(map[string]bool, len(c.Pools))
	for i := range c.Pools {
		if err := c.Pools[i].Validate(); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		name := c.Pools[i].Name
		if seen[name] {
			return fmt.Errorf("pools[%d]: duplicate pool name %q", i, name)
		}
		seen[name] = true
	}
	return nil
}

// applyDefaults fills in reasonable defaults for unset optional fields.
func (c *Config) applyDefaults() {
	if c.Process.MaintenanceInterval == 0 {
		c.Process.MaintenanceInterval = 30 * time.Second
	}
	if c.Process.HealthCheckPort == 0 {
		c.Process.HealthCheckPort = 8080
	}
	if c.Process.MetricsPort == 0 {
		c.Process.MetricsPort = 9090
	}
	if c.Process.InstanceID == "" {
		hostname, _ := os.Hostname()
		c.Process.InstanceID = hostname
	}
	if c.Process.StatsMirror.Enabled {
		if c.Process.StatsMirror.Addr == "" {
			c.Process.StatsMirror.Addr = "redis:6379"
		}
		if c.Process.StatsMirror.PublishInterval == 0 {
			c.Process.StatsMirror.PublishInterval = 10 * time.Second
		}
		if c.Process.StatsMirror.DialTimeout == 0 {
			c.Process.StatsMirror.DialTimeout = 5 * time.Second
		}
	}

	for i := range c.Pools {
		c.Pools[i].ApplyDefaults()
	}
}

// PoolByName returns the pool configuration with the given name.
func (c *Config) PoolByName(name string) (*poolcfg.PoolConfig, bool) {
	for i := range c.Pools {
		if c.Pools[i].Name == name {
			return &c.Pools[i], true
		}
	}
	return nil, false
}
