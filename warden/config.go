package warden

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// BackupStrategy governs whether the application is stopped for the
// duration of a backup.
type BackupStrategy string

const (
	// StopApp stops the application before the snapshot and restarts it
	// afterwards. This is the default; it guarantees a quiescent source.
	StopApp BackupStrategy = "stop_app"
	// Live snapshots the source while the application keeps running.
	Live BackupStrategy = "live"
)

// RestoreStrategy governs whether a restore runs when its destination
// already exists.
type RestoreStrategy string

const (
	// IfMissing restores only when the destination path does not exist.
	// This is the default.
	IfMissing RestoreStrategy = "if_missing"
	// Always restores unconditionally.
	Always RestoreStrategy = "always"
)

// FailurePolicy decides what a failed backup run does to the supervisor.
type FailurePolicy string

const (
	// FailFast terminates the whole run on the first failed backup. This is
	// the default.
	FailFast FailurePolicy = "fail"
	// Retry logs the failure and leaves recovery to the next scheduled
	// attempt.
	Retry FailurePolicy = "retry"
)

// NetworkMode is the container network mode.
type NetworkMode string

const (
	NetworkHost   NetworkMode = "host"
	NetworkBridge NetworkMode = "bridge"
)

// Config is the operator-supplied configuration.
type Config struct {
	// Timezone is an IANA timezone name used to anchor daily and weekly
	// schedule boundaries. Empty means the system's local timezone.
	Timezone string `yaml:"timezone,omitempty"`
	// Runtime is the container runtime binary, docker or podman.
	Runtime string `yaml:"runtime,omitempty"`
	// Journal is the path of the journal file. Empty disables the file
	// journal (and with it the single-instance lock).
	Journal string `yaml:"journal,omitempty"`
	// MetricsAddr is the listen address for the Prometheus endpoint. Empty
	// disables it.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	App      AppConfig       `yaml:"app"`
	Backups  []BackupConfig  `yaml:"backups,omitempty"`
	Restores []RestoreConfig `yaml:"restores,omitempty"`
	Update   *UpdateConfig   `yaml:"update,omitempty"`
}

// AppConfig describes the managed application container. It is immutable
// once loaded and consumed each time the application is (re)started.
type AppConfig struct {
	Image        string            `yaml:"image"`
	Args         []string          `yaml:"args,omitempty"`
	Volumes      []string          `yaml:"volumes,omitempty"`
	Ports        []string          `yaml:"ports,omitempty"`
	NetworkMode  NetworkMode       `yaml:"network_mode,omitempty"`
	Environments map[string]string `yaml:"environments,omitempty"`
	CapAdd       []string          `yaml:"cap_add,omitempty"`
}

// BackupConfig is one backup policy.
type BackupConfig struct {
	Repo         string            `yaml:"repo"`
	Src          string            `yaml:"src"`
	Interval     Interval          `yaml:"interval"`
	Strategy     BackupStrategy    `yaml:"strategy,omitempty"`
	OnFailure    FailurePolicy     `yaml:"on_failure,omitempty"`
	Environments map[string]string `yaml:"environments,omitempty"`
}

// RestoreConfig is one restore policy, evaluated once at startup.
type RestoreConfig struct {
	Repo         string            `yaml:"repo"`
	Dst          string            `yaml:"dst"`
	Strategy     RestoreStrategy   `yaml:"strategy,omitempty"`
	Environments map[string]string `yaml:"environments,omitempty"`
}

// UpdateConfig governs image update checks.
type UpdateConfig struct {
	Interval Interval `yaml:"interval"`
}

// LoadConfig reads, decodes and validates the YAML config at path. Unknown
// fields are rejected.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate applies defaults and checks the config for consistency.
func (c *Config) Validate() error {
	switch c.Runtime {
	case "":
		c.Runtime = "docker"
	case "docker", "podman":
	default:
		return errors.Errorf("unknown runtime %q, want docker or podman", c.Runtime)
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return errors.Wrapf(err, "invalid timezone %q", c.Timezone)
		}
	}

	if c.App.Image == "" {
		return errors.New("app.image is required")
	}

	switch c.App.NetworkMode {
	case "":
		c.App.NetworkMode = NetworkHost
	case NetworkHost, NetworkBridge:
	default:
		return errors.Errorf("unknown network_mode %q", c.App.NetworkMode)
	}

	for i := range c.Backups {
		b := &c.Backups[i]

		if b.Repo == "" {
			return errors.Errorf("backups[%d].repo is required", i)
		}
		if b.Src == "" {
			return errors.Errorf("backups[%d].src is required", i)
		}
		if b.Interval.IsZero() {
			return errors.Errorf("backups[%d].interval is required", i)
		}

		switch b.Strategy {
		case "":
			b.Strategy = StopApp
		case StopApp, Live:
		default:
			return errors.Errorf("backups[%d]: unknown strategy %q", i, b.Strategy)
		}

		switch b.OnFailure {
		case "":
			b.OnFailure = FailFast
		case FailFast, Retry:
		default:
			return errors.Errorf("backups[%d]: unknown on_failure %q", i, b.OnFailure)
		}
	}

	for i := range c.Restores {
		r := &c.Restores[i]

		if r.Repo == "" {
			return errors.Errorf("restores[%d].repo is required", i)
		}
		if r.Dst == "" {
			return errors.Errorf("restores[%d].dst is required", i)
		}

		switch r.Strategy {
		case "":
			r.Strategy = IfMissing
		case IfMissing, Always:
		default:
			return errors.Errorf("restores[%d]: unknown strategy %q", i, r.Strategy)
		}
	}

	if c.Update != nil && c.Update.Interval.IsZero() {
		return errors.New("update.interval is required when update is set")
	}

	return nil
}

// UpdateInterval returns the configured update interval, defaulting to
// daily when no update block is present.
func (c *Config) UpdateInterval() Interval {
	if c.Update == nil {
		return Daily()
	}
	return c.Update.Interval
}

// Location resolves the configured timezone, defaulting to the system's
// local timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
