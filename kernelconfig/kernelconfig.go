// Package kernelconfig loads the session kernel's YAML configuration and
// converts it into the functional options kernel.Spawn and pool.Manager
// expect.
package kernelconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sessionkernel/kernel/internal/launcher"
	"github.com/sessionkernel/kernel/kernel"
)

// SandboxConfig wraps launcher candidates with a sandbox command.
type SandboxConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Config is the on-disk shape of the kernel's YAML configuration file,
// covering every option in the configuration table (§6.3).
type Config struct {
	InterpreterOverride   []string       `yaml:"interpreter_override"`
	ManagedRuntimePath    string         `yaml:"managed_runtime_path"`
	SystemInterpreterPath string         `yaml:"system_interpreter_path"`
	SandboxConfig         *SandboxConfig `yaml:"sandbox_config"`

	InitTimeoutSeconds   int `yaml:"init_timeout_seconds"`
	FrameSizeCapBytes    int `yaml:"frame_size_cap_bytes"`
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds"`
	ToolTimeoutSeconds   int `yaml:"tool_timeout_seconds"`

	IdleTTLSeconds      int `yaml:"idle_ttl_seconds"`
	MaxSessions         int `yaml:"max_sessions"`
	ReapIntervalSeconds int `yaml:"reap_interval_seconds"`
}

// Load reads and parses a YAML config file at path. A missing file is not
// an error: it yields a zero-value Config, which converts to all kernel and
// pool defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// SessionOptions converts the config into kernel.Spawn options.
func (c *Config) SessionOptions() []kernel.Option {
	var opts []kernel.Option

	launcherCfg := launcher.Config{
		Override:              c.InterpreterOverride,
		ManagedRuntimePath:    c.ManagedRuntimePath,
		SystemInterpreterPath: c.SystemInterpreterPath,
	}
	if c.SandboxConfig != nil {
		launcherCfg.Sandbox = &launcher.SandboxConfig{
			Command: c.SandboxConfig.Command,
			Args:    c.SandboxConfig.Args,
		}
	}
	opts = append(opts, kernel.WithLauncher(launcherCfg))

	if c.InitTimeoutSeconds > 0 {
		opts = append(opts, kernel.WithInitTimeout(time.Duration(c.InitTimeoutSeconds)*time.Second))
	}
	if c.FrameSizeCapBytes > 0 {
		opts = append(opts, kernel.WithFrameSizeCap(c.FrameSizeCapBytes))
	}
	if c.ShutdownGraceSeconds > 0 {
		opts = append(opts, kernel.WithShutdownGrace(time.Duration(c.ShutdownGraceSeconds)*time.Second))
	}
	if c.ToolTimeoutSeconds > 0 {
		opts = append(opts, kernel.WithToolTimeout(time.Duration(c.ToolTimeoutSeconds)*time.Second))
	}

	return opts
}

// PoolConfig returns the pool settings of the config: idle TTL, reap
// interval, and session cap. A zero duration is returned for an unset field,
// leaving the default to pool.Config. The caller builds the pool.Config and
// supplies Spawn itself (it needs the tool provider and diagnostic sink the
// pool itself has no opinion on).
func (c *Config) PoolConfig() (idleTTL, reapInterval time.Duration, maxSessions int) {
	if c.IdleTTLSeconds > 0 {
		idleTTL = time.Duration(c.IdleTTLSeconds) * time.Second
	}
	if c.ReapIntervalSeconds > 0 {
		reapInterval = time.Duration(c.ReapIntervalSeconds) * time.Second
	}
	maxSessions = c.MaxSessions
	return
}
