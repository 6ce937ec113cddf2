package kernelconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsZeroValueConfig(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxSessions)
}

func TestLoad_ParsesKnownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kernel.yaml")
	contents := `
interpreter_override: ["/opt/bin/python3", "driver.py"]
sandbox_config:
  command: bwrap
  args: ["--ro-bind", "/", "/"]
init_timeout_seconds: 45
frame_size_cap_bytes: 1048576
shutdown_grace_seconds: 3
idle_ttl_seconds: 600
max_sessions: 8
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/opt/bin/python3", "driver.py"}, cfg.InterpreterOverride)
	require.NotNil(t, cfg.SandboxConfig)
	assert.Equal(t, "bwrap", cfg.SandboxConfig.Command)
	assert.Equal(t, 45, cfg.InitTimeoutSeconds)
	assert.Equal(t, 8, cfg.MaxSessions)
}

func TestSessionOptions_AppliesOverride(t *testing.T) {
	cfg := &Config{InterpreterOverride: []string{"/bin/python3"}, InitTimeoutSeconds: 10}
	opts := cfg.SessionOptions()
	assert.NotEmpty(t, opts)
}

func TestPoolConfig_DefaultsPassThroughZero(t *testing.T) {
	cfg := &Config{IdleTTLSeconds: 120, MaxSessions: 4}
	idleTTL, reapInterval, maxSessions := cfg.PoolConfig()
	assert.Equal(t, 120*time.Second, idleTTL)
	assert.Equal(t, time.Duration(0), reapInterval)
	assert.Equal(t, 4, maxSessions)
}
