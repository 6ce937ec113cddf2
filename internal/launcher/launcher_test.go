package launcher

import (
	"os"
	"testing"
)

func TestChain_OverrideWinsAndSkipsRest(t *testing.T) {
	cfg := Config{
		Override:              []string{"/custom/bin", "--flag"},
		ManagedRuntimePath:    "/opt/managed/python3",
		SystemInterpreterPath: "/usr/bin/python3",
	}

	got := Chain(cfg)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 candidate, got %d: %+v", len(got), got)
	}
	if got[0].Name != "override" {
		t.Errorf("expected candidate name %q, got %q", "override", got[0].Name)
	}
	if len(got[0].Argv) != 2 || got[0].Argv[0] != "/custom/bin" || got[0].Argv[1] != "--flag" {
		t.Errorf("unexpected argv: %v", got[0].Argv)
	}
}

func TestChain_ManagedBeforeSystem(t *testing.T) {
	cfg := Config{
		ManagedRuntimePath:    "/opt/managed/python3",
		SystemInterpreterPath: "/usr/bin/python3",
		ScriptPath:            "/tmp/driver.py",
	}

	got := Chain(cfg)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
	}
	if got[0].Name != "managed-runtime" {
		t.Errorf("expected first candidate managed-runtime, got %q", got[0].Name)
	}
	if got[1].Name != "system-interpreter" {
		t.Errorf("expected second candidate system-interpreter, got %q", got[1].Name)
	}
	wantManaged := []string{"/opt/managed/python3", "/tmp/driver.py"}
	if !equal(got[0].Argv, wantManaged) {
		t.Errorf("managed argv = %v, want %v", got[0].Argv, wantManaged)
	}
}

func TestChain_OnlySystemInterpreterAvailable(t *testing.T) {
	cfg := Config{
		SystemInterpreterPath: "/usr/bin/python3",
		ScriptPath:            "/tmp/driver.py",
	}

	got := Chain(cfg)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(got), got)
	}
	if got[0].Name != "system-interpreter" {
		t.Errorf("expected system-interpreter, got %q", got[0].Name)
	}
}

func TestChain_NoCandidatesConfigured(t *testing.T) {
	got := Chain(Config{})
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestChain_SandboxWrapsEveryCandidate(t *testing.T) {
	cfg := Config{
		ManagedRuntimePath:    "/opt/managed/python3",
		SystemInterpreterPath: "/usr/bin/python3",
		ScriptPath:            "/tmp/driver.py",
		Sandbox: &SandboxConfig{
			Command: "bwrap",
			Args:    []string{"--ro-bind", "/", "/"},
		},
	}

	got := Chain(cfg)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	for _, c := range got {
		if c.Argv[0] != "bwrap" {
			t.Errorf("expected candidate %q to be wrapped by bwrap, got argv %v", c.Name, c.Argv)
		}
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWriteScript_WritesExecutableFileAndCleansUp(t *testing.T) {
	dir := t.TempDir()

	path, cleanup, err := WriteScript(dir)
	if err != nil {
		t.Fatalf("WriteScript: %v", err)
	}
	defer cleanup()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat written script: %v", err)
	}
	if info.Mode()&0o100 == 0 {
		t.Errorf("expected script to be executable, mode = %v", info.Mode())
	}

	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected script to be removed after cleanup, stat err = %v", err)
	}
}
