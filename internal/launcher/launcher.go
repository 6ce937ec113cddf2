// Package launcher resolves the command line used to spawn the interpreter
// subprocess and owns the embedded interpreter driver script.
package launcher

import "fmt"

// SandboxConfig wraps a launcher candidate's command line with a sandbox
// command, e.g. "bwrap --ro-bind / / -- <candidate...>".
type SandboxConfig struct {
	Command string
	Args    []string
}

// Config selects among launcher candidates. An explicit Override always wins
// over the managed runtime and system interpreter candidates.
type Config struct {
	// Override, if non-empty, forces this exact command line and skips the
	// rest of the chain.
	Override []string

	// ManagedRuntimePath is a version-pinned interpreter binary path,
	// preferred over the system interpreter when present.
	ManagedRuntimePath string

	// SystemInterpreterPath is the fallback interpreter found on PATH.
	SystemInterpreterPath string

	// ScriptPath is appended as the final argument to managed/system
	// candidates: the path of the interpreter driver script written by
	// WriteScript.
	ScriptPath string

	// Sandbox, if set, wraps every candidate's command line.
	Sandbox *SandboxConfig
}

// Candidate is one resolved command line to try spawning, already wrapped by
// the sandbox command when one is configured.
type Candidate struct {
	Name string
	Argv []string
}

// Chain builds the ordered list of candidates to attempt, per spec.md §4.1:
// an explicit override always wins; otherwise the managed runtime is tried
// before the system interpreter. Every candidate is wrapped by the sandbox
// command when one is configured.
func Chain(cfg Config) []Candidate {
	if len(cfg.Override) > 0 {
		return []Candidate{wrap("override", cfg.Override, cfg.Sandbox)}
	}

	var candidates []Candidate
	if cfg.ManagedRuntimePath != "" {
		candidates = append(candidates, wrap("managed-runtime", argv(cfg.ManagedRuntimePath, cfg.ScriptPath), cfg.Sandbox))
	}
	if cfg.SystemInterpreterPath != "" {
		candidates = append(candidates, wrap("system-interpreter", argv(cfg.SystemInterpreterPath, cfg.ScriptPath), cfg.Sandbox))
	}
	return candidates
}

func argv(bin, script string) []string {
	if script == "" {
		return []string{bin}
	}
	return []string{bin, script}
}

func wrap(name string, argv []string, sandbox *SandboxConfig) Candidate {
	if sandbox == nil {
		return Candidate{Name: name, Argv: argv}
	}
	wrapped := make([]string, 0, len(sandbox.Args)+len(argv)+1)
	wrapped = append(wrapped, sandbox.Args...)
	wrapped = append(wrapped, argv...)
	return Candidate{Name: fmt.Sprintf("%s (sandboxed)", name), Argv: append([]string{sandbox.Command}, wrapped...)}
}
