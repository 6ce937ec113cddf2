package kernel

import (
	"time"

	"github.com/sessionkernel/kernel/diagnostic"
	"github.com/sessionkernel/kernel/internal/launcher"
	"github.com/sessionkernel/kernel/tool"
)

type config struct {
	launcher      launcher.Config
	provider      tool.Provider
	sink          diagnostic.Sink
	initTimeout   time.Duration
	frameSizeCap  int
	shutdownGrace time.Duration
	toolTimeout   time.Duration
	writeQueue    int
	scriptDir     string
}

func defaultConfig() config {
	return config{
		provider:      tool.NewRegistry(),
		sink:          diagnostic.NopSink{},
		initTimeout:   30 * time.Second,
		frameSizeCap:  16 * 1024 * 1024,
		shutdownGrace: 2 * time.Second,
		writeQueue:    32,
	}
}

// Option configures a Session at construction time.
type Option func(*config)

// WithLauncher sets the launcher candidate resolution config.
func WithLauncher(c launcher.Config) Option {
	return func(cfg *config) { cfg.launcher = c }
}

// WithToolProvider sets the provider tool_call frames are dispatched to.
func WithToolProvider(p tool.Provider) Option {
	return func(cfg *config) { cfg.provider = p }
}

// WithDiagnosticSink sets where stderr lines and lifecycle events are routed.
func WithDiagnosticSink(s diagnostic.Sink) Option {
	return func(cfg *config) { cfg.sink = s }
}

// WithInitTimeout bounds how long Spawn waits for the ready frame.
func WithInitTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.initTimeout = d }
}

// WithFrameSizeCap bounds the maximum size of a single inbound frame.
func WithFrameSizeCap(n int) Option {
	return func(cfg *config) { cfg.frameSizeCap = n }
}

// WithShutdownGrace bounds the SIGTERM-to-SIGKILL window.
func WithShutdownGrace(d time.Duration) Option {
	return func(cfg *config) { cfg.shutdownGrace = d }
}

// WithToolTimeout bounds how long a single tool invocation may run before its
// context is cancelled. Zero means no deadline.
func WithToolTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.toolTimeout = d }
}

// WithWriteQueueSize bounds the writer actor's input queue depth.
func WithWriteQueueSize(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.writeQueue = n
		}
	}
}

// WithScriptDir sets the parent directory the embedded interpreter script is
// written under. Defaults to os.TempDir() when empty.
func WithScriptDir(dir string) Option {
	return func(cfg *config) { cfg.scriptDir = dir }
}
