// Package diagnostic carries interpreter stderr output and session lifecycle
// events out of the kernel without forcing a particular logging backend on
// callers.
package diagnostic

import (
	"context"
	"log/slog"
)

// Sink receives diagnostic output from a session. Implementations must be
// safe for concurrent use; Stderr and Event may be called from different
// goroutines for the same session.
type Sink interface {
	// Stderr is called once per line drained from the interpreter's stderr.
	Stderr(sessionID string, line []byte)

	// Event records a structured lifecycle event (spawn, ready, shutdown,
	// protocol error, etc).
	Event(sessionID string, level slog.Level, msg string, attrs ...any)
}

// SlogSink is the default Sink, forwarding everything to a *slog.Logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps logger. A nil logger uses slog.Default().
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Stderr(sessionID string, line []byte) {
	s.logger.Info("interpreter stderr", "session_id", sessionID, "line", string(line))
}

func (s *SlogSink) Event(sessionID string, level slog.Level, msg string, attrs ...any) {
	args := make([]any, 0, len(attrs)+2)
	args = append(args, "session_id", sessionID)
	args = append(args, attrs...)
	s.logger.Log(context.Background(), level, msg, args...)
}

var _ Sink = (*SlogSink)(nil)

// NopSink discards everything. Useful as a default when the caller has not
// configured a Sink.
type NopSink struct{}

func (NopSink) Stderr(string, []byte)                    {}
func (NopSink) Event(string, slog.Level, string, ...any) {}

var _ Sink = NopSink{}
