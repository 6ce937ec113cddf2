// Package kernel implements the Session Core: it owns one interpreter
// subprocess, drives the JSONL protocol handshake, multiplexes exec,
// snapshot, and restore requests against inbound frames by id, and bridges
// tool_call frames to a host-provided tool.Provider with concurrent fan-out.
package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sessionkernel/kernel/internal/launcher"
	"github.com/sessionkernel/kernel/process"
	"github.com/sessionkernel/kernel/protocol"
	"github.com/sessionkernel/kernel/tool"
)

type writeRequest struct {
	frame protocol.Frame
	errCh chan error
}

// Session owns one interpreter subprocess and its protocol state.
type Session struct {
	id    string
	cfg   config
	child *process.Child
	enc   *protocol.Encoder
	dec   *protocol.Decoder
	state *stateManager

	scriptCleanup func() error

	// toolTimeouts holds per-tool Timeout overrides (tool.Def.Timeout),
	// captured once from the provider's catalog in Spawn before the
	// reader/writer goroutines start, since ToolDef is immutable for a
	// session's lifetime (§3). A name absent here uses the session's global
	// tool_timeout.
	toolTimeouts map[string]time.Duration

	idCounter atomic.Uint64

	mu         sync.Mutex
	pending    map[string]*pendingOp
	busyKind   opKind
	busyID     string
	current    *pendingOp // the exec currently receiving message frames
	deadCause  error
	lastActive time.Time

	writeCh chan writeRequest
	closing chan struct{}
	closeMu sync.Once

	readerExited chan struct{}
	writerExited chan struct{}

	initOnce sync.Once
	initDone chan struct{}
	initErr  error

	shutdownOnce sync.Once
	shutdownErr  error

	cleanupOnce sync.Once
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current state.
func (s *Session) State() State { return s.state.Current() }

// Spawn launches an interpreter subprocess via the configured launcher
// chain, performs the init handshake, and returns a Ready session.
func Spawn(ctx context.Context, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	scriptPath, cleanup, err := launcher.WriteScript(cfg.scriptDir)
	if err != nil {
		return nil, &LaunchFailed{Cause: err}
	}

	launcherCfg := cfg.launcher
	launcherCfg.ScriptPath = scriptPath
	candidates := launcher.Chain(launcherCfg)

	id := uuid.NewString()

	child, err := process.Spawn(ctx, process.Config{
		Candidates:    candidates,
		ShutdownGrace: cfg.shutdownGrace,
		StderrHandler: func(line []byte) { cfg.sink.Stderr(id, line) },
	})
	if err != nil {
		_ = cleanup()
		return nil, &LaunchFailed{Cause: err}
	}

	defs := cfg.provider.Definitions()
	toolTimeouts := make(map[string]time.Duration, len(defs))
	for _, def := range defs {
		if def.Timeout > 0 {
			toolTimeouts[def.Name] = def.Timeout
		}
	}

	s := &Session{
		id:            id,
		cfg:           cfg,
		child:         child,
		enc:           protocol.NewEncoder(child.Stdin()),
		dec:           protocol.NewDecoder(child.Stdout(), cfg.frameSizeCap),
		state:         newStateManager(),
		scriptCleanup: cleanup,
		toolTimeouts:  toolTimeouts,
		pending:       make(map[string]*pendingOp),
		writeCh:       make(chan writeRequest, cfg.writeQueue),
		closing:       make(chan struct{}),
		readerExited:  make(chan struct{}),
		writerExited:  make(chan struct{}),
		initDone:      make(chan struct{}),
	}

	// defs is captured once here, before the reader/writer goroutines start,
	// so toolTimeouts is fully populated before any concurrent access from a
	// tool-dispatch task can occur.
	go s.writerLoop()
	go s.readerLoop()

	if err := s.handshake(ctx); err != nil {
		return nil, err
	}

	s.cfg.sink.Event(s.id, slog.LevelInfo, "session ready", "candidate", child.Candidate())
	return s, nil
}

func (s *Session) handshake(ctx context.Context) error {
	toolsJSON, err := json.Marshal(s.cfg.provider.Definitions())
	if err != nil {
		s.fail(err)
		return &InitFailed{Cause: err}
	}

	if err := s.submit(ctx, protocol.NewInitFrame(string(toolsJSON))); err != nil {
		return &InitFailed{Cause: err}
	}

	timer := time.NewTimer(s.cfg.initTimeout)
	defer timer.Stop()

	select {
	case <-s.initDone:
		if s.initErr != nil {
			return &InitFailed{Cause: s.initErr}
		}
		return nil
	case <-timer.C:
		s.fail(&InitTimeout{})
		return &InitTimeout{}
	case <-ctx.Done():
		s.fail(ctx.Err())
		return ctx.Err()
	}
}

func (s *Session) resolveInit(err error) {
	s.initOnce.Do(func() {
		s.initErr = err
		close(s.initDone)
	})
}

// nextID draws a fresh, unique operation id from a monotonic counter.
func (s *Session) nextID() string {
	return strconv.FormatUint(s.idCounter.Add(1), 10)
}

func (s *Session) deadCauseSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadCause
}

// submit hands f to the writer actor and waits for it to be flushed (or for
// the session to die first).
func (s *Session) submit(ctx context.Context, f protocol.Frame) error {
	respCh := make(chan error, 1)
	select {
	case s.writeCh <- writeRequest{frame: f, errCh: respCh}:
	case <-s.closing:
		return &SessionDead{Cause: s.deadCauseSnapshot()}
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-respCh:
		return err
	case <-s.closing:
		return &SessionDead{Cause: s.deadCauseSnapshot()}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) writerLoop() {
	defer close(s.writerExited)
	for {
		select {
		case req := <-s.writeCh:
			err := s.enc.Write(req.frame)
			if req.errCh != nil {
				req.errCh <- err
			}
			if err != nil {
				s.fail(err)
				return
			}
		case <-s.closing:
			return
		}
	}
}

func (s *Session) readerLoop() {
	defer close(s.readerExited)
	for {
		frame, err := s.dec.ReadFrame()
		if err != nil {
			if err == io.EOF {
				s.fail(&ChildExited{Status: s.child.Wait()})
			} else {
				s.fail(err)
			}
			s.resolveInit(err)
			return
		}
		if s.state.Current() == StateSpawning {
			if _, ok := frame.(protocol.ReadyFrame); !ok {
				perr := &protocol.ProtocolError{Cause: fmt.Errorf("unexpected frame during handshake: only ready is accepted")}
				s.fail(perr)
				s.resolveInit(perr)
				return
			}
		}
		if frame == nil {
			s.cfg.sink.Event(s.id, slog.LevelDebug, "ignoring frame of unknown type")
			continue
		}
		s.dispatch(frame)
	}
}

func (s *Session) dispatch(f protocol.Frame) {
	switch v := f.(type) {
	case protocol.ReadyFrame:
		if s.state.Current() == StateSpawning {
			s.state.Set(StateReady)
		}
		s.resolveInit(nil)
	case protocol.ToolCallFrame:
		s.dispatchToolCall(v)
	case protocol.MessageFrame:
		s.mu.Lock()
		cur := s.current
		s.mu.Unlock()
		if cur != nil {
			cur.pushMessage(MessageEvent{Text: v.Text, Kind: v.Kind})
		}
	case protocol.ExecResultFrame:
		s.resolveTerminal(v.ID, ExecOutcome{Output: v.Output, Response: v.Response, Error: v.Error}, nil, nil)
	case protocol.SnapshotResultFrame:
		var err error
		if v.Error != nil {
			err = &SnapshotUnsupported{Cause: *v.Error}
		}
		s.resolveTerminal(v.ID, ExecOutcome{}, []byte(v.Data), err)
	}
}

// resolveTerminal completes the pending op for id, clearing busy state only
// if id is the one currently holding it. dataBlob is the snapshot payload
// for opSnapshot ops; wireErr is a translated interpreter-reported failure
// for snapshot/restore ops (not applicable to exec, whose error travels
// inside outcome.Error instead).
func (s *Session) resolveTerminal(id string, outcome ExecOutcome, dataBlob []byte, wireErr error) {
	s.mu.Lock()
	op, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	if s.busyID == id {
		s.busyKind = opNone
		s.busyID = ""
		s.current = nil
		if cur := s.state.Current(); cur != StateDead && cur != StateShuttingDown {
			s.state.Set(StateReady)
		}
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	if op.isOrphaned() {
		op.resolve(ExecOutcome{}, nil, &Cancelled{})
		return
	}

	switch op.kind {
	case opExec:
		op.resolve(outcome, nil, nil)
	case opSnapshot:
		op.resolve(ExecOutcome{}, dataBlob, wireErr)
	case opRestore:
		var err error
		switch {
		case outcome.Error != nil:
			err = &RestoreFailed{Cause: *outcome.Error}
		default:
			err = wireErr
		}
		op.resolve(ExecOutcome{}, nil, err)
	}
}

func (s *Session) dispatchToolCall(f protocol.ToolCallFrame) {
	go func() {
		timeout := s.cfg.toolTimeout
		if override, ok := s.toolTimeouts[f.Name]; ok {
			timeout = override
		}

		lifeCtx, cancelLife := context.WithCancel(context.Background())
		defer cancelLife()
		go func() {
			select {
			case <-s.closing:
				cancelLife()
			case <-lifeCtx.Done():
			}
		}()

		ctx := lifeCtx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		result := s.invokeTool(ctx, f.Name, json.RawMessage(f.Args))
		_ = s.submit(context.Background(), protocol.NewToolResultFrame(f.ID, result.Success, result.Result))
	}()
}

func (s *Session) invokeTool(ctx context.Context, name string, args json.RawMessage) (result tool.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = tool.Result{Success: false, Result: fmt.Sprintf("tool %q panicked: %v", name, r)}
		}
	}()

	res, err := s.cfg.provider.Execute(ctx, name, args)
	if err != nil {
		return tool.Result{Success: false, Result: fmt.Sprintf("tool %q failed: %v", name, err)}
	}
	return res
}

func (s *Session) beginOp(kind opKind, id string) (*pendingOp, error) {
	if s.state.IsDead() {
		return nil, &SessionDead{Cause: s.deadCauseSnapshot()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyKind != opNone {
		return nil, ErrBusy
	}

	op := newPendingOp(id, kind)
	s.pending[id] = op
	s.busyKind = kind
	s.busyID = id
	if kind == opExec {
		s.current = op
	}
	s.lastActive = time.Now()
	return op, nil
}

func (s *Session) abortOp(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	if s.busyID == id {
		s.busyKind = opNone
		s.busyID = ""
		s.current = nil
	}
	s.mu.Unlock()
}

// RunCode assigns a fresh id, writes an exec frame, and returns a handle for
// the interleaved message stream and terminal outcome. Only one blocking
// operation may be outstanding per session; a second attempt fails with
// ErrBusy without writing a frame.
func (s *Session) RunCode(ctx context.Context, code string) (*ExecHandle, error) {
	id := s.nextID()
	op, err := s.beginOp(opExec, id)
	if err != nil {
		return nil, err
	}

	s.state.Set(StateExecuting)
	if err := s.submit(ctx, protocol.NewExecFrame(id, code)); err != nil {
		s.abortOp(id)
		return nil, err
	}
	return &ExecHandle{op: op}, nil
}

// Snapshot requests an opaque serialization of the interpreter's namespace.
func (s *Session) Snapshot(ctx context.Context) ([]byte, error) {
	id := s.nextID()
	op, err := s.beginOp(opSnapshot, id)
	if err != nil {
		return nil, err
	}

	s.state.Set(StateSnapshotInFlight)
	if err := s.submit(ctx, protocol.NewSnapshotFrame(id)); err != nil {
		s.abortOp(id)
		return nil, err
	}

	select {
	case <-op.done:
		return op.blob, op.err
	case <-ctx.Done():
		op.markOrphaned()
		return nil, ctx.Err()
	}
}

// Restore loads a snapshot blob into the interpreter's namespace.
func (s *Session) Restore(ctx context.Context, data []byte) error {
	id := s.nextID()
	op, err := s.beginOp(opRestore, id)
	if err != nil {
		return err
	}

	s.state.Set(StateRestoreInFlight)
	if err := s.submit(ctx, protocol.NewRestoreFrame(id, string(data))); err != nil {
		s.abortOp(id)
		return err
	}

	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		op.markOrphaned()
		return ctx.Err()
	}
}

// Shutdown requests a clean interpreter exit, escalating to signal
// termination if it does not exit within the configured grace window.
// Shutdown is idempotent: every call after the first returns the same
// result without re-sending a frame.
func (s *Session) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.state.Set(StateShuttingDown)
		_ = s.submit(context.Background(), protocol.NewShutdownFrame())

		stopErr := s.child.Stop(ctx)
		s.fail(stopErr)
		s.shutdownErr = stopErr
		s.cfg.sink.Event(s.id, slog.LevelInfo, "session shutdown complete")
	})
	return s.shutdownErr
}

// fail transitions the session to Dead exactly once, failing every pending
// operation with SessionDead and stopping the writer/reader actors.
func (s *Session) fail(cause error) {
	if s.state.MarkDead() {
		return
	}

	s.mu.Lock()
	s.deadCause = cause
	pending := make([]*pendingOp, 0, len(s.pending))
	for _, op := range s.pending {
		pending = append(pending, op)
	}
	s.pending = make(map[string]*pendingOp)
	s.busyKind = opNone
	s.busyID = ""
	s.current = nil
	s.mu.Unlock()

	s.closeMu.Do(func() { close(s.closing) })

	for _, op := range pending {
		op.resolve(ExecOutcome{}, nil, &SessionDead{Cause: cause})
	}

	go func() { _ = s.child.Stop(context.Background()) }()
	s.cleanupOnce.Do(func() {
		if s.scriptCleanup != nil {
			_ = s.scriptCleanup()
		}
	})

	s.cfg.sink.Event(s.id, slog.LevelWarn, "session dead", "cause", cause)
}
