// Package pool implements the Session Manager: a keyed pool of kernel
// sessions with checkout, return, forced destruction, a soft capacity
// limit, and idle eviction.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sessionkernel/kernel/kernel"
)

// PoolExhausted is returned by Take when the soft cap is reached and no
// entry is returned before the configured deadline.
type PoolExhausted struct{}

func (e *PoolExhausted) Error() string { return "session pool: exhausted, no free entry before deadline" }

// SpawnFunc constructs a fresh, Ready session. It is supplied by the caller
// so the pool stays agnostic to launcher/tool-provider wiring.
type SpawnFunc func(ctx context.Context) (*kernel.Session, error)

// Config configures a Manager.
type Config struct {
	// MaxSessions soft-caps the total number of sessions (claimed + free)
	// the pool will hold at once. Zero means unbounded.
	MaxSessions int

	// IdleTTL is how long a free entry may sit unclaimed before the reaper
	// destroys it. Defaults to 15 minutes.
	IdleTTL time.Duration

	// ReapInterval is how often the idle reaper scans entries. Defaults to
	// 60 seconds.
	ReapInterval time.Duration

	// TakeDeadline bounds how long Take waits for capacity to free up once
	// the soft cap is reached. Zero means wait only as long as the
	// caller's context allows.
	TakeDeadline time.Duration

	Spawn SpawnFunc
}

func (c *Config) setDefaults() {
	if c.IdleTTL <= 0 {
		c.IdleTTL = 15 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 60 * time.Second
	}
}

type entry struct {
	session      *kernel.Session
	claimed      bool
	lastReleased time.Time
	spawnedAt    time.Time
}

// Manager is a keyed pool of kernel sessions.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry

	spawnLocksMu sync.Mutex
	spawnLocks   map[string]*sync.Mutex

	capacity chan struct{} // nil means unbounded

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// NewManager builds a Manager and starts its idle-reaper background task.
func NewManager(cfg Config) *Manager {
	cfg.setDefaults()

	m := &Manager{
		cfg:        cfg,
		entries:    make(map[string]*entry),
		spawnLocks: make(map[string]*sync.Mutex),
		reaperStop: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}

	if cfg.MaxSessions > 0 {
		m.capacity = make(chan struct{}, cfg.MaxSessions)
		for i := 0; i < cfg.MaxSessions; i++ {
			m.capacity <- struct{}{}
		}
	}

	go m.reapLoop()
	return m
}

func (m *Manager) lockSpawn(key string) func() {
	m.spawnLocksMu.Lock()
	lk, ok := m.spawnLocks[key]
	if !ok {
		lk = &sync.Mutex{}
		m.spawnLocks[key] = lk
	}
	m.spawnLocksMu.Unlock()

	lk.Lock()
	return lk.Unlock
}

func (m *Manager) acquireSlot(ctx context.Context) error {
	if m.capacity == nil {
		return nil
	}

	var deadlineCh <-chan time.Time
	if m.cfg.TakeDeadline > 0 {
		timer := time.NewTimer(m.cfg.TakeDeadline)
		defer timer.Stop()
		deadlineCh = timer.C
	}

	select {
	case <-m.capacity:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-deadlineCh:
		return &PoolExhausted{}
	}
}

func (m *Manager) releaseSlot() {
	if m.capacity == nil {
		return
	}
	select {
	case m.capacity <- struct{}{}:
	default:
	}
}

// Take returns a Ready session for id. If id names an existing free entry,
// that entry is claimed and returned; otherwise a new session is spawned and
// stored under id, or under a fresh id when id is empty. Concurrent Take
// calls for the same id are serialized, so they never spawn at the same time.
func (m *Manager) Take(ctx context.Context, id string) (string, *kernel.Session, error) {
	if id != "" {
		if sess, ok := m.claim(id); ok {
			return id, sess, nil
		}
	}

	key := id
	if key == "" {
		key = uuid.NewString()
	}

	unlock := m.lockSpawn(key)
	defer unlock()

	if sess, ok := m.claim(key); ok {
		return key, sess, nil
	}

	if err := m.acquireSlot(ctx); err != nil {
		return "", nil, err
	}

	sess, err := m.cfg.Spawn(ctx)
	if err != nil {
		m.releaseSlot()
		return "", nil, err
	}

	m.mu.Lock()
	m.entries[key] = &entry{session: sess, claimed: true, spawnedAt: time.Now()}
	m.mu.Unlock()

	return key, sess, nil
}

func (m *Manager) claim(id string) (*kernel.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.claimed {
		return nil, false
	}
	e.claimed = true
	return e.session, true
}

// Put returns a session to free state after verifying it is still Ready.
// Dead or mid-operation sessions are destroyed instead. Putting an id with
// no entry (e.g. because it was already destroyed) is a no-op.
func (m *Manager) Put(id string, session *kernel.Session) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if session.State() != kernel.StateReady {
		return m.Destroy(context.Background(), id)
	}

	m.mu.Lock()
	e.claimed = false
	e.lastReleased = time.Now()
	m.mu.Unlock()
	return nil
}

// Destroy removes id's entry and shuts down its session. Missing ids are
// tolerated.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	err := e.session.Shutdown(ctx)
	m.releaseSlot()
	return err
}

func (m *Manager) reapLoop() {
	defer close(m.reaperDone)
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reapOnce()
		case <-m.reaperStop:
			return
		}
	}
}

func (m *Manager) reapOnce() {
	now := time.Now()
	var stale []string

	m.mu.Lock()
	for id, e := range m.entries {
		if !e.claimed && !e.lastReleased.IsZero() && now.Sub(e.lastReleased) > m.cfg.IdleTTL {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		_ = m.Destroy(context.Background(), id)
	}
}

// Close stops the idle reaper and destroys every remaining session in
// parallel.
func (m *Manager) Close(ctx context.Context) error {
	close(m.reaperStop)
	<-m.reaperDone

	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = m.Destroy(ctx, id)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("pool close: %w", err)
		}
	}
	return nil
}

// Len reports the current number of entries (claimed and free).
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
