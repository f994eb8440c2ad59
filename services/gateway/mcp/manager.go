// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/mcpgate/services/gateway/events"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config holds registry tuning knobs. Zero values fall back to the defaults
// from DefaultConfig.
type Config struct {
	// HandshakeTimeout bounds the initialize handshake. Default: 30s.
	HandshakeTimeout time.Duration

	// SweepInterval is how often the idle sweep runs. Default: 1 minute.
	SweepInterval time.Duration

	// HeartbeatInterval is how often the keep-alive sweep runs.
	// Default: 2 minutes; sensible range is 1-5 minutes.
	HeartbeatInterval time.Duration

	// DefaultTTL applies to ensure calls that supply no TTL.
	// Default: 5 minutes.
	DefaultTTL time.Duration

	// ClientInfo identifies the gateway in initialize requests.
	ClientInfo ClientInfo
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  defaultHandshakeTimeout,
		SweepInterval:     time.Minute,
		HeartbeatInterval: 2 * time.Minute,
		DefaultTTL:        5 * time.Minute,
		ClientInfo:        ClientInfo{Name: "mcpgate", Version: "1.0.0"},
	}
}

// Key builds the composite identity for a managed process.
func Key(clientID, serverName string) string {
	return clientID + ":" + serverName
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager is the authoritative registry of MCP server processes.
//
// Description:
//
//	Owns the composite-key map of live entries, collapses concurrent starts
//	for the same key into one spawn attempt, runs the idle and heartbeat
//	sweeps, and reacts to process exits by evicting the affected entry.
//	Construct explicitly with NewManager and inject into the routing layer;
//	there is no package-level singleton, so tests can run isolated
//	instances side by side.
//
// Thread Safety:
//
//	Safe for concurrent use. The registry map and the in-flight startup
//	group are the only shared mutable state; sweeps act on snapshots.
type Manager struct {
	cfg     Config
	emitter *events.Emitter

	mu      sync.RWMutex
	entries map[string]*Entry

	flight singleflight.Group

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a registry. Call Start to launch the background sweeps
// and Shutdown on exit.
func NewManager(cfg Config, emitter *events.Emitter) *Manager {
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}
	if cfg.ClientInfo.Name == "" {
		cfg.ClientInfo = def.ClientInfo
	}
	if emitter == nil {
		emitter = events.NewEmitter()
	}

	return &Manager{
		cfg:     cfg,
		emitter: emitter,
		entries: make(map[string]*Entry),
		stop:    make(chan struct{}),
	}
}

// Emitter returns the lifecycle event emitter for subscriber wiring.
func (m *Manager) Emitter() *events.Emitter {
	return m.emitter
}

// =============================================================================
// ENSURE
// =============================================================================

// startOutcome carries an in-flight startup result between the performing
// caller and any waiters sharing it.
type startOutcome struct {
	entry   *Entry
	already bool
}

// Ensure returns a live entry for the key, starting a process if needed.
//
// Description:
//
//	Fast path: an alive, initialized entry whose fingerprint equals the
//	request's is reused. Otherwise the startup runs under a per-key
//	in-flight guard: the first caller spawns and handshakes while
//	concurrent callers for the same key await that same operation, so
//	exactly one spawn attempt per key exists at any instant. A fingerprint
//	mismatch supersedes the old process (terminated before the new entry
//	becomes ready). A handshake failure keeps the entry registered but
//	uninitialized; the call still succeeds and the caller observes the
//	state via Entry.Initialized.
//
// Outputs:
//
//	*EnsureResult - The entry plus whether the call reused a running
//	                process or joined an in-flight startup.
//	error - Non-nil only when the spawn itself fails (ErrSpawnFailed).
func (m *Manager) Ensure(ctx context.Context, clientID, serverName string, cfg ServerConfig, ttl time.Duration) (*EnsureResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}

	key := Key(clientID, serverName)
	fp := cfg.Fingerprint()

	ctx, span := startEnsureSpan(ctx, key)
	defer span.End()

	if entry := m.reusable(key, fp); entry != nil {
		entry.Touch()
		return &EnsureResult{Entry: entry, WasAlreadyRunning: true}, nil
	}

	v, err, shared := m.flight.Do(key, func() (interface{}, error) {
		// Re-check: the entry may have become ready while we waited for
		// the flight slot.
		if entry := m.reusable(key, fp); entry != nil {
			return startOutcome{entry: entry, already: true}, nil
		}
		return m.startKey(ctx, key, clientID, serverName, cfg, fp, ttl)
	})
	if err != nil {
		return nil, err
	}

	out := v.(startOutcome)
	out.entry.Touch()
	return &EnsureResult{
		Entry:             out.entry,
		WasAlreadyRunning: out.already || shared,
	}, nil
}

// reusable returns the entry for key when it is alive, initialized, and
// fingerprint-equal; nil otherwise.
func (m *Manager) reusable(key, fingerprint string) *Entry {
	m.mu.RLock()
	entry := m.entries[key]
	m.mu.RUnlock()

	if entry == nil || entry.fingerprint != fingerprint || !entry.Usable() {
		return nil
	}
	return entry
}

// startKey performs the real startup work for one key. Runs under the
// in-flight guard; never concurrently for the same key.
func (m *Manager) startKey(ctx context.Context, key, clientID, serverName string, cfg ServerConfig, fingerprint string, ttl time.Duration) (startOutcome, error) {
	m.mu.Lock()
	existing := m.entries[key]
	m.mu.Unlock()

	if existing != nil {
		switch {
		case !existing.Process.Alive():
			// Died without the exit listener having evicted yet.
			m.remove(key, existing)

		case existing.Killed():
			// An explicit kill is draining. Wait for the exit before
			// spawning a replacement so two processes never coexist for
			// one key.
			m.remove(key, existing)
			awaitExit(ctx, existing.Process)

		case existing.fingerprint != fingerprint:
			// Config drift: supersede. The old process must be fully dead
			// before the new entry can become ready; the wait is bounded
			// by the terminate grace window's forced kill.
			slog.Info("superseding mcp server on config change",
				slog.String("key", key),
				slog.Int("old_pid", existing.Process.PID()),
			)
			m.remove(key, existing)
			existing.Process.Terminate(ctx)
			awaitExit(ctx, existing.Process)
			recordEviction(ctx, "superseded")

		case !existing.Initialized():
			// A previous handshake timed out against a still-running
			// process; retry initialization instead of respawning.
			return m.retryHandshake(ctx, key, existing), nil

		default:
			// Became usable between the fast path and here.
			return startOutcome{entry: existing, already: true}, nil
		}
	}

	p, err := spawnProcess(ctx, cfg)
	if err != nil {
		recordSpawn(ctx, false)
		m.emitter.Emit(events.Event{
			Type:       events.TypeSpawnError,
			Key:        key,
			ClientID:   clientID,
			ServerName: serverName,
			Detail:     err.Error(),
		})
		return startOutcome{}, err
	}
	recordSpawn(ctx, true)

	entry := &Entry{
		Key:            key,
		ClientID:       clientID,
		ServerName:     serverName,
		Process:        p,
		Config:         cfg,
		fingerprint:    fingerprint,
		TTL:            ttl,
		lastAccessedAt: time.Now(),
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()

	// Reactive eviction: any exit, at any point in the lifecycle, removes
	// the entry immediately.
	p.OnExit(func(exitErr error) {
		m.evictOnExit(key, entry, exitErr)
	})

	started := time.Now()
	if err := initializeProcess(ctx, p, m.cfg.ClientInfo, m.cfg.HandshakeTimeout); err != nil {
		recordHandshake(ctx, time.Since(started), false)
		slog.Warn("mcp server handshake failed",
			slog.String("key", key),
			slog.Int("pid", p.PID()),
			slog.Any("error", err),
		)
		m.emitter.Emit(events.Event{
			Type:       events.TypeInitializationFailed,
			Key:        key,
			ClientID:   clientID,
			ServerName: serverName,
			PID:        p.PID(),
			Detail:     err.Error(),
		})
		// Keep the unready entry registered: a later ensure retries the
		// handshake against the still-running process.
		return startOutcome{entry: entry}, nil
	}
	recordHandshake(ctx, time.Since(started), true)

	entry.markInitialized()
	m.emitter.Emit(events.Event{
		Type:       events.TypeInitialized,
		Key:        key,
		ClientID:   clientID,
		ServerName: serverName,
		PID:        p.PID(),
	})

	slog.Info("mcp server ready",
		slog.String("key", key),
		slog.Int("pid", p.PID()),
	)
	return startOutcome{entry: entry}, nil
}

// retryHandshake re-runs initialization against a registered-but-unready
// process.
func (m *Manager) retryHandshake(ctx context.Context, key string, entry *Entry) startOutcome {
	started := time.Now()
	if err := initializeProcess(ctx, entry.Process, m.cfg.ClientInfo, m.cfg.HandshakeTimeout); err != nil {
		recordHandshake(ctx, time.Since(started), false)
		m.emitter.Emit(events.Event{
			Type:       events.TypeInitializationFailed,
			Key:        key,
			ClientID:   entry.ClientID,
			ServerName: entry.ServerName,
			PID:        entry.Process.PID(),
			Detail:     err.Error(),
		})
		return startOutcome{entry: entry, already: true}
	}
	recordHandshake(ctx, time.Since(started), true)

	entry.markInitialized()
	m.emitter.Emit(events.Event{
		Type:       events.TypeInitialized,
		Key:        key,
		ClientID:   entry.ClientID,
		ServerName: entry.ServerName,
		PID:        entry.Process.PID(),
	})
	return startOutcome{entry: entry, already: true}
}

// awaitExit blocks until the process's monitor observes the exit, or the
// caller's context is cancelled.
func awaitExit(ctx context.Context, p *Process) {
	select {
	case <-p.Done():
	case <-ctx.Done():
	}
}

// evictOnExit removes the entry when its process exits, tolerating the entry
// having already been replaced or removed.
func (m *Manager) evictOnExit(key string, entry *Entry, exitErr error) {
	removed := m.remove(key, entry)

	detail := "exit"
	if exitErr != nil {
		detail = exitErr.Error()
	}
	m.emitter.Emit(events.Event{
		Type:       events.TypeExited,
		Key:        key,
		ClientID:   entry.ClientID,
		ServerName: entry.ServerName,
		PID:        entry.Process.PID(),
		Detail:     detail,
	})
	if removed {
		reason := "died"
		if entry.Killed() {
			reason = "killed"
		}
		recordEviction(context.Background(), reason)
	}
}

// remove deletes the entry from the registry only if it is still the one
// registered under key.
func (m *Manager) remove(key string, entry *Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[key] == entry {
		delete(m.entries, key)
		return true
	}
	return false
}

// snapshot copies the current entry list so sweeps never hold the registry
// lock across I/O.
func (m *Manager) snapshot() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// =============================================================================
// LOOKUPS & REPORTING
// =============================================================================

// Get returns the entry for the key and touches its last-accessed timestamp.
func (m *Manager) Get(clientID, serverName string) (*Entry, bool) {
	m.mu.RLock()
	entry := m.entries[Key(clientID, serverName)]
	m.mu.RUnlock()

	if entry == nil {
		return nil, false
	}
	entry.Touch()
	return entry, true
}

// IsInitialized reports whether the key's handshake has completed.
func (m *Manager) IsInitialized(clientID, serverName string) bool {
	m.mu.RLock()
	entry := m.entries[Key(clientID, serverName)]
	m.mu.RUnlock()
	return entry != nil && entry.Initialized()
}

// Health probes the key's state.
//
// Outputs:
//
//	HealthStatus - healthy, or one of not-found / killed / not-initialized
//	               / zombie so the routing layer can respond distinctly.
func (m *Manager) Health(clientID, serverName string) HealthStatus {
	m.mu.RLock()
	entry := m.entries[Key(clientID, serverName)]
	m.mu.RUnlock()

	switch {
	case entry == nil:
		return HealthStatus{Reason: ReasonNotFound}
	case entry.Killed(), !entry.Process.Alive():
		return HealthStatus{Reason: ReasonKilled}
	case !entry.Initialized():
		return HealthStatus{Reason: ReasonNotInitialized}
	case !probePID(entry.Process.PID()):
		return HealthStatus{Reason: ReasonZombie}
	default:
		return HealthStatus{Healthy: true}
	}
}

// ListForClient returns redacted summaries of the client's entries.
func (m *Manager) ListForClient(clientID string) []EntrySummary {
	var out []EntrySummary
	for _, e := range m.snapshot() {
		if e.ClientID == clientID {
			out = append(out, e.Summary())
		}
	}
	return out
}

// ListAll returns redacted summaries of every entry across all clients.
func (m *Manager) ListAll() []EntrySummary {
	entries := m.snapshot()
	out := make([]EntrySummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Summary())
	}
	return out
}

// Kill force-terminates the key's process regardless of idle state.
//
// The entry stays registered, flagged killed, until the exit listener reaps
// the process: health probes for the key answer killed rather than
// not-found for the whole termination window.
//
// Outputs:
//
//	bool - true if an entry existed for the key.
func (m *Manager) Kill(ctx context.Context, clientID, serverName string) bool {
	key := Key(clientID, serverName)

	m.mu.RLock()
	entry := m.entries[key]
	m.mu.RUnlock()

	if entry == nil {
		return false
	}

	entry.markKilled()
	entry.Process.Terminate(ctx)
	slog.Info("killed mcp server",
		slog.String("key", key),
		slog.Int("pid", entry.Process.PID()),
	)
	return true
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start launches the idle and heartbeat sweeps. A second call returns
// ErrAlreadyStarted and leaves the running sweeps untouched.
func (m *Manager) Start() error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	m.wg.Add(2)
	go m.runIdleSweep()
	go m.runHeartbeatSweep()
	return nil
}

// Shutdown stops the sweeps and terminates every managed process.
func (m *Manager) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()

	for _, entry := range m.snapshot() {
		m.remove(entry.Key, entry)
		entry.Process.Terminate(ctx)
	}
}
