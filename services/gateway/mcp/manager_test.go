// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/mcpgate/services/gateway/events"
)

// responderScript emulates an MCP server over stdio: every request carrying
// an id gets a result response echoing that id. Notifications are ignored.
// The loop ends when stdin closes, so the process exits on Terminate.
const responderScript = `while read line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9][0-9]*\).*/\1/p')
  if [ -n "$id" ]; then
    printf '{"jsonrpc":"2.0","id":%s,"result":{"protocolVersion":"2024-11-05","tools":[]}}\n' "$id"
  fi
done`

// skipFirstScript ignores the first request, then behaves like
// responderScript. Used to force a handshake timeout followed by a
// successful retry against the same process.
const skipFirstScript = `read skipped
while read line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9][0-9]*\).*/\1/p')
  if [ -n "$id" ]; then
    printf '{"jsonrpc":"2.0","id":%s,"result":{"protocolVersion":"2024-11-05"}}\n' "$id"
  fi
done`

// lingerOnTermScript ignores stdin and exits half a second after the first
// TERM, holding the killed-but-still-registered window open for assertions.
const lingerOnTermScript = `trap 'sleep 0.5; exit 0' TERM
while :; do sleep 0.1; done`

func responderConfig(extraArg string) ServerConfig {
	args := []string{"-c", responderScript}
	if extraArg != "" {
		args = append(args, "sh", extraArg)
	}
	return ServerConfig{Command: "sh", Args: args}
}

func silentConfig() ServerConfig {
	return ServerConfig{Command: "sleep", Args: []string{"30"}}
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	m := NewManager(cfg, events.NewEmitter())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEnsureSpawnsAndHandshakes(t *testing.T) {
	m := newTestManager(t, Config{})

	result, err := m.Ensure(context.Background(), "client-a", "files", responderConfig(""), 0)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if result.WasAlreadyRunning {
		t.Error("first Ensure reported WasAlreadyRunning = true")
	}
	if !result.Entry.Initialized() {
		t.Error("entry not initialized after successful handshake")
	}
	if result.Entry.Process.PID() <= 0 {
		t.Errorf("pid = %d, want > 0", result.Entry.Process.PID())
	}
	if result.Entry.Key != "client-a:files" {
		t.Errorf("key = %q, want client-a:files", result.Entry.Key)
	}
}

func TestEnsureReusesMatchingFingerprint(t *testing.T) {
	m := newTestManager(t, Config{})

	first, err := m.Ensure(context.Background(), "client-a", "files", responderConfig(""), 0)
	if err != nil {
		t.Fatalf("first Ensure() error = %v", err)
	}
	second, err := m.Ensure(context.Background(), "client-a", "files", responderConfig(""), 0)
	if err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}

	if !second.WasAlreadyRunning {
		t.Error("second Ensure reported WasAlreadyRunning = false")
	}
	if first.Entry.Process.PID() != second.Entry.Process.PID() {
		t.Errorf("pids differ: %d vs %d, want reuse",
			first.Entry.Process.PID(), second.Entry.Process.PID())
	}
}

func TestConcurrentEnsureSpawnsOnce(t *testing.T) {
	m := newTestManager(t, Config{})

	const callers = 8
	results := make([]*EnsureResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Ensure(context.Background(), "client-a", "files", responderConfig(""), 0)
		}(i)
	}
	wg.Wait()

	pids := map[int]bool{}
	performers := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Ensure[%d] error = %v", i, errs[i])
		}
		pids[results[i].Entry.Process.PID()] = true
		if !results[i].WasAlreadyRunning {
			performers++
		}
	}

	if len(pids) != 1 {
		t.Errorf("got %d distinct pids, want 1 (single spawn)", len(pids))
	}
	// With concurrent joiners even the spawning caller observes a shared
	// flight, so zero performers is legitimate; two is not.
	if performers > 1 {
		t.Errorf("got %d callers with WasAlreadyRunning=false, want at most 1", performers)
	}
}

func TestEnsureSupersedesOnConfigChange(t *testing.T) {
	m := newTestManager(t, Config{})

	first, err := m.Ensure(context.Background(), "client-a", "files", responderConfig(""), 0)
	if err != nil {
		t.Fatalf("first Ensure() error = %v", err)
	}
	oldPID := first.Entry.Process.PID()
	oldProcess := first.Entry.Process

	second, err := m.Ensure(context.Background(), "client-a", "files", responderConfig("v2"), 0)
	if err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}

	if second.WasAlreadyRunning {
		t.Error("superseding Ensure reported WasAlreadyRunning = true")
	}
	if second.Entry.Process.PID() == oldPID {
		t.Error("config change did not replace the process")
	}
	if !second.Entry.Initialized() {
		t.Error("replacement entry not initialized")
	}

	// Kill-before-ready: the old process must already be dead by the time
	// the superseding Ensure returns.
	select {
	case <-oldProcess.Done():
	default:
		t.Error("old process still running when the replacement became ready")
	}
	// And the new entry must survive the old process's exit listener firing.
	if _, found := m.Get("client-a", "files"); !found {
		t.Error("replacement entry was evicted by the old process's exit")
	}
}

func TestHandshakeTimeoutKeepsProcessAndRetries(t *testing.T) {
	m := newTestManager(t, Config{HandshakeTimeout: 300 * time.Millisecond})

	cfg := ServerConfig{Command: "sh", Args: []string{"-c", skipFirstScript}}

	first, err := m.Ensure(context.Background(), "client-a", "slow", cfg, 0)
	if err != nil {
		t.Fatalf("Ensure() error = %v, want nil on handshake timeout", err)
	}
	if first.Entry.Initialized() {
		t.Fatal("entry initialized despite the server swallowing the request")
	}
	if !first.Entry.Process.Alive() {
		t.Fatal("process killed on handshake timeout, want kept")
	}
	pid := first.Entry.Process.PID()

	// Second ensure retries the handshake against the same process.
	second, err := m.Ensure(context.Background(), "client-a", "slow", cfg, 0)
	if err != nil {
		t.Fatalf("retry Ensure() error = %v", err)
	}
	if !second.Entry.Initialized() {
		t.Error("retry did not initialize the entry")
	}
	if second.Entry.Process.PID() != pid {
		t.Errorf("retry respawned: pid %d -> %d", pid, second.Entry.Process.PID())
	}
	if !second.WasAlreadyRunning {
		t.Error("retry reported WasAlreadyRunning = false")
	}
}

func TestHandshakeTimeoutIsBounded(t *testing.T) {
	m := newTestManager(t, Config{HandshakeTimeout: 200 * time.Millisecond})

	started := time.Now()
	result, err := m.Ensure(context.Background(), "client-a", "mute", silentConfig(), 0)
	elapsed := time.Since(started)

	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if result.Entry.Initialized() {
		t.Error("silent server reported initialized")
	}
	if elapsed > 3*time.Second {
		t.Errorf("handshake took %s, want bounded near the 200ms timeout", elapsed)
	}
}

func TestIdleEviction(t *testing.T) {
	m := newTestManager(t, Config{SweepInterval: 25 * time.Millisecond})

	expired := make(chan events.Event, 1)
	m.Emitter().Subscribe(func(ev events.Event) {
		select {
		case expired <- ev:
		default:
		}
	}, events.TypeIdleExpired)

	_, err := m.Ensure(context.Background(), "client-a", "files", responderConfig(""), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	m.Start()

	waitFor(t, 5*time.Second, func() bool {
		// Poll through Health: Get touches lastAccessedAt, which would
		// keep resetting the idle clock and defeat the eviction under test.
		return m.Health("client-a", "files").Reason == ReasonNotFound
	}, "idle entry never evicted")

	select {
	case ev := <-expired:
		if ev.Key != "client-a:files" {
			t.Errorf("event key = %q, want client-a:files", ev.Key)
		}
	case <-time.After(2 * time.Second):
		t.Error("no idle-expiry event emitted")
	}
}

func TestExitEviction(t *testing.T) {
	m := newTestManager(t, Config{HandshakeTimeout: 200 * time.Millisecond})

	exited := make(chan events.Event, 1)
	m.Emitter().Subscribe(func(ev events.Event) {
		select {
		case exited <- ev:
		default:
		}
	}, events.TypeExited)

	// Reads the initialize request and dies.
	cfg := ServerConfig{Command: "sh", Args: []string{"-c", "read line; exit 3"}}
	if _, err := m.Ensure(context.Background(), "client-a", "crashy", cfg, 0); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		_, found := m.Get("client-a", "crashy")
		return !found
	}, "dead entry never evicted")

	select {
	case ev := <-exited:
		if ev.Key != "client-a:crashy" {
			t.Errorf("event key = %q, want client-a:crashy", ev.Key)
		}
	case <-time.After(2 * time.Second):
		t.Error("no exit event emitted")
	}
}

func TestKill(t *testing.T) {
	m := newTestManager(t, Config{HandshakeTimeout: 200 * time.Millisecond})

	cfg := ServerConfig{Command: "sh", Args: []string{"-c", lingerOnTermScript}}
	result, err := m.Ensure(context.Background(), "client-a", "files", cfg, 0)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	p := result.Entry.Process

	if !m.Kill(context.Background(), "client-a", "files") {
		t.Fatal("Kill() = false for a live entry")
	}

	// Until the exit is reaped the key stays registered and reports killed,
	// distinguishable from not-found.
	if status := m.Health("client-a", "files"); status.Healthy || status.Reason != ReasonKilled {
		t.Errorf("Health after Kill = %+v, want reason killed", status)
	}

	waitFor(t, 10*time.Second, func() bool { return !p.Alive() },
		"killed process never exited")
	waitFor(t, 5*time.Second, func() bool {
		_, found := m.Get("client-a", "files")
		return !found
	}, "killed entry never evicted after exit")

	if status := m.Health("client-a", "files"); status.Reason != ReasonNotFound {
		t.Errorf("Health after eviction = %+v, want reason not-found", status)
	}
	if m.Kill(context.Background(), "client-a", "files") {
		t.Error("Kill() = true for a missing entry")
	}
}

func TestStartSecondCallRejected(t *testing.T) {
	m := newTestManager(t, Config{})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestHealthLadder(t *testing.T) {
	m := newTestManager(t, Config{HandshakeTimeout: 200 * time.Millisecond})

	if status := m.Health("client-a", "nope"); status.Healthy || status.Reason != ReasonNotFound {
		t.Errorf("missing entry: %+v, want reason not-found", status)
	}

	if _, err := m.Ensure(context.Background(), "client-a", "files", responderConfig(""), 0); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if status := m.Health("client-a", "files"); !status.Healthy {
		t.Errorf("live entry: %+v, want healthy", status)
	}

	if _, err := m.Ensure(context.Background(), "client-a", "mute", silentConfig(), 0); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if status := m.Health("client-a", "mute"); status.Healthy || status.Reason != ReasonNotInitialized {
		t.Errorf("unready entry: %+v, want reason not-initialized", status)
	}

	// A dead process still registered reports killed. Inject directly so the
	// exit listener cannot race the assertion.
	p, err := spawnProcess(context.Background(), ServerConfig{Command: "sh", Args: []string{"-c", "exit 0"}})
	if err != nil {
		t.Fatalf("spawnProcess() error = %v", err)
	}
	<-p.Done()
	dead := &Entry{Key: Key("client-a", "dead"), ClientID: "client-a", ServerName: "dead", Process: p}
	m.mu.Lock()
	m.entries[dead.Key] = dead
	m.mu.Unlock()

	if status := m.Health("client-a", "dead"); status.Healthy || status.Reason != ReasonKilled {
		t.Errorf("dead entry: %+v, want reason killed", status)
	}
}

func TestListForClientIsolatesAndRedacts(t *testing.T) {
	m := newTestManager(t, Config{})

	cfg := responderConfig("")
	cfg.Env = map[string]string{"GITHUB_TOKEN": "ghp_secret", "WORKDIR": "/tmp"}

	if _, err := m.Ensure(context.Background(), "client-a", "files", cfg, 0); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if _, err := m.Ensure(context.Background(), "client-b", "files", responderConfig(""), 0); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	own := m.ListForClient("client-a")
	if len(own) != 1 {
		t.Fatalf("ListForClient(client-a) returned %d entries, want 1", len(own))
	}
	if got := own[0].Config.Env["GITHUB_TOKEN"]; got != RedactionMarker {
		t.Errorf("GITHUB_TOKEN in summary = %q, want %q", got, RedactionMarker)
	}
	if got := own[0].Config.Env["WORKDIR"]; got != "/tmp" {
		t.Errorf("WORKDIR in summary = %q, want passthrough", got)
	}

	if all := m.ListAll(); len(all) != 2 {
		t.Errorf("ListAll() returned %d entries, want 2", len(all))
	}
}

func TestShutdownTerminatesEverything(t *testing.T) {
	m := NewManager(Config{}, events.NewEmitter())
	m.Start()

	result, err := m.Ensure(context.Background(), "client-a", "files", responderConfig(""), 0)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	p := result.Entry.Process

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.Shutdown(ctx)

	if got := m.ListAll(); len(got) != 0 {
		t.Errorf("ListAll() after Shutdown returned %d entries, want 0", len(got))
	}
	waitFor(t, 10*time.Second, func() bool { return !p.Alive() },
		"process survived Shutdown")
}
