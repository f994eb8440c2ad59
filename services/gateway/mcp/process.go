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
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// terminateGrace is how long Terminate waits for a graceful exit before
// escalating to a forced kill. Not caller-visible.
const terminateGrace = 8 * time.Second

// envAllowlist is the set of host environment variables a spawned server may
// inherit. Everything else from the host environment stays out; the caller's
// config.Env overrides are merged on top.
var envAllowlist = []string{
	"PATH",
	"HOME",
	"TMPDIR", "TEMP", "TMP",
	"USERPROFILE", "APPDATA", "LOCALAPPDATA", "SYSTEMROOT", "COMSPEC",
	"LANG", "LC_ALL",
	"NPM_CONFIG_CACHE", "NPM_CONFIG_REGISTRY", "NPM_CONFIG_PREFIX",
	"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY",
	"XDG_CACHE_HOME", "XDG_DATA_HOME",
}

// =============================================================================
// PROCESS
// =============================================================================

// Process is an exclusively owned handle to a spawned MCP server process.
//
// Description:
//
//	Wraps the OS process with a serialized stdin writer, broadcast readers
//	for stdout and stderr, and asynchronous exit observation. A single
//	monitor goroutine is the sole caller of cmd.Wait; everyone else observes
//	exit via Done() or OnExit.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Process struct {
	cmd   *exec.Cmd
	pid   int
	stdin io.WriteCloser

	stdout *stream
	stderr *stream

	writeMu sync.Mutex
	alive   atomic.Bool

	done    chan struct{}
	exitErr error

	exitMu    sync.Mutex
	onExit    []func(error)
	termOnce  sync.Once
	startedAt time.Time
}

// spawnProcess launches the configured program with three piped stdio
// streams.
//
// Description:
//
//	The command and arguments are passed literally to the OS (no shell
//	interpretation). The child environment is the allowlisted subset of the
//	host environment merged with cfg.Env. On Windows, known package-runner
//	aliases are rewritten to their cmd-wrapper invocation instead of relying
//	on shell resolution.
//
// Outputs:
//
//	*Process - The live handle.
//	error - ErrSpawnFailed (wrapped) if the OS refuses to create the
//	        process or assigns it no pid.
func spawnProcess(ctx context.Context, cfg ServerConfig) (*Process, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	command, args := rewriteCommand(cfg.Command, cfg.Args)

	cmd := exec.Command(command, args...)
	cmd.Env = buildEnv(cfg.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	if cmd.Process == nil || cmd.Process.Pid <= 0 {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("%w: no pid assigned", ErrSpawnFailed)
	}

	p := &Process{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		stdin:     stdin,
		stdout:    newStream(stdout),
		stderr:    newStream(stderr),
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	p.alive.Store(true)

	go p.monitor()

	slog.Debug("spawned mcp server process",
		slog.String("command", command),
		slog.Int("pid", p.pid),
	)

	return p, nil
}

// monitor is the sole caller of cmd.Wait. It flips liveness, records the
// exit error, closes the done channel, and notifies exit listeners.
func (p *Process) monitor() {
	err := p.cmd.Wait()
	p.alive.Store(false)
	p.exitErr = err
	close(p.done)

	p.exitMu.Lock()
	listeners := append([]func(error){}, p.onExit...)
	p.exitMu.Unlock()

	for _, fn := range listeners {
		fn(err)
	}
}

// PID returns the OS process id.
func (p *Process) PID() int {
	return p.pid
}

// Alive reports whether the process has not yet been observed to exit.
func (p *Process) Alive() bool {
	return p.alive.Load()
}

// Done returns a channel closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the error recorded by cmd.Wait. Only meaningful after
// Done() is closed.
func (p *Process) ExitErr() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

// OnExit registers a listener invoked once when the process exits. If the
// process has already exited, the listener is invoked immediately.
func (p *Process) OnExit(fn func(error)) {
	p.exitMu.Lock()
	select {
	case <-p.done:
		p.exitMu.Unlock()
		fn(p.exitErr)
		return
	default:
	}
	p.onExit = append(p.onExit, fn)
	p.exitMu.Unlock()
}

// WriteLine writes one newline-terminated line to the process's stdin.
//
// Outputs:
//
//	error - ErrCommunication (wrapped) when the stream is closed or the
//	        write is rejected.
func (p *Process) WriteLine(line []byte) error {
	if !p.Alive() {
		return fmt.Errorf("%w: process %d not running", ErrCommunication, p.pid)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.stdin.Write(line); err != nil {
		return fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	if !strings.HasSuffix(string(line), "\n") {
		if _, err := p.stdin.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("%w: %v", ErrCommunication, err)
		}
	}
	return nil
}

// Terminate stops the process: graceful signal first, forced kill after the
// grace window. Idempotent; a no-op on an already-dead handle. The waiter
// cancels the pending kill if graceful exit is observed first.
func (p *Process) Terminate(ctx context.Context) {
	if !p.Alive() {
		return
	}

	p.termOnce.Do(func() {
		_ = p.stdin.Close()
		if err := p.cmd.Process.Signal(gracefulSignal()); err != nil {
			// Signal delivery failed (already gone on some platforms);
			// fall through to the kill escalation.
			slog.Debug("graceful signal failed", slog.Int("pid", p.pid), slog.Any("error", err))
		}

		go func() {
			timer := time.NewTimer(terminateGrace)
			defer timer.Stop()
			select {
			case <-p.done:
			case <-timer.C:
				_ = p.cmd.Process.Kill()
			case <-ctx.Done():
				_ = p.cmd.Process.Kill()
			}
		}()
	})
}

// =============================================================================
// ENVIRONMENT & COMMAND SANITIZATION
// =============================================================================

// buildEnv assembles the child environment: the host allowlist merged with
// the caller-supplied overrides. Overrides win on key collision.
func buildEnv(overrides map[string]string) []string {
	merged := make(map[string]string, len(envAllowlist)+len(overrides))
	for _, key := range envAllowlist {
		if v, ok := os.LookupEnv(key); ok {
			merged[key] = v
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}

// packageRunnerAliases are commands whose Windows installations are .cmd
// wrappers that exec.Command cannot resolve directly.
var packageRunnerAliases = map[string]bool{
	"npx":  true,
	"npm":  true,
	"yarn": true,
	"pnpm": true,
}

// rewriteCommand maps known package-runner aliases to their platform-specific
// invocation. On Windows "npx ..." becomes "cmd /c npx ...". Elsewhere the
// command passes through untouched.
func rewriteCommand(command string, args []string) (string, []string) {
	if runtime.GOOS != "windows" || !packageRunnerAliases[command] {
		return command, args
	}
	rewritten := append([]string{"/c", command}, args...)
	return "cmd", rewritten
}

// gracefulSignal returns the platform's graceful stop signal.
func gracefulSignal() os.Signal {
	if runtime.GOOS == "windows" {
		// Windows has no SIGTERM; Interrupt is best effort before Kill.
		return os.Interrupt
	}
	return termSignal
}
