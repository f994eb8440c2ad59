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
	"os"
	"strings"
	"testing"
	"time"
)

func TestBuildEnvAllowlistAndOverrides(t *testing.T) {
	t.Setenv("PATH", "/usr/bin")
	t.Setenv("SOME_HOST_SECRET", "leaky")

	env := buildEnv(map[string]string{
		"WORKDIR": "/srv/data",
		"PATH":    "/custom/bin",
	})

	got := map[string]string{}
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		got[k] = v
	}

	if got["PATH"] != "/custom/bin" {
		t.Errorf("PATH = %q, want the override to win over the host value", got["PATH"])
	}
	if got["WORKDIR"] != "/srv/data" {
		t.Errorf("WORKDIR = %q, want the override passed through", got["WORKDIR"])
	}
	if _, leaked := got["SOME_HOST_SECRET"]; leaked {
		t.Error("non-allowlisted host variable leaked into the child environment")
	}
}

func TestRewriteCommandPassthrough(t *testing.T) {
	// Package-runner rewriting only applies on Windows.
	command, args := rewriteCommand("npx", []string{"-y", "server"})
	if command != "npx" || len(args) != 2 {
		t.Errorf("rewriteCommand() = %q %v, want untouched on this platform", command, args)
	}

	command, args = rewriteCommand("python3", []string{"server.py"})
	if command != "python3" || len(args) != 1 {
		t.Errorf("rewriteCommand() = %q %v, want untouched", command, args)
	}
}

func TestSpawnFailsForMissingBinary(t *testing.T) {
	_, err := spawnProcess(context.Background(), ServerConfig{Command: "definitely-not-a-real-binary-xyz"})
	if !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("spawnProcess() error = %v, want ErrSpawnFailed", err)
	}
}

func TestWriteLineAppendsNewline(t *testing.T) {
	p, err := spawnProcess(context.Background(), ServerConfig{Command: "cat"})
	if err != nil {
		t.Fatalf("spawnProcess() error = %v", err)
	}
	defer p.Terminate(context.Background())

	ch, cancel := p.stdout.subscribe()
	defer cancel()

	if err := p.WriteLine([]byte("hello")); err != nil {
		t.Fatalf("WriteLine() error = %v", err)
	}

	var got strings.Builder
	deadline := time.After(5 * time.Second)
	for !strings.Contains(got.String(), "\n") {
		select {
		case chunk, ok := <-ch:
			if !ok {
				t.Fatalf("stream closed; got %q", got.String())
			}
			got.Write(chunk)
		case <-deadline:
			t.Fatalf("no echoed line within 5s; got %q", got.String())
		}
	}
	if got.String() != "hello\n" {
		t.Errorf("echoed = %q, want %q", got.String(), "hello\n")
	}
}

func TestWriteLineRejectedAfterExit(t *testing.T) {
	p, err := spawnProcess(context.Background(), ServerConfig{Command: "sh", Args: []string{"-c", "exit 0"}})
	if err != nil {
		t.Fatalf("spawnProcess() error = %v", err)
	}
	<-p.Done()

	if err := p.WriteLine([]byte("anything")); !errors.Is(err, ErrCommunication) {
		t.Errorf("WriteLine() error = %v, want ErrCommunication", err)
	}
}

func TestTerminateStopsProcess(t *testing.T) {
	p, err := spawnProcess(context.Background(), silentConfig())
	if err != nil {
		t.Fatalf("spawnProcess() error = %v", err)
	}

	p.Terminate(context.Background())
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process still running 10s after Terminate")
	}
	if p.Alive() {
		t.Error("Alive() = true after observed exit")
	}

	// Idempotent on a dead handle.
	p.Terminate(context.Background())
}

func TestOnExitInvokedImmediatelyWhenDead(t *testing.T) {
	p, err := spawnProcess(context.Background(), ServerConfig{Command: "sh", Args: []string{"-c", "exit 0"}})
	if err != nil {
		t.Fatalf("spawnProcess() error = %v", err)
	}
	<-p.Done()

	called := make(chan error, 1)
	p.OnExit(func(exitErr error) { called <- exitErr })

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("OnExit listener not invoked for an already-dead process")
	}
}

func TestOnExitNotifiesAllListeners(t *testing.T) {
	p, err := spawnProcess(context.Background(), ServerConfig{Command: "sh", Args: []string{"-c", "read line"}})
	if err != nil {
		t.Fatalf("spawnProcess() error = %v", err)
	}

	const listeners = 3
	called := make(chan struct{}, listeners)
	for i := 0; i < listeners; i++ {
		p.OnExit(func(error) { called <- struct{}{} })
	}

	p.Terminate(context.Background())

	for i := 0; i < listeners; i++ {
		select {
		case <-called:
		case <-time.After(10 * time.Second):
			t.Fatalf("only %d of %d exit listeners invoked", i, listeners)
		}
	}
}

func TestExitErrRecordsNonZeroExit(t *testing.T) {
	p, err := spawnProcess(context.Background(), ServerConfig{Command: "sh", Args: []string{"-c", "exit 3"}})
	if err != nil {
		t.Fatalf("spawnProcess() error = %v", err)
	}

	if got := p.ExitErr(); got != nil {
		// Only meaningful after exit; before that it must be nil.
		t.Logf("ExitErr() before exit = %v", got)
	}
	<-p.Done()
	if p.ExitErr() == nil {
		t.Error("ExitErr() = nil after exit code 3, want non-nil")
	}
}

func TestProbePID(t *testing.T) {
	if !probePID(os.Getpid()) {
		t.Error("probePID(self) = false, want true")
	}

	p, err := spawnProcess(context.Background(), ServerConfig{Command: "sh", Args: []string{"-c", "exit 0"}})
	if err != nil {
		t.Fatalf("spawnProcess() error = %v", err)
	}
	<-p.Done()
	// The child has been reaped by the monitor's Wait, so the pid no longer
	// answers a signal-0 probe.
	if probePID(p.PID()) {
		t.Errorf("probePID(%d) = true for a reaped child, want false", p.PID())
	}
}
