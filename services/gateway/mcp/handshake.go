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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// defaultHandshakeTimeout bounds how long initialize waits for a matching
// response before reporting failure. The process is not killed on timeout.
const defaultHandshakeTimeout = 30 * time.Second

// handshakeBufferCap bounds the stdout bytes buffered while scanning for the
// initialize response. Oldest data is evicted beyond the cap.
const handshakeBufferCap = 50 * 1024

// benignStderrMarkers identify connector log lines that servers commonly
// write to stderr on startup. These are informational, not failures.
var benignStderrMarkers = []string{
	"running on stdio",
	"server running",
	"server started",
	"starting",
	"listening",
	"connected",
	"initialized",
}

// =============================================================================
// LINE BUFFER
// =============================================================================

// lineBuffer accumulates raw stream bytes and yields completed lines. The
// buffer is capped; oldest bytes are evicted beyond the cap to bound memory
// against servers that flood stdout before responding.
type lineBuffer struct {
	buf []byte
	cap int
}

func newLineBuffer(capBytes int) *lineBuffer {
	return &lineBuffer{cap: capBytes}
}

// add appends a chunk, evicting oldest bytes beyond the cap.
func (b *lineBuffer) add(chunk []byte) {
	b.buf = append(b.buf, chunk...)
	if len(b.buf) > b.cap {
		b.buf = b.buf[len(b.buf)-b.cap:]
	}
}

// popLines removes and returns all completed lines, leaving any trailing
// partial line in the buffer.
func (b *lineBuffer) popLines() []string {
	idx := bytes.LastIndexByte(b.buf, '\n')
	if idx < 0 {
		return nil
	}
	complete := string(b.buf[:idx])
	b.buf = b.buf[idx+1:]

	var lines []string
	for _, line := range strings.Split(complete, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// =============================================================================
// HANDSHAKE
// =============================================================================

// initializeProcess drives the initialize → initialized handshake against a
// spawned process's stdio.
//
// Description:
//
//	Writes one newline-terminated initialize request with a fresh id, then
//	scans buffered stdout lines for a JSON object whose id matches and which
//	carries a result member. On match, writes the notifications/initialized
//	notification and returns nil. Stderr output during the phase is
//	classified: known connector-log chatter logs at debug, anything else at
//	error; neither fails the handshake. Only the timeout (or process exit)
//	fails it, and the process is left running for the caller to keep.
//
// Outputs:
//
//	error - nil on success; ErrHandshakeTimeout (wrapped) on timeout or
//	        process exit; ErrCommunication (wrapped) if the request write
//	        is rejected.
func initializeProcess(ctx context.Context, p *Process, info ClientInfo, timeout time.Duration) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}

	id := nextRequestID()
	reqLine, err := encodeInitialize(id, info)
	if err != nil {
		return fmt.Errorf("encode initialize: %w", err)
	}

	// Attach listeners before writing so the response cannot slip past.
	outCh, cancelOut := p.stdout.subscribe()
	defer cancelOut()
	errCh, cancelErr := p.stderr.subscribe()
	defer cancelErr()

	if err := p.WriteLine(reqLine); err != nil {
		return err
	}

	outBuf := newLineBuffer(handshakeBufferCap)
	errBuf := newLineBuffer(handshakeBufferCap)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case chunk, ok := <-outCh:
			if !ok {
				outCh = nil
				continue
			}
			outBuf.add(chunk)
			for _, line := range outBuf.popLines() {
				if !matchesResult(line, id) {
					continue
				}
				notif, err := encodeInitialized()
				if err != nil {
					return fmt.Errorf("encode initialized: %w", err)
				}
				if err := p.WriteLine(notif); err != nil {
					return err
				}
				return nil
			}

		case chunk, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			errBuf.add(chunk)
			for _, line := range errBuf.popLines() {
				logStderrLine(p.PID(), line)
			}

		case <-p.Done():
			return fmt.Errorf("%w: process %d exited before responding", ErrProcessExited, p.PID())

		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrHandshakeTimeout, ctx.Err())

		case <-timer.C:
			return fmt.Errorf("%w: no response to id %d within %s", ErrHandshakeTimeout, id, timeout)
		}
	}
}

// matchesResult reports whether the line is a JSON-RPC response carrying a
// result member for the given id.
func matchesResult(line string, id int64) bool {
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return false
	}
	return resp.ID == id && resp.Result != nil
}

// logStderrLine classifies one stderr line emitted during the handshake.
func logStderrLine(pid int, line string) {
	lower := strings.ToLower(line)
	for _, marker := range benignStderrMarkers {
		if strings.Contains(lower, marker) {
			slog.Debug("mcp server startup log",
				slog.Int("pid", pid),
				slog.String("line", line),
			)
			return
		}
	}
	slog.Error("mcp server stderr during handshake",
		slog.Int("pid", pid),
		slog.String("line", line),
	)
}

// pingProcess sends a best-effort keep-alive ping.
//
// Description:
//
//	Writes a one-line ping request with a fresh id. Success means the stdin
//	write was accepted; no response correlation is performed.
func pingProcess(p *Process) bool {
	line, err := encodePing(nextRequestID())
	if err != nil {
		return false
	}
	return p.WriteLine(line) == nil
}
