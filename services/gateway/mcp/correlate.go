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
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// defaultCallTimeout applies when a correlated call supplies no window.
const defaultCallTimeout = 10 * time.Second

// CallOptions tunes one correlated round trip.
type CallOptions struct {
	// Timeout is the listening window. Default: 10s.
	Timeout time.Duration

	// MatchID, when non-zero, requires the parsed response to carry this
	// id. Zero accepts the first syntactically valid JSON object line.
	MatchID int64
}

// Call performs one ad hoc JSON-RPC round trip against a live process.
//
// Description:
//
//	Writes the caller-supplied line to stdin, accumulates everything the
//	process writes to stdout and stderr during the window, then scans the
//	accumulated stdout line by line for the first valid JSON object (or the
//	object matching opts.MatchID). Running out the window with no parsed
//	response is a degrade-gracefully outcome, not an error: the partial
//	output is the best available answer. This is line sniffing — without an
//	id to match there is no guarantee the first JSON-shaped line is the
//	intended response.
//
// Outputs:
//
//	*CallResult - Raw stdout, raw stderr, and the best-effort parsed
//	              response (nil when nothing matched). Present on process
//	              death too, carrying the partial output.
//	error - ErrCommunication if the stdin write is rejected;
//	        ErrProcessExited (with the exit description) if the process
//	        dies mid-call. Both resolve immediately, never timeout-delayed.
func (m *Manager) Call(ctx context.Context, p *Process, line []byte, opts CallOptions) (*CallResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultCallTimeout
	}

	started := time.Now()

	// Attach listeners before writing so no output is missed; detached on
	// every exit path so repeated calls against a long-lived process never
	// accumulate listeners.
	outCh, cancelOut := p.stdout.subscribe()
	defer cancelOut()
	errCh, cancelErr := p.stderr.subscribe()
	defer cancelErr()

	if err := p.WriteLine(line); err != nil {
		recordCall(ctx, "call", time.Since(started), false)
		return nil, err
	}

	var rawOut, rawErr strings.Builder
	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

collect:
	for {
		select {
		case chunk, ok := <-outCh:
			if ok {
				rawOut.Write(chunk)
			} else {
				outCh = nil
			}

		case chunk, ok := <-errCh:
			if ok {
				rawErr.Write(chunk)
			} else {
				errCh = nil
			}

		case <-p.Done():
			// Drain anything already queued before reporting the death.
			drainInto(&rawOut, outCh)
			drainInto(&rawErr, errCh)
			result := &CallResult{
				RawOutput:   rawOut.String(),
				ErrorOutput: rawErr.String(),
				Response:    scanForResponse(rawOut.String(), opts.MatchID),
			}
			recordCall(ctx, "call", time.Since(started), false)
			return result, fmt.Errorf("%w: %s", ErrProcessExited, exitDescription(p))

		case <-ctx.Done():
			break collect

		case <-timer.C:
			break collect
		}
	}

	result := &CallResult{
		RawOutput:   rawOut.String(),
		ErrorOutput: rawErr.String(),
		Response:    scanForResponse(rawOut.String(), opts.MatchID),
	}
	recordCall(ctx, "call", time.Since(started), result.Response != nil)
	return result, nil
}

// CallTool invokes a tool on a live process.
//
// Description:
//
//	When nameOrRaw parses as a JSON object it is sent verbatim as a
//	pre-built request line and the first well-formed JSON response line is
//	accepted. Otherwise a tools/call request is assembled from the tool
//	name and arguments with a fresh id, also accepting the first JSON line.
func (m *Manager) CallTool(ctx context.Context, p *Process, nameOrRaw string, arguments map[string]interface{}, timeout time.Duration) (*CallResult, error) {
	trimmed := strings.TrimSpace(nameOrRaw)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return m.Call(ctx, p, []byte(trimmed), CallOptions{Timeout: timeout})
	}

	line, err := encodeToolsCall(nextRequestID(), trimmed, arguments)
	if err != nil {
		return nil, fmt.Errorf("encode tools/call: %w", err)
	}
	return m.Call(ctx, p, line, CallOptions{Timeout: timeout})
}

// ListTools issues the fixed tools/list request, requiring the response id
// to match so server log chatter cannot masquerade as the listing.
func (m *Manager) ListTools(ctx context.Context, p *Process, timeout time.Duration) (*CallResult, error) {
	id := nextRequestID()
	line, err := encodeToolsList(id)
	if err != nil {
		return nil, fmt.Errorf("encode tools/list: %w", err)
	}
	return m.Call(ctx, p, line, CallOptions{Timeout: timeout, MatchID: id})
}

// scanForResponse scans accumulated stdout for the first matching response.
// With matchID zero, the first syntactically valid JSON object wins;
// otherwise only a response carrying that id does. Unmatched buffer content
// is discarded.
func scanForResponse(raw string, matchID int64) *Response {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}

		var resp Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			continue
		}
		if matchID != 0 && resp.ID != matchID {
			continue
		}
		return &resp
	}
	return nil
}

// drainInto appends any already-buffered chunks without blocking.
func drainInto(b *strings.Builder, ch <-chan []byte) {
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return
			}
			b.Write(chunk)
		default:
			return
		}
	}
}

// exitDescription renders the process's exit state for failure results.
func exitDescription(p *Process) string {
	if err := p.ExitErr(); err != nil {
		return fmt.Sprintf("process %d exited: %v", p.PID(), err)
	}
	return fmt.Sprintf("process %d exited with code 0", p.PID())
}
