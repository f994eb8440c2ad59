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
	"io"
	"sync"
)

// streamChunkBuffer is the per-subscriber channel capacity. A slow subscriber
// beyond this depth loses chunks rather than blocking the pump.
const streamChunkBuffer = 256

// stream fans out one pipe's bytes to any number of transient subscribers.
//
// Description:
//
//	A pipe can only be read once, but the handshake, heartbeat, and ad hoc
//	correlation flows each need to observe output for the duration of one
//	operation. A single pump goroutine reads the pipe and copies each chunk
//	to the subscribers attached at that moment. Subscribers attach for one
//	operation and must detach on every exit path; bytes arriving while no
//	subscriber is attached are discarded.
//
// Thread Safety:
//
//	Safe for concurrent use.
type stream struct {
	mu     sync.Mutex
	subs   map[int]chan []byte
	nextID int
	closed bool
}

// newStream starts the pump goroutine over r.
func newStream(r io.Reader) *stream {
	s := &stream{subs: make(map[int]chan []byte)}
	go s.pump(r)
	return s
}

// pump reads chunks until EOF or error, broadcasting to current subscribers.
func (s *stream) pump(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.broadcast(chunk)
		}
		if err != nil {
			s.close()
			return
		}
	}
}

// broadcast copies a chunk to every attached subscriber, dropping chunks for
// subscribers whose channel is full.
func (s *stream) broadcast(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- chunk:
		default:
		}
	}
}

// close marks the stream finished and closes all subscriber channels.
func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// subscribe attaches a listener for one operation.
//
// Outputs:
//
//	<-chan []byte - Chunk channel; closed when the stream ends or the
//	                subscription is cancelled.
//	func() - Detach function. Must be called on every exit path.
func (s *stream) subscribe() (<-chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan []byte, streamChunkBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}
