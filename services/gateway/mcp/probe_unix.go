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
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// termSignal is the graceful stop signal on POSIX platforms.
var termSignal os.Signal = unix.SIGTERM

// probePID checks whether the pid still answers an OS-level liveness probe
// (signal 0). EPERM means the process exists but belongs to another user,
// which still counts as alive.
func probePID(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
