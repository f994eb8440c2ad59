// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package mcp

import "os"

// termSignal is unused on Windows (gracefulSignal returns os.Interrupt),
// kept so the package compiles on all platforms.
var termSignal os.Signal = os.Interrupt

// probePID checks whether the pid still names a live process. Windows has no
// signal-0 probe; FindProcess fails for pids that no longer exist.
func probePID(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
