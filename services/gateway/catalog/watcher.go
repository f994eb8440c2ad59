// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce batches rapid editor write bursts into one reload.
const reloadDebounce = 200 * time.Millisecond

// Watcher hot-reloads a file-backed catalog when the file changes.
type Watcher struct {
	catalog *Catalog
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher over the catalog's backing file.
//
// Outputs:
//
//	*Watcher - Ready watcher; call Start to begin, Stop on shutdown.
//	error - Non-nil if the catalog is embedded-only or the fsnotify
//	        watcher could not be created.
func NewWatcher(c *Catalog) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on save,
	// which drops a file-level watch.
	if err := fw.Add(filepath.Dir(c.path)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	return &Watcher{
		catalog: c,
		watcher: fw,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching until the context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop ends watching and releases the fsnotify handle.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var debounce *time.Timer
	target := filepath.Clean(w.catalog.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := w.catalog.Reload(); err != nil {
					slog.Error("catalog reload failed; keeping previous catalog",
						slog.String("path", target),
						slog.Any("error", err),
					)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("catalog watcher error", slog.Any("error", err))
		}
	}
}
