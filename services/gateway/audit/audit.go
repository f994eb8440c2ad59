// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists the tool-invocation audit trail in BadgerDB.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/mcpgate/pkg/extensions"
	"github.com/AleutianAI/mcpgate/services/gateway/storage/badger"
)

// recordTTL bounds how long invocation records are retained. BadgerDB drops
// expired entries during compaction.
const recordTTL = 30 * 24 * time.Hour

// keyPrefix namespaces audit records. Keys embed a big-endian-ish sortable
// timestamp so reverse iteration yields newest first.
const keyPrefix = "audit:"

// BadgerAuditor implements extensions.AuditLogger over an embedded BadgerDB.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions provide the
// isolation.
type BadgerAuditor struct {
	db *badgerdb.DB
}

// NewBadgerAuditor opens (or creates) the audit store at path.
func NewBadgerAuditor(path string) (*BadgerAuditor, error) {
	db, err := badger.OpenWithPath(path)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	return &BadgerAuditor{db: db}, nil
}

// NewInMemoryAuditor opens an in-memory audit store for testing.
func NewInMemoryAuditor() (*BadgerAuditor, error) {
	db, err := badger.OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("open in-memory audit store: %w", err)
	}
	return &BadgerAuditor{db: db}, nil
}

// Log persists one record with the retention TTL. Storage failures are
// logged and swallowed so the request path never fails on audit trouble.
func (a *BadgerAuditor) Log(_ context.Context, record extensions.AuditRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		slog.Warn("audit record marshal failed", slog.Any("error", err))
		return nil
	}

	key := fmt.Sprintf("%s%020d:%s", keyPrefix, record.Timestamp.UnixNano(), record.ID)
	err = a.db.Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry([]byte(key), data).WithTTL(recordTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		slog.Warn("audit record write failed",
			slog.String("key", record.Key),
			slog.Any("error", err),
		)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (a *BadgerAuditor) Recent(_ context.Context, limit int) ([]extensions.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []extensions.AuditRecord
	err := a.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the prefix range end.
		seek := append([]byte(keyPrefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix([]byte(keyPrefix)) && len(records) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec extensions.AuditRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return nil // skip corrupt record
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query audit store: %w", err)
	}
	return records, nil
}

// Close releases the underlying database.
func (a *BadgerAuditor) Close() error {
	return a.db.Close()
}
