// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package valuestorage

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"storj.io/jcrstore/blobstore"
)

// operation is a staged blob mutation. execute resolves what the operation
// touches, prepare applies it in a reversible form, twoPhaseCommit makes it
// permanent and rollback reverts prepare.
type operation interface {
	execute(ctx context.Context) error
	prepare(ctx context.Context) error
	twoPhaseCommit(ctx context.Context) error
	rollback(ctx context.Context) error
}

type writeOperation struct {
	storage *Storage
	key     string
	content io.Reader
	length  int64

	attempted bool
}

func (op *writeOperation) execute(ctx context.Context) error { return nil }

func (op *writeOperation) prepare(ctx context.Context) error {
	// an earlier staged delete may have orphaned this key
	op.storage.reclaimer.Remove(ctx, op.storage.handle(op.key))

	op.attempted = true
	return op.storage.driver.Put(ctx, op.key, op.content, op.length)
}

func (op *writeOperation) twoPhaseCommit(ctx context.Context) error { return nil }

func (op *writeOperation) rollback(ctx context.Context) error {
	if !op.attempted {
		return nil
	}
	op.attempted = false
	if !op.storage.driver.Delete(ctx, op.key) {
		op.storage.orphan(ctx, op.key)
	}
	return nil
}

// staged is a key that was moved away to backup by a delete.
type staged struct {
	key    string
	backup string
}

type deleteOperation struct {
	storage    *Storage
	propertyID string

	keys   []string
	staged []staged
}

func (op *deleteOperation) execute(ctx context.Context) (err error) {
	op.keys, err = op.storage.valueKeys(ctx, op.propertyID)
	return err
}

func (op *deleteOperation) prepare(ctx context.Context) error {
	var lastErr error
	now := time.Now()
	for _, key := range op.keys {
		backup := blobstore.BackupKey(key, now)
		orphaned, err := blobstore.Move(ctx, op.storage.driver, key, backup)
		if err != nil {
			op.storage.log.Warn("unable to stage delete", zap.String("key", key), zap.Error(err))
			lastErr = err
			continue
		}
		op.staged = append(op.staged, staged{key: key, backup: backup})
		if orphaned {
			op.storage.orphan(ctx, key)
		}
	}
	return lastErr
}

func (op *deleteOperation) twoPhaseCommit(ctx context.Context) error {
	if len(op.staged) == 0 {
		return nil
	}

	backups := make([]string, 0, len(op.staged))
	for _, s := range op.staged {
		backups = append(backups, s.backup)
	}
	op.staged = nil

	failed, err := op.storage.driver.BatchDelete(ctx, backups)
	for _, backup := range failed {
		op.storage.orphan(ctx, backup)
	}
	return err
}

func (op *deleteOperation) rollback(ctx context.Context) error {
	var lastErr error
	for i := len(op.staged) - 1; i >= 0; i-- {
		s := op.staged[i]

		// neither name may be swept while the backup is restored
		op.storage.reclaimer.Remove(ctx, op.storage.handle(s.backup))
		op.storage.reclaimer.Remove(ctx, op.storage.handle(s.key))

		orphaned, err := blobstore.Move(ctx, op.storage.driver, s.backup, s.key)
		if err != nil {
			if blobstore.ErrNotFound.Has(err) {
				// an aborted native transaction already undid the rename
				if exists, existsErr := op.storage.driver.Exists(ctx, s.key); existsErr == nil && exists {
					continue
				}
			}
			op.storage.log.Warn("unable to restore staged delete", zap.String("key", s.key), zap.String("backup", s.backup), zap.Error(err))
			lastErr = err
			continue
		}
		if orphaned {
			op.storage.orphan(ctx, s.backup)
		}
	}
	op.staged = nil
	return lastErr
}
