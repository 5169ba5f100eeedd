// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package storelogger records the outcome of journal calls.
package storelogger

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/jcrstore/private/kvstore"
)

var mon = monkit.Package()

var _ kvstore.Store = (*Logger)(nil)

// Logger wraps a kvstore.Store and logs every call once it completes.
// Successful calls are logged at debug level, failed ones as warnings.
// Missing keys are expected by the reclaimer and are not failures.
type Logger struct {
	log   *zap.Logger
	store kvstore.Store
}

// New wraps store.
func New(log *zap.Logger, store kvstore.Store) *Logger {
	return &Logger{log: log, store: store}
}

func (store *Logger) done(op string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields, zap.Duration("elapsed", time.Since(start)))
	if err != nil && !kvstore.ErrKeyNotFound.Has(err) {
		store.log.Warn(op+" failed", append(fields, zap.Error(err))...)
		return
	}
	if ce := store.log.Check(zap.DebugLevel, op); ce != nil {
		if err != nil {
			fields = append(fields, zap.Bool("missing", true))
		}
		ce.Write(fields...)
	}
}

// Put journals value under key.
func (store *Logger) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer func(start time.Time) {
		store.done("put", start, err, zap.ByteString("key", key), zap.Int("size", len(value)))
	}(time.Now())
	return store.store.Put(ctx, key, value)
}

// Get returns the entry of key.
func (store *Logger) Get(ctx context.Context, key kvstore.Key) (value kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	defer func(start time.Time) {
		store.done("get", start, err, zap.ByteString("key", key))
	}(time.Now())
	return store.store.Get(ctx, key)
}

// Delete forgets key.
func (store *Logger) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer func(start time.Time) {
		store.done("delete", start, err, zap.ByteString("key", key))
	}(time.Now())
	return store.store.Delete(ctx, key)
}

// Range visits every entry and logs how many were visited.
func (store *Logger) Range(ctx context.Context, fn func(context.Context, kvstore.Key, kvstore.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	visited := 0
	defer func(start time.Time) {
		store.done("range", start, err, zap.Int("visited", visited))
	}(time.Now())
	return store.store.Range(ctx, func(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
		visited++
		return fn(ctx, key, value)
	})
}

// Close closes the wrapped store.
func (store *Logger) Close() (err error) {
	defer func(start time.Time) { store.done("close", start, err) }(time.Now())
	return store.store.Close()
}
