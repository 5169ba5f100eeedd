// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/memory"
)

// SpoolConfig configures how blob payloads are buffered when read.
type SpoolConfig struct {
	TempDir       string      `help:"directory for payloads that do not fit in memory (empty uses the system temp dir)" default:""`
	MaxBufferSize memory.Size `help:"payloads up to this size are held in memory" default:"200KiB"`
}

// Payload is a blob read back from a driver. Closing a file backed payload
// removes its swap file.
type Payload interface {
	io.ReadCloser
	// Len returns the number of bytes of the payload.
	Len() int64
	// Bytes returns the whole payload when it is held in memory, nil otherwise.
	Bytes() []byte
}

// Spooler decides whether a payload is read into memory or streamed into a
// swap file.
type Spooler struct {
	log     *zap.Logger
	config  SpoolConfig
	release func(path string)
}

// NewSpooler creates a spooler. Swap files that cannot be removed when their
// payload is closed are passed to release.
func NewSpooler(log *zap.Logger, config SpoolConfig, release func(path string)) *Spooler {
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	return &Spooler{
		log:     log,
		config:  config,
		release: release,
	}
}

// Read fetches the blob stored under key.
func (spooler *Spooler) Read(ctx context.Context, driver Driver, key string) (_ Payload, err error) {
	defer mon.Task()(&ctx)(&err)

	rc, length, err := driver.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { err = errs.Combine(err, rc.Close()) }()

	if length >= 0 && length <= spooler.config.MaxBufferSize.Int64() {
		data := make([]byte, length)
		if _, err := io.ReadFull(rc, data); err != nil {
			return nil, Error.Wrap(err)
		}
		return &memoryPayload{Reader: bytes.NewReader(data), data: data}, nil
	}

	return spooler.spool(strings.ReplaceAll(key, "/", "_"), rc)
}

// Buffer turns a reader of unknown length into a payload of known length.
func (spooler *Spooler) Buffer(ctx context.Context, r io.Reader) (_ Payload, err error) {
	defer mon.Task()(&ctx)(&err)

	limit := spooler.config.MaxBufferSize.Int64()
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, r, limit+1)
	if err != nil && !errs.Is(err, io.EOF) {
		return nil, Error.Wrap(err)
	}
	if n <= limit {
		data := buf.Bytes()
		return &memoryPayload{Reader: bytes.NewReader(data), data: data}, nil
	}

	return spooler.spool("buffer", io.MultiReader(&buf, r))
}

func (spooler *Spooler) spool(name string, r io.Reader) (_ Payload, err error) {
	path := filepath.Join(spooler.config.TempDir, name+"."+UniqueSuffix(time.Now()))
	file, err := os.Create(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	payload := &filePayload{spooler: spooler, file: file, path: path}
	defer func() {
		if err != nil {
			err = errs.Combine(err, payload.Close())
		}
	}()

	payload.length, err = io.Copy(file, r)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, Error.Wrap(err)
	}
	return payload, nil
}

type memoryPayload struct {
	*bytes.Reader
	data []byte
}

func (payload *memoryPayload) Len() int64    { return int64(len(payload.data)) }
func (payload *memoryPayload) Bytes() []byte { return payload.data }
func (payload *memoryPayload) Close() error  { return nil }

type filePayload struct {
	spooler *Spooler
	file    *os.File
	path    string
	length  int64
}

func (payload *filePayload) Read(p []byte) (int, error) { return payload.file.Read(p) }
func (payload *filePayload) Len() int64                 { return payload.length }
func (payload *filePayload) Bytes() []byte              { return nil }

// Close closes the swap file and removes it. A file that cannot be removed
// is released to the spooler's cleaner.
func (payload *filePayload) Close() error {
	err := payload.file.Close()
	if rerr := os.Remove(payload.path); rerr != nil && !os.IsNotExist(rerr) {
		payload.spooler.log.Warn("unable to remove swap file", zap.String("path", payload.path), zap.Error(rerr))
		if payload.spooler.release != nil {
			payload.spooler.release(payload.path)
		}
	}
	return Error.Wrap(err)
}
