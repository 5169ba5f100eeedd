// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package mongostore

import (
	"bufio"
	"context"
	"errors"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// restoreBatchSize is the number of documents inserted at once by Restore.
const restoreBatchSize = 1000

// Dump markers preceding every document and the end of the stream.
const (
	dumpDocument byte = 1
	dumpEnd      byte = 0
)

// Dump writes every document of the workspace collection to w. Each
// document is preceded by a marker byte and the stream ends with an end
// marker.
func (container *Container) Dump(ctx context.Context, w io.Writer) (count int64, err error) {
	defer mon.Task()(&ctx)(&err)

	cursor, err := container.collection.Find(ctx, bson.D{})
	if err != nil {
		return 0, Error.Wrap(err)
	}
	defer func() {
		if closeErr := cursor.Close(ctx); err == nil {
			err = Error.Wrap(closeErr)
		}
	}()

	buffered := bufio.NewWriter(w)
	for cursor.Next(ctx) {
		if err := buffered.WriteByte(dumpDocument); err != nil {
			return count, Error.Wrap(err)
		}
		if _, err := buffered.Write(cursor.Current); err != nil {
			return count, Error.Wrap(err)
		}
		count++
	}
	if err := cursor.Err(); err != nil {
		return count, Error.Wrap(err)
	}
	if err := buffered.WriteByte(dumpEnd); err != nil {
		return count, Error.Wrap(err)
	}
	if err := buffered.Flush(); err != nil {
		return count, Error.Wrap(err)
	}

	container.log.Info("workspace dumped", zap.String("collection", container.collection.Name()), zap.Int64("documents", count))
	return count, nil
}

// Restore replaces the workspace collection with the documents read from a
// stream written by Dump.
func (container *Container) Restore(ctx context.Context, r io.Reader) (count int64, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := container.collection.Drop(ctx); err != nil {
		return 0, Error.Wrap(err)
	}

	batches := make(chan []interface{}, 2)
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(batches)
		reader := bufio.NewReader(r)
		batch := make([]interface{}, 0, restoreBatchSize)
		for {
			marker, err := reader.ReadByte()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return Error.New("dump ended without end marker")
				}
				return Error.Wrap(err)
			}
			if marker == dumpEnd {
				break
			}
			if marker != dumpDocument {
				return Error.New("invalid dump marker %d", marker)
			}

			doc, err := bson.NewFromIOReader(reader)
			if err != nil {
				return Error.Wrap(err)
			}
			batch = append(batch, doc)
			if len(batch) < restoreBatchSize {
				continue
			}
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
			batch = make([]interface{}, 0, restoreBatchSize)
		}
		if len(batch) == 0 {
			return nil
		}
		select {
		case batches <- batch:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	group.Go(func() error {
		for batch := range batches {
			if _, err := container.collection.InsertMany(gctx, batch); err != nil {
				return Error.Wrap(err)
			}
			count += int64(len(batch))
			container.log.Debug("restored documents", zap.Int64("documents", count))
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return count, err
	}

	if err := container.addIndexes(ctx); err != nil {
		return count, err
	}
	if err := container.initCollection(ctx); err != nil {
		return count, err
	}

	container.log.Info("workspace restored", zap.String("collection", container.collection.Name()), zap.Int64("documents", count))
	return count, nil
}
