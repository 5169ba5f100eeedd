// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package gridfs implements blobstore.Driver on top of a MongoDB GridFS
// bucket.
package gridfs

import (
	"context"
	"errors"
	"io"
	"regexp"
	"sort"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"storj.io/jcrstore/blobstore"
)

var (
	// Error is the default gridfs error class.
	Error = errs.Class("gridfs")

	mon = monkit.Package()

	_ blobstore.Driver  = (*Store)(nil)
	_ blobstore.Renamer = (*Store)(nil)
)

// DefaultDatabase is used when the connection URI does not name a database.
const DefaultDatabase = "jcr"

// Config configures the GridFS bucket.
type Config struct {
	URI    string `help:"mongodb connection uri" default:"mongodb://localhost:27017/jcr"`
	Bucket string `help:"name of the gridfs bucket" default:"jcr_gfs"`
}

// Store is a GridFS backed blob driver.
type Store struct {
	log    *zap.Logger
	client *mongo.Client
	bucket *gridfs.Bucket
	owned  bool
}

// file is the subset of a GridFS files document the driver needs.
type file struct {
	ID       interface{} `bson:"_id"`
	Length   int64       `bson:"length"`
	Filename string      `bson:"filename"`
}

// Open connects to MongoDB and opens the configured bucket.
func Open(ctx context.Context, log *zap.Logger, config Config) (_ *Store, err error) {
	defer mon.Task()(&ctx)(&err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, client.Disconnect(context.Background()))
		}
	}()

	store, err := New(log, client.Database(DatabaseName(config.URI)), config.Bucket)
	if err != nil {
		return nil, err
	}
	store.owned = true
	return store, nil
}

// New opens a bucket on an existing database. The client is not closed by
// Close.
func New(log *zap.Logger, db *mongo.Database, bucketName string) (*Store, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Store{
		log:    log,
		client: db.Client(),
		bucket: bucket,
	}, nil
}

// Client returns the MongoDB client the bucket was opened with.
func (store *Store) Client() *mongo.Client { return store.client }

func (store *Store) find(ctx context.Context, filter interface{}, opts ...*options.GridFSFindOptions) (_ []file, err error) {
	cursor, err := store.bucket.FindContext(ctx, filter, opts...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var files []file
	if err := cursor.All(ctx, &files); err != nil {
		return nil, Error.Wrap(err)
	}
	return files, nil
}

// Exists reports whether a file is stored under key.
func (store *Store) Exists(ctx context.Context, key string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	files, err := store.find(ctx, bson.M{"filename": key}, options.GridFSFind().SetLimit(1))
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// Get opens the newest revision of key.
func (store *Store) Get(ctx context.Context, key string) (_ io.ReadCloser, _ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	stream, err := store.bucket.OpenDownloadStreamByName(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, 0, blobstore.ErrNotFound.New("%q", key)
		}
		return nil, 0, Error.Wrap(err)
	}
	return stream, stream.GetFile().Length, nil
}

// Put uploads a new revision of key and removes the previous ones.
func (store *Store) Put(ctx context.Context, key string, r io.Reader, length int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := blobstore.CheckLength(length); err != nil {
		return err
	}

	previous, err := store.find(ctx, bson.M{"filename": key})
	if err != nil {
		return err
	}

	counter := &countingReader{r: io.LimitReader(r, length)}
	id, err := store.bucket.UploadFromStream(key, counter)
	if err != nil {
		return Error.Wrap(err)
	}
	if counter.n != length {
		// the truncated revision must not shadow the previous ones
		err := blobstore.ErrInvalidLength.New("expected %d bytes, read %d", length, counter.n)
		if derr := store.bucket.DeleteContext(ctx, id); derr != nil && !errors.Is(derr, gridfs.ErrFileNotFound) {
			err = errs.Combine(err, Error.Wrap(derr))
		}
		return err
	}

	for _, f := range previous {
		if err := store.bucket.DeleteContext(ctx, f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return Error.Wrap(err)
		}
	}
	return nil
}

// Delete removes every revision of key. Missing files count as deleted.
func (store *Store) Delete(ctx context.Context, key string) bool {
	if err := store.delete(ctx, key); err != nil {
		store.log.Warn("could not delete file", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (store *Store) delete(ctx context.Context, key string) error {
	files, err := store.find(ctx, bson.M{"filename": key})
	if err != nil {
		return err
	}
	var group errs.Group
	for _, f := range files {
		if err := store.bucket.DeleteContext(ctx, f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			group.Add(Error.Wrap(err))
		}
	}
	return group.Err()
}

// BatchDelete removes every key and returns the ones that failed.
func (store *Store) BatchDelete(ctx context.Context, keys []string) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	var failed []string
	for _, key := range keys {
		if !store.Delete(ctx, key) {
			failed = append(failed, key)
		}
	}
	return failed, nil
}

// List returns the distinct file names starting with prefix.
func (store *Store) List(ctx context.Context, prefix string) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	filter := bson.M{"filename": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	files, err := store.find(ctx, filter, options.GridFSFind().SetSort(bson.D{{Key: "filename", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, f := range files {
		if len(keys) > 0 && keys[len(keys)-1] == f.Filename {
			continue
		}
		keys = append(keys, f.Filename)
	}
	sort.Strings(keys)
	return keys, nil
}

// Copy downloads src and uploads it as dst.
func (store *Store) Copy(ctx context.Context, src, dst string) (err error) {
	defer mon.Task()(&ctx)(&err)

	rc, length, err := store.Get(ctx, src)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rc.Close())) }()

	return store.Put(ctx, dst, rc, length)
}

// Rename renames every revision of src to dst.
func (store *Store) Rename(ctx context.Context, src, dst string) (err error) {
	defer mon.Task()(&ctx)(&err)

	files, err := store.find(ctx, bson.M{"filename": src})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return blobstore.ErrNotFound.New("%q", src)
	}
	if err := store.delete(ctx, dst); err != nil {
		return err
	}
	for _, f := range files {
		if err := store.bucket.RenameContext(ctx, f.ID, dst); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// Size returns the length of the newest revision, or -1.
func (store *Store) Size(ctx context.Context, key string) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	files, err := store.find(ctx, bson.M{"filename": key},
		options.GridFSFind().SetSort(bson.D{{Key: "uploadDate", Value: -1}}).SetLimit(1))
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return -1, nil
	}
	return files[0].Length, nil
}

// Drop removes the bucket with all of its files.
func (store *Store) Drop(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(store.bucket.DropContext(ctx))
}

// Close disconnects the client when the store opened it.
func (store *Store) Close() error {
	if !store.owned {
		return nil
	}
	return Error.Wrap(store.client.Disconnect(context.Background()))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (counter *countingReader) Read(p []byte) (int, error) {
	n, err := counter.r.Read(p)
	counter.n += int64(n)
	return n, err
}
