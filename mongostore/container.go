// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package mongostore stores the items of a workspace in a MongoDB
// collection, one document per node or property.
package mongostore

import (
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"storj.io/jcrstore/blobstore/gridfs"
	"storj.io/jcrstore/itemdata"
	"storj.io/jcrstore/valuestorage"
	"storj.io/jcrstore/workspace"
)

var (
	// Error is the default mongostore error class.
	Error = errs.Class("mongostore")

	mon = monkit.Package()

	_ workspace.Container  = (*Container)(nil)
	_ workspace.Connection = (*Connection)(nil)
)

// CollectionPrefix prefixes the names of workspace collections.
const CollectionPrefix = "jcr"

// Config configures the workspace collection.
type Config struct {
	URI              string `help:"mongodb connection uri, the database defaults to jcr" default:"mongodb://localhost:27017/jcr"`
	Workspace        string `help:"name of the workspace" default:"ws"`
	CollectionSuffix string `help:"suffix of the collection name, the workspace name when empty" default:""`
	AutoCommit       bool   `help:"apply every write immediately instead of in a transaction" default:"false"`
	BatchSize        int    `help:"number of documents fetched per round trip, 0 uses the server default" default:"0"`
}

// CollectionName returns the name of the collection holding the workspace.
func (config Config) CollectionName() string {
	suffix := config.CollectionSuffix
	if suffix == "" {
		suffix = config.Workspace
	}
	return gridfs.CollectionName(CollectionPrefix, suffix)
}

// Container owns the MongoDB client of a workspace and opens connections
// on its collection.
type Container struct {
	log        *zap.Logger
	config     Config
	client     *mongo.Client
	owned      bool
	collection *mongo.Collection
	provider   *valuestorage.Provider
}

// Open connects to MongoDB and prepares the workspace collection. External
// values are resolved through provider.
func Open(ctx context.Context, log *zap.Logger, config Config, provider *valuestorage.Provider) (_ *Container, err error) {
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

	container, err := New(ctx, log, client, config, provider)
	if err != nil {
		return nil, err
	}
	container.owned = true
	return container, nil
}

// New prepares the workspace collection with an existing client. The client
// is not disconnected by Close.
func New(ctx context.Context, log *zap.Logger, client *mongo.Client, config Config, provider *valuestorage.Provider) (_ *Container, err error) {
	defer mon.Task()(&ctx)(&err)

	database := client.Database(gridfs.DatabaseName(config.URI))
	container := &Container{
		log:        log,
		config:     config,
		client:     client,
		collection: database.Collection(config.CollectionName()),
		provider:   provider,
	}

	log.Info("opening workspace container",
		zap.String("database", database.Name()),
		zap.String("collection", container.collection.Name()),
		zap.Bool("auto commit", config.AutoCommit),
		zap.Strings("value storages", provider.IDs()))

	if err := container.initDatabase(ctx); err != nil {
		return nil, err
	}
	return container, nil
}

// Name returns the workspace name.
func (container *Container) Name() string { return container.config.Workspace }

// Client returns the MongoDB client.
func (container *Container) Client() *mongo.Client { return container.client }

// Collection returns the workspace collection.
func (container *Container) Collection() *mongo.Collection { return container.collection }

// Provider returns the value storages of the workspace.
func (container *Container) Provider() *valuestorage.Provider { return container.provider }

// Open opens a connection.
func (container *Container) Open(ctx context.Context, readOnly bool) (workspace.Connection, error) {
	return container.Connect(ctx, readOnly)
}

// Connect opens a connection. Unless the container is configured with auto
// commit, read-write connections run inside a transaction.
func (container *Container) Connect(ctx context.Context, readOnly bool) (_ *Connection, err error) {
	defer mon.Task()(&ctx)(&err)

	conn := &Connection{
		log:        container.log.Named("conn"),
		container:  container,
		collection: container.collection,
		readOnly:   readOnly,
		tx:         valuestorage.NoTx,
		channels:   map[string]*valuestorage.Channel{},
	}
	if readOnly || container.config.AutoCommit {
		return conn, nil
	}

	session, err := container.client.StartSession()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, Error.Wrap(err)
	}
	conn.session = session
	conn.tx = &sessionTx{client: container.client, session: session}
	return conn, nil
}

// initDatabase creates the collection with its indexes when it is missing.
func (container *Container) initDatabase(ctx context.Context) error {
	names, err := container.collection.Database().ListCollectionNames(ctx, bson.D{{Key: "name", Value: container.collection.Name()}})
	if err != nil {
		return Error.Wrap(err)
	}
	if len(names) > 0 {
		return nil
	}

	container.log.Debug("creating collection", zap.String("collection", container.collection.Name()))
	if err := container.collection.Database().CreateCollection(ctx, container.collection.Name()); err != nil {
		return Error.Wrap(err)
	}
	if err := container.addIndexes(ctx); err != nil {
		return err
	}
	return container.initCollection(ctx)
}

func (container *Container) addIndexes(ctx context.Context) error {
	_, err := container.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: fieldParentID, Value: 1},
				{Key: fieldName, Value: 1},
				{Key: fieldIndex, Value: 1},
				{Key: fieldIsNode, Value: -1},
				{Key: fieldVersion, Value: -1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: fieldParentID, Value: 1},
				{Key: fieldIsNode, Value: 1},
				{Key: fieldOrderNumber, Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: fieldIsNode, Value: 1},
				{Key: fieldID, Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: fieldValues + "." + fieldRef, Value: 1},
				{Key: fieldID, Value: 1},
			},
			Options: options.Index().SetSparse(true),
		},
	})
	if err != nil {
		return Error.Wrap(err)
	}
	container.log.Debug("created indexes", zap.String("collection", container.collection.Name()))
	return nil
}

// initCollection turns the reference index into a multikey index outside of
// any transaction. A transaction can not make that transition.
func (container *Container) initCollection(ctx context.Context) error {
	if container.config.AutoCommit {
		return nil
	}

	fake := bson.D{
		{Key: fieldID, Value: itemdata.RootParentID},
		{Key: fieldParentID, Value: itemdata.RootParentID},
		{Key: fieldName, Value: itemdata.RootParentID},
		{Key: fieldIndex, Value: 1},
		{Key: fieldIsNode, Value: true},
		{Key: fieldVersion, Value: 1},
		{Key: fieldOrderNumber, Value: 1},
		{Key: fieldValues, Value: bson.A{
			bson.D{{Key: fieldRef, Value: "foo"}},
			bson.D{{Key: fieldRef, Value: "foo2"}},
		}},
	}
	if _, err := container.collection.InsertOne(ctx, fake); err != nil {
		return Error.Wrap(err)
	}
	_, err := container.collection.DeleteOne(ctx, bson.D{{Key: fieldID, Value: itemdata.RootParentID}})
	return Error.Wrap(err)
}

// Clean drops the collection and creates it again empty.
func (container *Container) Clean(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	container.log.Info("dropping collection", zap.String("collection", container.collection.Name()))
	if err := container.collection.Drop(ctx); err != nil {
		return Error.Wrap(err)
	}
	return container.initDatabase(ctx)
}

// DeleteLockProperties removes the lock properties left behind by earlier
// runs.
func (container *Container) DeleteLockProperties(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return workspace.Transact(ctx, container, func(ctx context.Context, conn workspace.Connection) error {
		return conn.DeleteLockProperties(ctx)
	})
}

// NodesCount returns the number of nodes of the workspace.
func (container *Container) NodesCount(ctx context.Context) (count int64, err error) {
	defer mon.Task()(&ctx)(&err)
	err = workspace.View(ctx, container, func(ctx context.Context, conn workspace.Reader) (err error) {
		count, err = conn.GetNodesCount(ctx)
		return err
	})
	return count, err
}

// ExternalValue locates a property value kept in a value storage.
type ExternalValue struct {
	PropertyID  string
	StorageID   string
	OrderNumber int
	Size        int64
}

// ExternalValues calls fn for every value of the workspace kept in a value
// storage.
func (container *Container) ExternalValues(ctx context.Context, fn func(ctx context.Context, value ExternalValue) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	cursor, err := container.collection.Find(ctx, bson.D{
		{Key: fieldIsNode, Value: false},
		{Key: fieldValues + "." + fieldStorage, Value: bson.D{{Key: "$exists", Value: true}}},
	}, options.Find().SetProjection(bson.D{{Key: fieldValues, Value: 1}}))
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(cursor.Close(ctx))) }()

	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return Error.Wrap(err)
		}
		for _, entry := range doc.Values {
			if entry.Storage == "" {
				continue
			}
			err := fn(ctx, ExternalValue{
				PropertyID:  doc.ID,
				StorageID:   entry.Storage,
				OrderNumber: entry.OrderNumber,
				Size:        entry.Size,
			})
			if err != nil {
				return err
			}
		}
	}
	return Error.Wrap(cursor.Err())
}

// Close disconnects the client when the container connected it.
func (container *Container) Close() error {
	if !container.owned {
		return nil
	}
	return Error.Wrap(container.client.Disconnect(context.Background()))
}
