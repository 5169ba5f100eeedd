// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package mongostore

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/zeebo/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"storj.io/jcrstore/itemdata"
	"storj.io/jcrstore/valuestorage"
)

// duplicateKeyCode is the server error code of unique index violations.
const duplicateKeyCode = 11000

// addError classifies a failed insert of the item with id. A collision on
// the identifier means the item was already added, any other collision is a
// sibling with the same name.
func addError(err error, kind string, item *itemdata.ItemData) error {
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == duplicateKeyCode && strings.Contains(we.Message, item.ID) {
				return itemdata.ErrInvalidItemState.New("could not add %s %s %q: item already exists", kind, item.Path, item.ID)
			}
		}
	}
	if mongo.IsDuplicateKeyError(err) {
		return itemdata.ErrItemExists.New("could not add %s %s %q with parent %q", kind, item.Path, item.ID, item.ParentID)
	}
	return Error.New("could not add %s %s %q: %v", kind, item.Path, item.ID, err)
}

// AddNode inserts a node. It fails with itemdata.ErrInvalidItemState when
// the parent no longer exists.
func (conn *Connection) AddNode(ctx context.Context, node *itemdata.NodeData) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkWritable(); err != nil {
		return err
	}

	if _, err := conn.collection.InsertOne(conn.bind(ctx), nodeDocument(node)); err != nil {
		return addError(err, "node", &node.ItemData)
	}

	if node.ParentID != "" {
		parent, err := conn.findOne(ctx, bson.D{{Key: fieldID, Value: node.ParentID}},
			options.FindOne().SetProjection(bson.D{{Key: fieldID, Value: 1}}))
		if err != nil {
			return err
		}
		if parent == nil {
			return itemdata.ErrInvalidItemState.New("(added) parent of node %s %q not found, probably deleted by another session", node.Path, node.ID)
		}
	}

	conn.log.Debug("node added", zap.Stringer("path", node.Path), zap.String("id", node.ID))
	return nil
}

// AddProperty inserts a property and stages its external values.
func (conn *Connection) AddProperty(ctx context.Context, property *itemdata.PropertyData) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkWritable(); err != nil {
		return err
	}

	values, err := conn.addValues(ctx, property)
	if err != nil {
		return err
	}
	if _, err := conn.collection.InsertOne(conn.bind(ctx), propertyDocument(property, values)); err != nil {
		return addError(err, "property", &property.ItemData)
	}
	if err := conn.setMirror(ctx, property, "added"); err != nil {
		return err
	}

	conn.log.Debug("property added", zap.Stringer("path", property.Path), zap.String("id", property.ID), zap.Int("values", len(property.Values)))
	return nil
}

// UpdateNode changes the version, the index and the order number of a node.
func (conn *Connection) UpdateNode(ctx context.Context, node *itemdata.NodeData) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkWritable(); err != nil {
		return err
	}

	return conn.updateOne(ctx, node.ID, bson.D{
		{Key: fieldVersion, Value: node.Version},
		{Key: fieldIndex, Value: node.Index},
		{Key: fieldOrderNumber, Value: node.OrderNumber},
	}, "(update) node %s %q not found, probably deleted by another session", node.Path, node.ID)
}

// UpdateProperty releases the external values of a property and replaces
// every value.
func (conn *Connection) UpdateProperty(ctx context.Context, property *itemdata.PropertyData) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkWritable(); err != nil {
		return err
	}

	if err := conn.deleteValues(ctx, property.ID); err != nil {
		return err
	}
	values, err := conn.addValues(ctx, property)
	if err != nil {
		return err
	}

	err = conn.updateOne(ctx, property.ID, bson.D{
		{Key: fieldVersion, Value: property.Version},
		{Key: fieldType, Value: property.Type},
		{Key: fieldMultiValued, Value: property.MultiValued},
		{Key: fieldValues, Value: values},
	}, "(update) property %s %q not found, probably deleted by another session", property.Path, property.ID)
	if err != nil {
		return err
	}
	if err := conn.setMirror(ctx, property, "update"); err != nil {
		return err
	}

	conn.log.Debug("property updated", zap.Stringer("path", property.Path), zap.String("id", property.ID), zap.Int("values", len(property.Values)))
	return nil
}

// Rename moves a node to a new parent, name or index.
func (conn *Connection) Rename(ctx context.Context, node *itemdata.NodeData) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkWritable(); err != nil {
		return err
	}

	return conn.updateOne(ctx, node.ID, bson.D{
		{Key: fieldParentID, Value: parentID(node.ParentID)},
		{Key: fieldName, Value: node.Name.String()},
		{Key: fieldVersion, Value: node.Version},
		{Key: fieldIndex, Value: node.Index},
		{Key: fieldOrderNumber, Value: node.OrderNumber},
	}, "(rename) node %s %q not found, probably deleted by another session", node.Path, node.ID)
}

// DeleteNode removes a node.
func (conn *Connection) DeleteNode(ctx context.Context, node *itemdata.NodeData) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkWritable(); err != nil {
		return err
	}

	result, err := conn.collection.DeleteOne(conn.bind(ctx), bson.D{{Key: fieldID, Value: node.ID}})
	if err != nil {
		return Error.Wrap(err)
	}
	if result.DeletedCount == 0 {
		return itemdata.ErrInvalidItemState.New("(delete) node %s %q not found, probably deleted by another session", node.Path, node.ID)
	}

	conn.log.Debug("node deleted", zap.Stringer("path", node.Path), zap.String("id", node.ID))
	return nil
}

// DeleteProperty releases the external values of a property and removes
// it.
func (conn *Connection) DeleteProperty(ctx context.Context, property *itemdata.PropertyData) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkWritable(); err != nil {
		return err
	}

	if err := conn.deleteValues(ctx, property.ID); err != nil {
		return err
	}

	result, err := conn.collection.DeleteOne(conn.bind(ctx), bson.D{{Key: fieldID, Value: property.ID}})
	if err != nil {
		return Error.Wrap(err)
	}
	if result.DeletedCount == 0 {
		return itemdata.ErrInvalidItemState.New("(delete) property %s %q not found, probably deleted by another session", property.Path, property.ID)
	}

	if field, ok := mainProperties[property.Name]; ok {
		update := bson.D{{Key: "$unset", Value: bson.D{{Key: field, Value: ""}}}}
		result, err := conn.collection.UpdateOne(conn.bind(ctx), bson.D{{Key: fieldID, Value: property.ParentID}}, update)
		if err != nil {
			return Error.Wrap(err)
		}
		if result.MatchedCount == 0 {
			return itemdata.ErrInvalidItemState.New("(delete) parent of property %s %q not found, probably deleted by another session", property.Path, property.ID)
		}
	}

	conn.log.Debug("property deleted", zap.Stringer("path", property.Path), zap.String("id", property.ID))
	return nil
}

// DeleteLockProperties removes every lock property of the workspace.
func (conn *Connection) DeleteLockProperties(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkWritable(); err != nil {
		return err
	}

	result, err := conn.collection.DeleteMany(conn.bind(ctx), bson.D{
		{Key: fieldIsNode, Value: false},
		{Key: fieldName, Value: bson.D{{Key: "$in", Value: bson.A{
			itemdata.LockIsDeep.String(),
			itemdata.LockOwner.String(),
		}}}},
	})
	if err != nil {
		return Error.Wrap(err)
	}
	conn.log.Info("lock properties deleted", zap.Int64("count", result.DeletedCount))
	return nil
}

func (conn *Connection) updateOne(ctx context.Context, id string, set bson.D, format string, args ...interface{}) error {
	result, err := conn.collection.UpdateOne(conn.bind(ctx), bson.D{{Key: fieldID, Value: id}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return Error.Wrap(err)
	}
	if result.MatchedCount == 0 {
		return itemdata.ErrInvalidItemState.New(format, args...)
	}
	return nil
}

// setMirror copies the values of a main property onto its node.
func (conn *Connection) setMirror(ctx context.Context, property *itemdata.PropertyData, state string) error {
	field, ok := mainProperties[property.Name]
	if !ok {
		return nil
	}
	return conn.updateOne(ctx, property.ParentID, bson.D{{Key: field, Value: mirror(property)}},
		"(%s) parent of property %s %q not found, probably deleted by another session", state, property.Path, property.ID)
}

// channel returns the channel staging the changes of a value storage.
func (conn *Connection) channel(ctx context.Context, storageID string) (*valuestorage.Channel, error) {
	if channel, ok := conn.channels[storageID]; ok {
		return channel, nil
	}
	channel, err := conn.container.provider.Channel(ctx, storageID)
	if err != nil {
		return nil, err
	}
	conn.channels[storageID] = channel
	conn.touched = append(conn.touched, channel)
	return channel, nil
}

// addValues encodes the values of a property and stages the external ones.
func (conn *Connection) addValues(ctx context.Context, property *itemdata.PropertyData) ([]valueEntry, error) {
	entries := make([]valueEntry, 0, len(property.Values))
	for i, value := range property.Values {
		if !value.IsExternal() {
			if value.Value == nil {
				return nil, Error.New("value %d of property %s has no data", i, property.Path)
			}
			entries = append(entries, inlineEntry(i, value.Value))
			continue
		}

		channel, err := conn.channel(ctx, value.StorageID)
		if err != nil {
			return nil, err
		}

		content, length := value.Content, value.Size
		if content == nil {
			if value.Value == nil {
				return nil, Error.New("value %d of property %s has no data", i, property.Path)
			}
			data := itemdata.EncodeValue(value.Value)
			content, length = bytes.NewReader(data), int64(len(data))
		}
		if err := channel.Write(property.ID, i, content, length); err != nil {
			return nil, err
		}
		entries = append(entries, externalEntry(i, value.StorageID, length))
		conn.sizeTasks = append(conn.sizeTasks, conn.sizeTask(channel, property.ID, i))
	}
	return entries, nil
}

// sizeTask returns a task recording the stored size of an external value
// once it was written.
func (conn *Connection) sizeTask(channel *valuestorage.Channel, propertyID string, orderNumber int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		size, err := channel.Size(ctx, propertyID, orderNumber)
		if err != nil {
			return err
		}
		if size < 0 {
			return itemdata.ErrValueNotFound.New("value %d of property %q", orderNumber, propertyID)
		}
		field := fieldValues + "." + strconv.Itoa(orderNumber) + "." + fieldSize
		return conn.updateOne(ctx, propertyID, bson.D{{Key: field, Value: size}},
			"could not update the size of value %d of property %q", orderNumber, propertyID)
	}
}

// deleteValues stages the removal of the external values of a property.
func (conn *Connection) deleteValues(ctx context.Context, propertyID string) error {
	doc, err := conn.findOne(ctx, bson.D{{Key: fieldID, Value: propertyID}},
		options.FindOne().SetProjection(bson.D{{Key: fieldValues, Value: 1}}))
	if err != nil || doc == nil {
		return err
	}

	seen := map[string]bool{}
	for _, entry := range doc.Values {
		if entry.Storage == "" || seen[entry.Storage] {
			continue
		}
		seen[entry.Storage] = true

		channel, err := conn.channel(ctx, entry.Storage)
		if err != nil {
			return err
		}
		channel.Delete(propertyID)
	}
	return nil
}

// Prepare prepares the staged value changes and records the sizes of the
// written values.
func (conn *Connection) Prepare(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return err
	}

	for _, channel := range conn.touched {
		if err := channel.Prepare(ctx, conn.tx); err != nil {
			return err
		}
	}

	for _, task := range conn.sizeTasks {
		if err := task(conn.bind(ctx)); err != nil {
			conn.log.Warn("unable to record value size", zap.Error(err))
		}
	}
	conn.sizeTasks = nil
	return nil
}

// Commit commits the staged value changes and the transaction, then closes
// the connection.
func (conn *Connection) Commit(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, conn.Close(ctx)) }()

	if conn.readOnly {
		return nil
	}

	var group errs.Group
	for _, channel := range conn.touched {
		group.Add(channel.TwoPhaseCommit(ctx, conn.tx))
	}
	conn.touched = nil

	if conn.session != nil {
		group.Add(Error.Wrap(conn.session.CommitTransaction(ctx)))
	}
	return group.Err()
}

// Rollback aborts the transaction, reverts the staged value changes, last
// storage first, and closes the connection. The first failure is returned.
func (conn *Connection) Rollback(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, conn.Close(ctx)) }()

	if conn.readOnly {
		return nil
	}

	var first error
	if conn.session != nil {
		first = Error.Wrap(conn.session.AbortTransaction(ctx))
	}

	// the native transaction is gone, restore blobs without it
	for i := len(conn.touched) - 1; i >= 0; i-- {
		if err := conn.touched[i].Rollback(ctx, valuestorage.NoTx); err != nil {
			if first == nil {
				first = err
			} else {
				conn.log.Error("could not rollback value change", zap.Error(err))
			}
		}
	}
	conn.touched = nil
	conn.sizeTasks = nil
	return first
}

// Close ends the session. Changes that were not committed are dropped.
func (conn *Connection) Close(ctx context.Context) error {
	if conn.closed {
		return nil
	}
	conn.closed = true

	var group errs.Group
	for _, channel := range conn.touched {
		group.Add(channel.Close())
	}
	conn.touched = nil
	conn.channels = nil
	conn.sizeTasks = nil

	if conn.session != nil {
		conn.session.EndSession(ctx)
		conn.session = nil
	}
	return group.Err()
}
