// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package mongostore

import (
	"context"
	"errors"
	"io"

	"github.com/zeebo/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"storj.io/jcrstore/itemdata"
	"storj.io/jcrstore/valuestorage"
	"storj.io/jcrstore/workspace"
)

// Connection reads and writes the workspace collection for one session.
//
// Writes of a read-write connection run in a transaction unless the
// container uses auto commit. External values are staged on one channel per
// value storage and driven through the same prepare, commit and rollback.
type Connection struct {
	log        *zap.Logger
	container  *Container
	collection *mongo.Collection
	readOnly   bool
	closed     bool

	session mongo.Session
	tx      valuestorage.Tx

	channels  map[string]*valuestorage.Channel
	touched   []*valuestorage.Channel
	sizeTasks []func(ctx context.Context) error
}

// IsOpened returns whether the connection can still be used.
func (conn *Connection) IsOpened() bool { return !conn.closed }

// bind returns the context collection operations must use.
func (conn *Connection) bind(ctx context.Context) context.Context {
	if conn.session == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, conn.session)
}

func (conn *Connection) checkOpened() error {
	if conn.closed {
		return workspace.ErrClosed.New("")
	}
	return nil
}

func (conn *Connection) checkWritable() error {
	if err := conn.checkOpened(); err != nil {
		return err
	}
	if conn.readOnly {
		return workspace.ErrReadOnly.New("")
	}
	return nil
}

func (conn *Connection) findOptions() *options.FindOptions {
	opts := options.Find()
	if conn.container.config.BatchSize > 0 {
		opts.SetBatchSize(int32(conn.container.config.BatchSize))
	}
	return opts
}

func (conn *Connection) findOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*document, error) {
	var doc document
	err := conn.collection.FindOne(conn.bind(ctx), filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &doc, nil
}

func (conn *Connection) find(ctx context.Context, filter interface{}, opts *options.FindOptions) (_ []document, err error) {
	cursor, err := conn.collection.Find(conn.bind(ctx), filter, opts)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(cursor.Close(ctx))) }()

	var docs []document
	if err := cursor.All(conn.bind(ctx), &docs); err != nil {
		return nil, Error.Wrap(err)
	}
	return docs, nil
}

func itemFilter(parent *itemdata.NodeData, name itemdata.QPathEntry, typ itemdata.ItemType) (bson.D, *options.FindOneOptions) {
	parentID := itemdata.RootParentID
	if parent != nil {
		parentID = parent.ID
	}
	filter := bson.D{
		{Key: fieldParentID, Value: parentID},
		{Key: fieldName, Value: name.QName.String()},
		{Key: fieldIndex, Value: name.Index},
	}
	opts := options.FindOne()
	switch typ {
	case itemdata.ItemNode:
		filter = append(filter, bson.E{Key: fieldIsNode, Value: true})
	case itemdata.ItemProperty:
		filter = append(filter, bson.E{Key: fieldIsNode, Value: false})
	default:
		opts.SetSort(bson.D{{Key: fieldIsNode, Value: -1}})
	}
	return filter, opts
}

// GetItemData returns the child of parent called name, or nil. A nil parent
// looks up the root.
func (conn *Connection) GetItemData(ctx context.Context, parent *itemdata.NodeData, name itemdata.QPathEntry, typ itemdata.ItemType) (_ itemdata.Item, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return nil, err
	}

	filter, opts := itemFilter(parent, name, typ)
	doc, err := conn.findOne(ctx, filter, opts)
	if err != nil || doc == nil {
		return nil, err
	}
	if parent == nil {
		return conn.item(ctx, doc, nil, nil)
	}
	return conn.item(ctx, doc, parent.Path, &parent.ACL)
}

// HasItemData returns whether parent has a child called name.
func (conn *Connection) HasItemData(ctx context.Context, parent *itemdata.NodeData, name itemdata.QPathEntry, typ itemdata.ItemType) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return false, err
	}

	filter, opts := itemFilter(parent, name, typ)
	doc, err := conn.findOne(ctx, filter, opts.SetProjection(bson.D{{Key: fieldID, Value: 1}}))
	return doc != nil, err
}

// GetItemDataByID returns the item with id, or nil.
func (conn *Connection) GetItemDataByID(ctx context.Context, id string) (_ itemdata.Item, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return nil, err
	}

	doc, err := conn.findOne(ctx, bson.D{{Key: fieldID, Value: id}})
	if err != nil || doc == nil {
		return nil, err
	}
	return conn.item(ctx, doc, nil, nil)
}

// GetChildNodes returns the child nodes of parent in order.
func (conn *Connection) GetChildNodes(ctx context.Context, parent *itemdata.NodeData) (_ []*itemdata.NodeData, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return nil, err
	}

	docs, err := conn.find(ctx, childrenFilter(parent, true),
		conn.findOptions().SetSort(bson.D{{Key: fieldOrderNumber, Value: 1}}))
	if err != nil {
		return nil, err
	}
	return conn.nodes(ctx, docs, parent)
}

// GetChildNodesByPatterns returns the child nodes of parent matching any
// of patterns.
func (conn *Connection) GetChildNodesByPatterns(ctx context.Context, parent *itemdata.NodeData, patterns []itemdata.QPathEntryFilter) (_ []*itemdata.NodeData, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	filter := append(childrenFilter(parent, true), bson.E{Key: "$or", Value: patternsFilter(patterns, true)})
	docs, err := conn.find(ctx, filter,
		conn.findOptions().SetSort(bson.D{{Key: fieldOrderNumber, Value: 1}}))
	if err != nil {
		return nil, err
	}
	return conn.nodes(ctx, docs, parent)
}

// GetChildNodesByPage returns up to pageSize child nodes of parent, taken in
// order number order from the children numbered fromOrderNumber or later and
// skipping the first offset of them. more reports whether the page is full.
func (conn *Connection) GetChildNodesByPage(ctx context.Context, parent *itemdata.NodeData, fromOrderNumber, offset, pageSize int) (_ []*itemdata.NodeData, more bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return nil, false, err
	}

	filter := append(childrenFilter(parent, true),
		bson.E{Key: fieldOrderNumber, Value: bson.D{{Key: "$gte", Value: fromOrderNumber}}})
	docs, err := conn.find(ctx, filter, conn.findOptions().
		SetSort(bson.D{{Key: fieldOrderNumber, Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(pageSize)))
	if err != nil {
		return nil, false, err
	}
	nodes, err := conn.nodes(ctx, docs, parent)
	return nodes, len(nodes) >= pageSize, err
}

// GetChildNodesCount returns the number of child nodes of parent.
func (conn *Connection) GetChildNodesCount(ctx context.Context, parent *itemdata.NodeData) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return 0, err
	}

	count, err := conn.collection.CountDocuments(conn.bind(ctx), childrenFilter(parent, true))
	return count, Error.Wrap(err)
}

// GetLastOrderNumber returns the highest order number of the child nodes of
// parent, or -1.
func (conn *Connection) GetLastOrderNumber(ctx context.Context, parent *itemdata.NodeData) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return 0, err
	}

	doc, err := conn.findOne(ctx, childrenFilter(parent, true), options.FindOne().
		SetSort(bson.D{{Key: fieldOrderNumber, Value: -1}}).
		SetProjection(bson.D{{Key: fieldOrderNumber, Value: 1}}))
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return -1, nil
	}
	return doc.OrderNumber, nil
}

// GetChildProperties returns the properties of parent ordered by name.
func (conn *Connection) GetChildProperties(ctx context.Context, parent *itemdata.NodeData) (_ []*itemdata.PropertyData, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return nil, err
	}

	docs, err := conn.find(ctx, childrenFilter(parent, false),
		conn.findOptions().SetSort(bson.D{{Key: fieldName, Value: 1}}))
	if err != nil {
		return nil, err
	}
	return conn.properties(ctx, docs, parent.Path)
}

// GetChildPropertiesByPatterns returns the properties of parent matching
// any of patterns.
func (conn *Connection) GetChildPropertiesByPatterns(ctx context.Context, parent *itemdata.NodeData, patterns []itemdata.QPathEntryFilter) (_ []*itemdata.PropertyData, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	filter := append(childrenFilter(parent, false), bson.E{Key: "$or", Value: patternsFilter(patterns, false)})
	docs, err := conn.find(ctx, filter,
		conn.findOptions().SetSort(bson.D{{Key: fieldName, Value: 1}}))
	if err != nil {
		return nil, err
	}
	return conn.properties(ctx, docs, parent.Path)
}

// ListChildProperties returns the properties of parent without values.
func (conn *Connection) ListChildProperties(ctx context.Context, parent *itemdata.NodeData) (_ []*itemdata.PropertyData, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return nil, err
	}

	docs, err := conn.find(ctx, childrenFilter(parent, false), conn.findOptions().
		SetSort(bson.D{{Key: fieldName, Value: 1}}).
		SetProjection(bson.D{{Key: fieldValues, Value: 0}}))
	if err != nil {
		return nil, err
	}
	return conn.properties(ctx, docs, parent.Path)
}

// GetReferencesData returns the reference properties with a value equal to
// nodeID.
func (conn *Connection) GetReferencesData(ctx context.Context, nodeID string) (_ []*itemdata.PropertyData, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return nil, err
	}

	docs, err := conn.find(ctx, bson.D{{Key: fieldValues + "." + fieldRef, Value: nodeID}}, conn.findOptions())
	if err != nil {
		return nil, err
	}
	return conn.properties(ctx, docs, nil)
}

// GetACLHolders returns the nodes that carry their own owner or
// permissions.
func (conn *Connection) GetACLHolders(ctx context.Context) (_ []itemdata.ACLHolder, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return nil, err
	}

	filter := bson.D{
		{Key: fieldIsNode, Value: true},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: fieldOwner, Value: bson.D{{Key: "$exists", Value: true}}}},
			bson.D{{Key: fieldPermissions, Value: bson.D{{Key: "$exists", Value: true}}}},
		}},
	}
	docs, err := conn.find(ctx, filter, conn.findOptions().SetProjection(bson.D{
		{Key: fieldID, Value: 1},
		{Key: fieldOwner, Value: 1},
		{Key: fieldPermissions, Value: 1},
	}))
	if err != nil {
		return nil, err
	}

	holders := make([]itemdata.ACLHolder, 0, len(docs))
	for _, doc := range docs {
		holders = append(holders, itemdata.ACLHolder{
			ID:          doc.ID,
			Owner:       doc.Owner != nil,
			Permissions: doc.Permissions != nil,
		})
	}
	return holders, nil
}

// GetNodesCount returns the number of nodes.
func (conn *Connection) GetNodesCount(ctx context.Context) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return 0, err
	}

	count, err := conn.collection.CountDocuments(conn.bind(ctx), bson.D{{Key: fieldIsNode, Value: true}})
	return count, Error.Wrap(err)
}

// GetWorkspaceDataSize returns the size of every value of the workspace.
func (conn *Connection) GetWorkspaceDataSize(ctx context.Context) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return 0, err
	}
	return conn.valuesSize(ctx, bson.D{{Key: fieldIsNode, Value: false}})
}

// GetNodeDataSize returns the size of the values of the properties of a
// node.
func (conn *Connection) GetNodeDataSize(ctx context.Context, nodeID string) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := conn.checkOpened(); err != nil {
		return 0, err
	}
	return conn.valuesSize(ctx, bson.D{
		{Key: fieldParentID, Value: nodeID},
		{Key: fieldIsNode, Value: false},
	})
}

func (conn *Connection) valuesSize(ctx context.Context, match bson.D) (_ int64, err error) {
	cursor, err := conn.collection.Aggregate(conn.bind(ctx), mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$unwind", Value: "$" + fieldValues}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: fieldSize, Value: bson.D{{Key: "$sum", Value: "$" + fieldValues + "." + fieldSize}}},
		}}},
	})
	if err != nil {
		return 0, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(cursor.Close(ctx))) }()

	var results []struct {
		Size int64 `bson:"size"`
	}
	if err := cursor.All(conn.bind(ctx), &results); err != nil {
		return 0, Error.Wrap(err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Size, nil
}

func childrenFilter(parent *itemdata.NodeData, nodes bool) bson.D {
	return bson.D{
		{Key: fieldParentID, Value: parent.ID},
		{Key: fieldIsNode, Value: nodes},
	}
}

func (conn *Connection) nodes(ctx context.Context, docs []document, parent *itemdata.NodeData) ([]*itemdata.NodeData, error) {
	nodes := make([]*itemdata.NodeData, 0, len(docs))
	for i := range docs {
		node, err := conn.node(ctx, &docs[i], parent.Path, &parent.ACL)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (conn *Connection) properties(ctx context.Context, docs []document, parentPath itemdata.QPath) ([]*itemdata.PropertyData, error) {
	properties := make([]*itemdata.PropertyData, 0, len(docs))
	for i := range docs {
		property, err := conn.property(ctx, &docs[i], parentPath)
		if err != nil {
			return nil, err
		}
		properties = append(properties, property)
	}
	return properties, nil
}

// item builds a node or a property. A nil parentPath is resolved by walking
// up the parents.
func (conn *Connection) item(ctx context.Context, doc *document, parentPath itemdata.QPath, parentACL *itemdata.AccessControlList) (itemdata.Item, error) {
	if doc.IsNode {
		return conn.node(ctx, doc, parentPath, parentACL)
	}
	return conn.property(ctx, doc, parentPath)
}

func (conn *Connection) node(ctx context.Context, doc *document, parentPath itemdata.QPath, parentACL *itemdata.AccessControlList) (*itemdata.NodeData, error) {
	name, err := itemdata.ParseQName(doc.Name)
	if err != nil {
		return nil, err
	}

	node := &itemdata.NodeData{
		ItemData: itemdata.ItemData{
			ID:       doc.ID,
			ParentID: doc.ParentID,
			Name:     name,
			Index:    doc.Index,
			Version:  doc.Version,
		},
		OrderNumber: doc.OrderNumber,
	}

	switch {
	case parentPath != nil:
		node.Path = parentPath.Child(node.Entry())
	case doc.ParentID == itemdata.RootParentID:
		node.Path = itemdata.RootPath
		node.ParentID = ""
	default:
		path, err := conn.traversePath(ctx, doc.ParentID)
		if err != nil {
			return nil, err
		}
		node.Path = path.Child(node.Entry())
	}

	if len(doc.PrimaryType) == 0 {
		return nil, Error.New("primary type of node %q %s not found", doc.ID, node.Path)
	}
	if node.PrimaryType, err = itemdata.ParseQName(doc.PrimaryType[0]); err != nil {
		return nil, err
	}
	for _, mixin := range doc.MixinTypes {
		name, err := itemdata.ParseQName(mixin)
		if err != nil {
			return nil, err
		}
		node.MixinTypes = append(node.MixinTypes, name)
	}

	node.ACL, err = readACL(doc, node, parentACL)
	if err != nil {
		return nil, err
	}
	return node, nil
}

// readACL combines the owner and the permissions of the node with those it
// inherits from its parent.
func readACL(doc *document, node *itemdata.NodeData, parentACL *itemdata.AccessControlList) (acl itemdata.AccessControlList, err error) {
	owneable := node.HasMixin(itemdata.Owneable)
	privilegeable := node.HasMixin(itemdata.Privilegeable)

	if owneable {
		if len(doc.Owner) == 0 {
			return acl, Error.New("owner of node %q not found", doc.ID)
		}
		acl.Owner = doc.Owner[0]
	} else if parentACL != nil {
		acl.Owner = parentACL.Owner
	}

	if privilegeable {
		if doc.Permissions == nil {
			return acl, Error.New("permissions of node %q not found", doc.ID)
		}
		for _, text := range doc.Permissions {
			entry, err := itemdata.ParseAccessControlEntry(text)
			if err != nil {
				return acl, err
			}
			acl.Entries = append(acl.Entries, entry)
		}
	} else if parentACL != nil && parentACL.HasPermissions() {
		acl.Entries = append([]itemdata.AccessControlEntry(nil), parentACL.Entries...)
	}
	return acl, nil
}

// traversePath builds the path of the node with id from its ancestors.
func (conn *Connection) traversePath(ctx context.Context, id string) (itemdata.QPath, error) {
	var reversed []itemdata.QPathEntry
	projection := options.FindOne().SetProjection(bson.D{
		{Key: fieldParentID, Value: 1},
		{Key: fieldName, Value: 1},
		{Key: fieldIndex, Value: 1},
	})
	for id != itemdata.RootParentID {
		doc, err := conn.findOne(ctx, bson.D{{Key: fieldID, Value: id}}, projection)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, itemdata.ErrInvalidItemState.New("parent %q not found", id)
		}
		name, err := itemdata.ParseQName(doc.Name)
		if err != nil {
			return nil, err
		}
		reversed = append(reversed, itemdata.QPathEntry{QName: name, Index: doc.Index, ID: id})
		if doc.ParentID == id {
			return nil, itemdata.ErrInvalidItemState.New("item %q is its own parent", id)
		}
		id = doc.ParentID
	}

	path := make(itemdata.QPath, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path, nil
}

func (conn *Connection) property(ctx context.Context, doc *document, parentPath itemdata.QPath) (*itemdata.PropertyData, error) {
	name, err := itemdata.ParseQName(doc.Name)
	if err != nil {
		return nil, err
	}
	if parentPath == nil {
		if parentPath, err = conn.traversePath(ctx, doc.ParentID); err != nil {
			return nil, err
		}
	}

	property := &itemdata.PropertyData{
		ItemData: itemdata.ItemData{
			ID:       doc.ID,
			ParentID: doc.ParentID,
			Name:     name,
			Index:    1,
			Version:  doc.Version,
			Path:     parentPath.Child(itemdata.NewEntry(name, 1)),
		},
		Type:        doc.Type,
		MultiValued: doc.MultiValued,
	}

	for _, entry := range doc.Values {
		value, err := conn.readValue(ctx, property, entry)
		if err != nil {
			return nil, err
		}
		property.Values = append(property.Values, value)
	}
	return property, nil
}

// readValue decodes an inline value or reads an external one from its
// storage. External binary values that do not fit in memory keep their
// spooled payload as Content.
func (conn *Connection) readValue(ctx context.Context, property *itemdata.PropertyData, entry valueEntry) (_ itemdata.ValueData, err error) {
	if entry.Storage == "" {
		value, err := entry.value(property.Type)
		if err != nil {
			return itemdata.ValueData{}, err
		}
		return itemdata.ValueData{OrderNumber: entry.OrderNumber, Value: value, Size: entry.Size}, nil
	}

	channel, err := conn.container.provider.Channel(ctx, entry.Storage)
	if err != nil {
		return itemdata.ValueData{}, err
	}
	defer func() { err = errs.Combine(err, channel.Close()) }()

	payload, err := channel.Read(ctx, property.ID, entry.OrderNumber)
	if err != nil {
		return itemdata.ValueData{}, err
	}

	value := itemdata.ValueData{OrderNumber: entry.OrderNumber, StorageID: entry.Storage, Size: payload.Len()}
	binary := property.Type == itemdata.TypeBinary || property.Type == itemdata.TypeUndefined
	if binary && payload.Bytes() == nil {
		value.Content = payload
		return value, nil
	}
	defer func() { err = errs.Combine(err, payload.Close()) }()

	data := payload.Bytes()
	if data == nil {
		if data, err = io.ReadAll(payload); err != nil {
			return itemdata.ValueData{}, valuestorage.ErrIO.Wrap(err)
		}
	}
	if value.Value, err = itemdata.DecodeValue(property.Type, data); err != nil {
		return itemdata.ValueData{}, err
	}
	return value, nil
}
