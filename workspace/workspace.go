// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package workspace defines the storage of a repository workspace: a
// container that owns the backend client and the connections it hands out
// to sessions.
package workspace

import (
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/jcrstore/itemdata"
)

var (
	// Error is the default workspace error class.
	Error = errs.Class("workspace")

	// ErrReadOnly is returned by mutations on a read-only connection.
	ErrReadOnly = errs.Class("read-only connection")

	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errs.Class("connection closed")

	mon = monkit.Package()
)

// Container is the storage of one workspace.
type Container interface {
	// Name returns the workspace name.
	Name() string
	// Open opens a connection. Read-write connections start a transaction
	// when the backend supports it.
	Open(ctx context.Context, readOnly bool) (Connection, error)
	// Close releases the backend client.
	Close() error
}

// Connection reads and writes the items of a workspace on behalf of one
// session. A connection must not be used concurrently.
//
// Lookups of a single item return nil without an error when the item does
// not exist. Mutations that do not find the item they change fail with
// itemdata.ErrInvalidItemState.
type Connection interface {
	Reader
	Writer

	// Prepare applies the staged value changes in a reversible form.
	Prepare(ctx context.Context) error
	// Commit makes the changes permanent and closes the connection.
	Commit(ctx context.Context) error
	// Rollback reverts the changes and closes the connection.
	Rollback(ctx context.Context) error
	// Close releases the connection without committing.
	Close(ctx context.Context) error
	// IsOpened returns whether the connection can still be used.
	IsOpened() bool
}

// Reader contains the read operations of a connection.
type Reader interface {
	GetItemData(ctx context.Context, parent *itemdata.NodeData, name itemdata.QPathEntry, typ itemdata.ItemType) (itemdata.Item, error)
	GetItemDataByID(ctx context.Context, id string) (itemdata.Item, error)
	HasItemData(ctx context.Context, parent *itemdata.NodeData, name itemdata.QPathEntry, typ itemdata.ItemType) (bool, error)

	GetChildNodes(ctx context.Context, parent *itemdata.NodeData) ([]*itemdata.NodeData, error)
	GetChildNodesByPatterns(ctx context.Context, parent *itemdata.NodeData, patterns []itemdata.QPathEntryFilter) ([]*itemdata.NodeData, error)
	// GetChildNodesByPage returns up to pageSize children with an order
	// number of at least fromOrderNumber, skipping the first offset. more is
	// true when the page is full.
	GetChildNodesByPage(ctx context.Context, parent *itemdata.NodeData, fromOrderNumber, offset, pageSize int) (nodes []*itemdata.NodeData, more bool, err error)
	GetChildNodesCount(ctx context.Context, parent *itemdata.NodeData) (int64, error)
	// GetLastOrderNumber returns -1 when the node has no children.
	GetLastOrderNumber(ctx context.Context, parent *itemdata.NodeData) (int, error)

	GetChildProperties(ctx context.Context, parent *itemdata.NodeData) ([]*itemdata.PropertyData, error)
	GetChildPropertiesByPatterns(ctx context.Context, parent *itemdata.NodeData, patterns []itemdata.QPathEntryFilter) ([]*itemdata.PropertyData, error)
	// ListChildProperties returns the properties without their values.
	ListChildProperties(ctx context.Context, parent *itemdata.NodeData) ([]*itemdata.PropertyData, error)
	// GetReferencesData returns the reference properties pointing at nodeID.
	GetReferencesData(ctx context.Context, nodeID string) ([]*itemdata.PropertyData, error)

	GetACLHolders(ctx context.Context) ([]itemdata.ACLHolder, error)
	GetNodesCount(ctx context.Context) (int64, error)
	GetWorkspaceDataSize(ctx context.Context) (int64, error)
	GetNodeDataSize(ctx context.Context, nodeID string) (int64, error)
}

// Writer contains the mutations of a connection.
type Writer interface {
	AddNode(ctx context.Context, node *itemdata.NodeData) error
	AddProperty(ctx context.Context, property *itemdata.PropertyData) error
	// UpdateNode changes the version, the index and the order number.
	UpdateNode(ctx context.Context, node *itemdata.NodeData) error
	// UpdateProperty replaces every value of the property.
	UpdateProperty(ctx context.Context, property *itemdata.PropertyData) error
	// Rename moves a node, changing its parent, name and index.
	Rename(ctx context.Context, node *itemdata.NodeData) error
	DeleteNode(ctx context.Context, node *itemdata.NodeData) error
	DeleteProperty(ctx context.Context, property *itemdata.PropertyData) error
	// DeleteLockProperties removes every lock property of the workspace.
	DeleteLockProperties(ctx context.Context) error
}

// Transact opens a read-write connection and runs fn on it. The changes are
// committed when fn succeeds and rolled back otherwise.
func Transact(ctx context.Context, container Container, fn func(ctx context.Context, conn Connection) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	conn, err := container.Open(ctx, false)
	if err != nil {
		return err
	}

	if err := fn(ctx, conn); err != nil {
		return errs.Combine(err, conn.Rollback(ctx))
	}
	if err := conn.Prepare(ctx); err != nil {
		return errs.Combine(err, conn.Rollback(ctx))
	}
	return conn.Commit(ctx)
}

// View opens a read-only connection and runs fn on it.
func View(ctx context.Context, container Container, fn func(ctx context.Context, conn Reader) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	conn, err := container.Open(ctx, true)
	if err != nil {
		return err
	}
	return errs.Combine(fn(ctx, conn), conn.Close(ctx))
}
