// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package mongostore_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/memory"
	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/jcrstore/blobstore"
	"storj.io/jcrstore/blobstore/gridfs"
	"storj.io/jcrstore/itemdata"
	"storj.io/jcrstore/mongostore"
	"storj.io/jcrstore/orphans"
	"storj.io/jcrstore/private/kvstore/teststore"
	"storj.io/jcrstore/private/mongotest"
	"storj.io/jcrstore/private/testblobs"
	"storj.io/jcrstore/valuestorage"
	"storj.io/jcrstore/workspace"
)

const memoryStorage = "mem"

var unstructured = itemdata.QName{Namespace: itemdata.JCRNamespace, Name: "unstructured"}

// fixture is a workspace container backed by a memory value storage.
type fixture struct {
	container *mongostore.Container
	blobs     *testblobs.Memory
	reclaimer *orphans.Reclaimer
}

func newFixture(t *testing.T, ctx *testcontext.Context, autoCommit bool) *fixture {
	uri := mongotest.URI(t)
	log := zaptest.NewLogger(t)

	reclaimer, err := orphans.New(log.Named("orphans"), teststore.New(), orphans.Config{MaxAttempts: 3})
	require.NoError(t, err)

	blobs := testblobs.NewMemory()
	storage := valuestorage.New(log.Named("values"), memoryStorage, blobs,
		blobstore.ShardedLayout{Prefix: "repository/ws", Depth: blobstore.DefaultShardDepth},
		reclaimer,
		blobstore.SpoolConfig{TempDir: ctx.Dir("spool"), MaxBufferSize: 4 * memory.KiB})

	provider, err := valuestorage.NewProvider(storage)
	require.NoError(t, err)

	container, err := mongostore.Open(ctx, log, mongostore.Config{
		URI:        uri,
		Workspace:  "ws" + hex.EncodeToString(testrand.BytesInt(8)),
		AutoCommit: autoCommit,
	}, provider)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Collection().Drop(context.Background()))
		require.NoError(t, container.Close())
		require.NoError(t, provider.Close())
		require.NoError(t, reclaimer.Close())
	})

	return &fixture{container: container, blobs: blobs, reclaimer: reclaimer}
}

func newID() string {
	return hex.EncodeToString(testrand.BytesInt(16))
}

func qname(name string) itemdata.QName {
	return itemdata.QName{Name: name}
}

func rootNode() *itemdata.NodeData {
	return &itemdata.NodeData{
		ItemData: itemdata.ItemData{
			ID:      itemdata.RootID,
			Name:    itemdata.RootName,
			Index:   1,
			Version: 1,
			Path:    itemdata.RootPath,
		},
		PrimaryType: unstructured,
	}
}

func childNode(parent *itemdata.NodeData, name string, index, order int) *itemdata.NodeData {
	node := &itemdata.NodeData{
		ItemData: itemdata.ItemData{
			ID:       newID(),
			ParentID: parent.ID,
			Name:     qname(name),
			Index:    index,
			Version:  1,
		},
		OrderNumber: order,
		PrimaryType: unstructured,
	}
	node.Path = parent.Path.Child(node.Entry())
	return node
}

func newProperty(parent *itemdata.NodeData, name itemdata.QName, typ itemdata.Type, values ...itemdata.ValueData) *itemdata.PropertyData {
	property := &itemdata.PropertyData{
		ItemData: itemdata.ItemData{
			ID:       newID(),
			ParentID: parent.ID,
			Name:     name,
			Index:    1,
			Version:  1,
		},
		Type:        typ,
		MultiValued: len(values) > 1,
		Values:      values,
	}
	property.Path = parent.Path.Child(property.Entry())
	return property
}

// addNode adds node together with its primary type property.
func addNode(ctx context.Context, conn workspace.Connection, node *itemdata.NodeData) error {
	if err := conn.AddNode(ctx, node); err != nil {
		return err
	}
	return conn.AddProperty(ctx, newProperty(node, itemdata.PrimaryType, itemdata.TypeName,
		itemdata.Inline(0, itemdata.Name(node.PrimaryType))))
}

func transact(t *testing.T, ctx *testcontext.Context, f *fixture, fn func(ctx context.Context, conn workspace.Connection) error) {
	require.NoError(t, workspace.Transact(ctx, f.container, fn))
}

// tree adds the root and the given children of the root.
func tree(t *testing.T, ctx *testcontext.Context, f *fixture, children ...*itemdata.NodeData) *itemdata.NodeData {
	root := rootNode()
	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		if err := addNode(ctx, conn, root); err != nil {
			return err
		}
		for _, child := range children {
			if err := addNode(ctx, conn, child); err != nil {
				return err
			}
		}
		return nil
	})
	return root
}

func getProperty(t *testing.T, ctx *testcontext.Context, f *fixture, parent *itemdata.NodeData, name itemdata.QName) *itemdata.PropertyData {
	var property *itemdata.PropertyData
	require.NoError(t, workspace.View(ctx, f.container, func(ctx context.Context, conn workspace.Reader) error {
		item, err := conn.GetItemData(ctx, parent, itemdata.NewEntry(name, 1), itemdata.ItemProperty)
		if err != nil || item == nil {
			return err
		}
		property = item.(*itemdata.PropertyData)
		return nil
	}))
	return property
}

func TestOpenCreatesCollection(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	require.Equal(t, f.container.Name(), f.container.Collection().Name()[len(mongostore.CollectionPrefix)+1:])

	specs, err := f.container.Collection().Indexes().ListSpecifications(ctx)
	require.NoError(t, err)
	require.Len(t, specs, 5) // _id and four workspace indexes

	count, err := f.container.NodesCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	// opening again keeps the existing collection
	again, err := mongostore.New(ctx, zaptest.NewLogger(t), f.container.Client(), mongostore.Config{
		URI:       mongotest.URI(t),
		Workspace: f.container.Name(),
	}, f.container.Provider())
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestAddAndRead(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)

	root := rootNode()
	a := childNode(root, "a", 1, 0)
	var props []*itemdata.PropertyData
	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		for _, node := range []*itemdata.NodeData{root, a} {
			if err := addNode(ctx, conn, node); err != nil {
				return err
			}
		}
		props = []*itemdata.PropertyData{
			newProperty(a, qname("text"), itemdata.TypeString,
				itemdata.Inline(0, itemdata.String("one")),
				itemdata.Inline(1, itemdata.String("two"))),
			newProperty(a, qname("count"), itemdata.TypeLong, itemdata.Inline(0, itemdata.Long(42))),
			newProperty(a, qname("flag"), itemdata.TypeBoolean, itemdata.Inline(0, itemdata.Boolean(true))),
		}
		for _, property := range props {
			if err := conn.AddProperty(ctx, property); err != nil {
				return err
			}
		}
		return nil
	})

	require.NoError(t, workspace.View(ctx, f.container, func(ctx context.Context, conn workspace.Reader) error {
		item, err := conn.GetItemData(ctx, nil, itemdata.RootPath.Name(), itemdata.ItemNode)
		require.NoError(t, err)
		gotRoot := item.(*itemdata.NodeData)
		require.Equal(t, itemdata.RootID, gotRoot.ID)
		require.Empty(t, gotRoot.ParentID)
		require.True(t, gotRoot.Path.Equal(itemdata.RootPath))
		require.Equal(t, unstructured, gotRoot.PrimaryType)

		item, err = conn.GetItemData(ctx, gotRoot, itemdata.NewEntry(qname("a"), 1), itemdata.ItemUnknown)
		require.NoError(t, err)
		require.True(t, item.IsNode())
		require.Equal(t, a.ID, item.Item().ID)
		require.Equal(t, a.Path.String(), item.Item().Path.String())

		// lookup by id walks up the parents to build the path
		item, err = conn.GetItemDataByID(ctx, props[0].ID)
		require.NoError(t, err)
		text := item.(*itemdata.PropertyData)
		require.Equal(t, props[0].Path.String(), text.Path.String())
		require.True(t, text.MultiValued)
		require.Len(t, text.Values, 2)
		require.Equal(t, itemdata.String("one"), text.Values[0].Value)
		require.Equal(t, itemdata.String("two"), text.Values[1].Value)

		item, err = conn.GetItemDataByID(ctx, newID())
		require.NoError(t, err)
		require.Nil(t, item)

		has, err := conn.HasItemData(ctx, gotRoot, itemdata.NewEntry(qname("a"), 1), itemdata.ItemProperty)
		require.NoError(t, err)
		require.False(t, has)

		properties, err := conn.GetChildProperties(ctx, a)
		require.NoError(t, err)
		var names []string
		for _, property := range properties {
			names = append(names, property.Name.String())
		}
		require.Equal(t, []string{"[]count", "[]flag", "[]text", itemdata.PrimaryType.String()}, names)

		listed, err := conn.ListChildProperties(ctx, a)
		require.NoError(t, err)
		require.Len(t, listed, 4)
		for _, property := range listed {
			require.Empty(t, property.Values)
		}

		count, err := conn.GetNodesCount(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 2, count)
		return nil
	}))
}

func TestAllValueTypes(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	root := tree(t, ctx, f)

	path, err := itemdata.ParseQPath("[]:1[]testRoot:1[foo]node1:4")
	require.NoError(t, err)

	values := []itemdata.Value{
		itemdata.Binary("binary \x00 data"),
		itemdata.Boolean(false),
		itemdata.NewDate(time.Now()),
		itemdata.Double(-1.5),
		itemdata.Long(1 << 40),
		itemdata.Name(itemdata.MixinTypes),
		itemdata.Path(path),
		itemdata.Permission{Identity: "any", Permission: itemdata.PermissionAddNode},
		itemdata.Reference(newID()),
		itemdata.String("text"),
	}

	for i, v := range values {
		name := qname("value" + v.Type().String())
		external := i%2 == 1
		transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
			var data []itemdata.ValueData
			for order := 0; order < 3; order++ {
				if external {
					data = append(data, itemdata.External(order, memoryStorage, v))
				} else {
					data = append(data, itemdata.Inline(order, v))
				}
			}
			return conn.AddProperty(ctx, newProperty(root, name, v.Type(), data...))
		})

		property := getProperty(t, ctx, f, root, name)
		require.NotNil(t, property)
		require.Equal(t, v.Type(), property.Type)
		require.Len(t, property.Values, 3)
		for order, value := range property.Values {
			require.Equal(t, order, value.OrderNumber)
			require.Equal(t, external, value.IsExternal())
			requireValue(t, v, value)
		}
	}
}

func requireValue(t *testing.T, expected itemdata.Value, actual itemdata.ValueData) {
	switch expected := expected.(type) {
	case itemdata.Date:
		require.True(t, expected.Equal(actual.Value.(itemdata.Date)))
	case itemdata.Path:
		require.True(t, itemdata.QPath(expected).Equal(itemdata.QPath(actual.Value.(itemdata.Path))))
	default:
		require.Equal(t, expected, actual.Value)
	}
}

func TestExternalValuesLifecycle(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	root := tree(t, ctx, f)

	small := testrand.BytesInt(100)
	large := testrand.BytesInt(10 * memory.KiB.Int())

	property := newProperty(root, qname("data"), itemdata.TypeBinary,
		itemdata.ExternalContent(0, memoryStorage, bytes.NewReader(small), int64(len(small))),
		itemdata.ExternalContent(1, memoryStorage, bytes.NewReader(large), int64(len(large))))
	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		return conn.AddProperty(ctx, property)
	})
	require.Len(t, f.blobs.Keys(), 2)

	got := getProperty(t, ctx, f, root, qname("data"))
	require.Len(t, got.Values, 2)
	require.Equal(t, itemdata.Binary(small), got.Values[0].Value)
	require.Nil(t, got.Values[1].Value)
	require.EqualValues(t, len(large), got.Values[1].Size)
	content, err := io.ReadAll(got.Values[1].Content)
	require.NoError(t, err)
	require.Equal(t, large, content)
	require.NoError(t, got.Values[1].Content.(io.Closer).Close())

	var size int64
	require.NoError(t, workspace.View(ctx, f.container, func(ctx context.Context, conn workspace.Reader) (err error) {
		size, err = conn.GetNodeDataSize(ctx, root.ID)
		return err
	}))
	primaryType := int64(len(itemdata.EncodeValue(itemdata.Name(unstructured))))
	require.Equal(t, int64(len(small)+len(large))+primaryType, size)

	// an update replaces every value
	replacement := []byte("replacement")
	property.Version++
	property.Values = []itemdata.ValueData{
		itemdata.ExternalContent(0, memoryStorage, bytes.NewReader(replacement), int64(len(replacement))),
	}
	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		return conn.UpdateProperty(ctx, property)
	})
	require.Len(t, f.blobs.Keys(), 1)

	got = getProperty(t, ctx, f, root, qname("data"))
	require.Equal(t, 2, got.Version)
	require.Len(t, got.Values, 1)
	require.Equal(t, itemdata.Binary(replacement), got.Values[0].Value)

	// a rolled back delete keeps the values
	conn, err := f.container.Connect(ctx, false)
	require.NoError(t, err)
	require.NoError(t, conn.DeleteProperty(ctx, property))
	require.NoError(t, conn.Prepare(ctx))
	require.NoError(t, conn.Rollback(ctx))
	require.False(t, conn.IsOpened())

	got = getProperty(t, ctx, f, root, qname("data"))
	require.NotNil(t, got)
	require.Equal(t, itemdata.Binary(replacement), got.Values[0].Value)
	require.Len(t, f.blobs.Keys(), 1)

	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		return conn.DeleteProperty(ctx, property)
	})
	require.Nil(t, getProperty(t, ctx, f, root, qname("data")))
	require.Empty(t, f.blobs.Keys())
	require.Zero(t, f.reclaimer.Len())
}

func TestExternalValuesListing(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	root := tree(t, ctx, f)

	first, second := testrand.BytesInt(10), testrand.BytesInt(20)
	external := newProperty(root, qname("blobs"), itemdata.TypeBinary,
		itemdata.ExternalContent(0, memoryStorage, bytes.NewReader(first), int64(len(first))),
		itemdata.ExternalContent(1, memoryStorage, bytes.NewReader(second), int64(len(second))))
	inline := newProperty(root, qname("title"), itemdata.TypeString, itemdata.Inline(0, itemdata.String("inline")))
	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		if err := conn.AddProperty(ctx, external); err != nil {
			return err
		}
		return conn.AddProperty(ctx, inline)
	})

	var values []mongostore.ExternalValue
	require.NoError(t, f.container.ExternalValues(ctx, func(ctx context.Context, value mongostore.ExternalValue) error {
		values = append(values, value)
		return nil
	}))
	require.Equal(t, []mongostore.ExternalValue{
		{PropertyID: external.ID, StorageID: memoryStorage, OrderNumber: 0, Size: int64(len(first))},
		{PropertyID: external.ID, StorageID: memoryStorage, OrderNumber: 1, Size: int64(len(second))},
	}, values)

	stop := errors.New("stop")
	calls := 0
	err := f.container.ExternalValues(ctx, func(ctx context.Context, value mongostore.ExternalValue) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	root := tree(t, ctx, f)

	conn, err := f.container.Connect(ctx, false)
	require.NoError(t, err)

	node := childNode(root, "transient", 1, 0)
	require.NoError(t, addNode(ctx, conn, node))
	require.NoError(t, conn.AddProperty(ctx, newProperty(node, qname("blob"), itemdata.TypeString,
		itemdata.External(0, memoryStorage, itemdata.String("content")))))
	require.NoError(t, conn.Prepare(ctx))
	require.Len(t, f.blobs.Keys(), 1)

	require.NoError(t, conn.Rollback(ctx))
	require.Empty(t, f.blobs.Keys())

	count, err := f.container.NodesCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestConcurrentRemoval(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, true)
	a := childNode(rootNode(), "a", 1, 0)
	root := tree(t, ctx, f, a)
	b := childNode(a, "b", 1, 0)
	property := newProperty(a, qname("p"), itemdata.TypeString, itemdata.Inline(0, itemdata.String("v")))
	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		if err := conn.AddProperty(ctx, property); err != nil {
			return err
		}
		return addNode(ctx, conn, b)
	})

	stale, err := f.container.Connect(ctx, false)
	require.NoError(t, err)
	defer ctx.Check(func() error { return stale.Close(ctx) })

	// another session removes a and its subtree
	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		if err := conn.DeleteNode(ctx, b); err != nil {
			return err
		}
		if err := conn.DeleteProperty(ctx, property); err != nil {
			return err
		}
		return conn.DeleteNode(ctx, a)
	})

	requireInvalid := func(err error) {
		t.Helper()
		require.Error(t, err)
		require.True(t, itemdata.ErrInvalidItemState.Has(err), "%+v", err)
	}

	requireInvalid(stale.UpdateNode(ctx, a))
	requireInvalid(stale.Rename(ctx, a))
	requireInvalid(stale.DeleteNode(ctx, a))
	requireInvalid(stale.UpdateProperty(ctx, property))
	requireInvalid(stale.DeleteProperty(ctx, property))
	requireInvalid(stale.AddNode(ctx, childNode(a, "orphan", 1, 0)))
	requireInvalid(stale.AddProperty(ctx, newProperty(a, itemdata.Owner, itemdata.TypeString,
		itemdata.Inline(0, itemdata.String("john")))))

	// the root is untouched
	require.NoError(t, stale.UpdateNode(ctx, root))
}

func TestDuplicates(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, true)
	a := childNode(rootNode(), "a", 1, 0)
	root := tree(t, ctx, f, a)

	err := workspace.Transact(ctx, f.container, func(ctx context.Context, conn workspace.Connection) error {
		return conn.AddNode(ctx, a)
	})
	require.True(t, itemdata.ErrInvalidItemState.Has(err), "%+v", err)

	err = workspace.Transact(ctx, f.container, func(ctx context.Context, conn workspace.Connection) error {
		return conn.AddNode(ctx, childNode(root, "a", 1, 1))
	})
	require.True(t, itemdata.ErrItemExists.Has(err), "%+v", err)

	// another same name sibling index is fine
	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		return addNode(ctx, conn, childNode(root, "a", 2, 1))
	})
}

func TestReadOnlyAndClosed(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	root := tree(t, ctx, f)

	conn, err := f.container.Open(ctx, true)
	require.NoError(t, err)

	err = conn.AddNode(ctx, childNode(root, "a", 1, 0))
	require.True(t, workspace.ErrReadOnly.Has(err), "%+v", err)
	err = conn.DeleteLockProperties(ctx)
	require.True(t, workspace.ErrReadOnly.Has(err), "%+v", err)

	count, err := conn.GetChildNodesCount(ctx, root)
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, conn.Close(ctx))
	require.NoError(t, conn.Close(ctx))
	require.False(t, conn.IsOpened())

	_, err = conn.GetNodesCount(ctx)
	require.True(t, workspace.ErrClosed.Has(err), "%+v", err)
	require.True(t, workspace.ErrClosed.Has(conn.Commit(ctx)))
}

func TestRenameAndUpdate(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	a := childNode(rootNode(), "a", 1, 0)
	b := childNode(rootNode(), "b", 1, 1)
	root := tree(t, ctx, f, a, b)

	moved := *b
	moved.ParentID = a.ID
	moved.Name = qname("moved")
	moved.Version = 2
	moved.OrderNumber = 0
	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		if err := conn.Rename(ctx, &moved); err != nil {
			return err
		}
		a.OrderNumber = 7
		a.Version = 2
		return conn.UpdateNode(ctx, a)
	})

	require.NoError(t, workspace.View(ctx, f.container, func(ctx context.Context, conn workspace.Reader) error {
		children, err := conn.GetChildNodes(ctx, root)
		require.NoError(t, err)
		require.Len(t, children, 1)
		require.Equal(t, 7, children[0].OrderNumber)
		require.Equal(t, 2, children[0].Version)

		item, err := conn.GetItemDataByID(ctx, b.ID)
		require.NoError(t, err)
		require.Equal(t, "[]:1[]a:1[]moved:1", item.Item().Path.String())
		return nil
	}))
}

func TestChildNodeQueries(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	parent := rootNode()
	children := []*itemdata.NodeData{
		childNode(parent, "node1", 1, 0),
		childNode(parent, "node2", 1, 1),
		childNode(parent, "node1", 2, 2),
		childNode(parent, "other", 1, 3),
		childNode(parent, "node.3", 1, 4),
	}
	root := tree(t, ctx, f, children...)

	ids := func(nodes []*itemdata.NodeData) []string {
		var ids []string
		for _, node := range nodes {
			ids = append(ids, node.ID)
		}
		return ids
	}

	require.NoError(t, workspace.View(ctx, f.container, func(ctx context.Context, conn workspace.Reader) error {
		all, err := conn.GetChildNodes(ctx, root)
		require.NoError(t, err)
		require.Equal(t, ids(children), ids(all))

		matched, err := conn.GetChildNodesByPatterns(ctx, root, []itemdata.QPathEntryFilter{
			{Name: qname("node*"), Index: -1},
		})
		require.NoError(t, err)
		require.Equal(t, ids([]*itemdata.NodeData{children[0], children[1], children[2], children[4]}), ids(matched))

		matched, err = conn.GetChildNodesByPatterns(ctx, root, []itemdata.QPathEntryFilter{
			{Name: qname("node1"), Index: 2},
			{Name: qname("oth*"), Index: 1},
		})
		require.NoError(t, err)
		require.Equal(t, ids([]*itemdata.NodeData{children[2], children[3]}), ids(matched))

		matched, err = conn.GetChildNodesByPatterns(ctx, root, []itemdata.QPathEntryFilter{
			{Name: qname("node.*"), Index: -1},
		})
		require.NoError(t, err)
		require.Equal(t, ids(children[4:]), ids(matched))

		matched, err = conn.GetChildNodesByPatterns(ctx, root, nil)
		require.NoError(t, err)
		require.Empty(t, matched)

		page, more, err := conn.GetChildNodesByPage(ctx, root, 0, 0, 2)
		require.NoError(t, err)
		require.True(t, more)
		require.Equal(t, ids(children[:2]), ids(page))

		page, more, err = conn.GetChildNodesByPage(ctx, root, 0, 0, 10)
		require.NoError(t, err)
		require.False(t, more)
		require.Equal(t, ids(children), ids(page))

		page, more, err = conn.GetChildNodesByPage(ctx, root, 1, 1, 2)
		require.NoError(t, err)
		require.True(t, more)
		require.Equal(t, ids(children[2:4]), ids(page))

		page, more, err = conn.GetChildNodesByPage(ctx, root, 0, 4, 2)
		require.NoError(t, err)
		require.False(t, more)
		require.Equal(t, ids(children[4:]), ids(page))

		count, err := conn.GetChildNodesCount(ctx, root)
		require.NoError(t, err)
		require.EqualValues(t, len(children), count)

		last, err := conn.GetLastOrderNumber(ctx, root)
		require.NoError(t, err)
		require.Equal(t, 4, last)

		last, err = conn.GetLastOrderNumber(ctx, children[0])
		require.NoError(t, err)
		require.Equal(t, -1, last)

		properties, err := conn.GetChildPropertiesByPatterns(ctx, children[0], []itemdata.QPathEntryFilter{
			{Name: itemdata.QName{Namespace: itemdata.JCRNamespace, Name: "primary*"}, Index: -1},
		})
		require.NoError(t, err)
		require.Len(t, properties, 1)
		require.Equal(t, itemdata.PrimaryType, properties[0].Name)
		return nil
	}))
}

func TestReferencesAndACL(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	target := childNode(rootNode(), "target", 1, 0)
	secured := childNode(rootNode(), "secured", 1, 1)
	root := tree(t, ctx, f, target, secured)
	inner := childNode(secured, "inner", 1, 0)

	reference := newProperty(root, qname("ref"), itemdata.TypeReference,
		itemdata.Inline(0, itemdata.Reference(target.ID)),
		itemdata.Inline(1, itemdata.Reference(target.ID)))
	permissions := []itemdata.AccessControlEntry{
		{Identity: "john", Permission: itemdata.PermissionRead},
		{Identity: "mary", Permission: itemdata.PermissionRemove},
	}

	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		if err := conn.AddProperty(ctx, reference); err != nil {
			return err
		}
		if err := conn.AddProperty(ctx, newProperty(secured, itemdata.MixinTypes, itemdata.TypeName,
			itemdata.Inline(0, itemdata.Name(itemdata.Owneable)),
			itemdata.Inline(1, itemdata.Name(itemdata.Privilegeable)))); err != nil {
			return err
		}
		if err := conn.AddProperty(ctx, newProperty(secured, itemdata.Owner, itemdata.TypeString,
			itemdata.Inline(0, itemdata.String("john")))); err != nil {
			return err
		}
		if err := conn.AddProperty(ctx, newProperty(secured, itemdata.Permissions, itemdata.TypePermission,
			itemdata.Inline(0, itemdata.Permission(permissions[0])),
			itemdata.Inline(1, itemdata.Permission(permissions[1])))); err != nil {
			return err
		}
		return addNode(ctx, conn, inner)
	})

	require.NoError(t, workspace.View(ctx, f.container, func(ctx context.Context, conn workspace.Reader) error {
		references, err := conn.GetReferencesData(ctx, target.ID)
		require.NoError(t, err)
		require.Len(t, references, 1)
		require.Equal(t, reference.ID, references[0].ID)

		references, err = conn.GetReferencesData(ctx, secured.ID)
		require.NoError(t, err)
		require.Empty(t, references)

		holders, err := conn.GetACLHolders(ctx)
		require.NoError(t, err)
		require.Equal(t, []itemdata.ACLHolder{{ID: secured.ID, Owner: true, Permissions: true}}, holders)

		item, err := conn.GetItemDataByID(ctx, secured.ID)
		require.NoError(t, err)
		node := item.(*itemdata.NodeData)
		require.Equal(t, []itemdata.QName{itemdata.Owneable, itemdata.Privilegeable}, node.MixinTypes)
		require.Equal(t, "john", node.ACL.Owner)
		require.Equal(t, permissions, node.ACL.Entries)

		// inner inherits the access control of its parent
		children, err := conn.GetChildNodes(ctx, node)
		require.NoError(t, err)
		require.Len(t, children, 1)
		require.Equal(t, node.ACL, children[0].ACL)
		return nil
	}))

	// removing the permissions unsets the mirrored field
	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		property, err := conn.GetItemData(ctx, secured, itemdata.NewEntry(itemdata.Permissions, 1), itemdata.ItemProperty)
		if err != nil {
			return err
		}
		return conn.DeleteProperty(ctx, property.(*itemdata.PropertyData))
	})
	require.NoError(t, workspace.View(ctx, f.container, func(ctx context.Context, conn workspace.Reader) error {
		holders, err := conn.GetACLHolders(ctx)
		require.NoError(t, err)
		require.Equal(t, []itemdata.ACLHolder{{ID: secured.ID, Owner: true}}, holders)
		return nil
	}))
}

func TestDeleteLockProperties(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	a := childNode(rootNode(), "a", 1, 0)
	tree(t, ctx, f, a)

	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		for _, property := range []*itemdata.PropertyData{
			newProperty(a, itemdata.LockOwner, itemdata.TypeString, itemdata.Inline(0, itemdata.String("john"))),
			newProperty(a, itemdata.LockIsDeep, itemdata.TypeBoolean, itemdata.Inline(0, itemdata.Boolean(true))),
		} {
			if err := conn.AddProperty(ctx, property); err != nil {
				return err
			}
		}
		return nil
	})

	require.NoError(t, f.container.DeleteLockProperties(ctx))

	require.Nil(t, getProperty(t, ctx, f, a, itemdata.LockOwner))
	require.Nil(t, getProperty(t, ctx, f, a, itemdata.LockIsDeep))
	require.NotNil(t, getProperty(t, ctx, f, a, itemdata.PrimaryType))
}

func TestDumpRestore(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	var children []*itemdata.NodeData
	for i := 0; i < 1100; i++ {
		children = append(children, childNode(rootNode(), "node", i+1, i))
	}
	tree(t, ctx, f, children...)

	var dump bytes.Buffer
	dumped, err := f.container.Dump(ctx, &dump)
	require.NoError(t, err)
	require.EqualValues(t, 2*(len(children)+1), dumped)

	require.NoError(t, f.container.Clean(ctx))
	count, err := f.container.NodesCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	restored, err := f.container.Restore(ctx, bytes.NewReader(dump.Bytes()))
	require.NoError(t, err)
	require.Equal(t, dumped, restored)

	count, err = f.container.NodesCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, len(children)+1, count)

	specs, err := f.container.Collection().Indexes().ListSpecifications(ctx)
	require.NoError(t, err)
	require.Len(t, specs, 5)

	_, err = f.container.Restore(ctx, bytes.NewReader(dump.Bytes()[:dump.Len()-1]))
	require.Error(t, err)
}

func TestGridFSInTransaction(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	f := newFixture(t, ctx, false)
	root := tree(t, ctx, f)

	client := f.container.Client()
	driver, err := gridfs.New(zaptest.NewLogger(t),
		client.Database(gridfs.DatabaseName(mongotest.URI(t))),
		gridfs.CollectionName(valuestorage.GridFSBucketPrefix, f.container.Name()))
	require.NoError(t, err)
	defer func() { require.NoError(t, driver.Drop(ctx)) }()

	storage := valuestorage.New(zaptest.NewLogger(t), "gridfs", driver, blobstore.FlatLayout{}, f.reclaimer,
		blobstore.SpoolConfig{TempDir: ctx.Dir("gridfs"), MaxBufferSize: memory.KiB})
	require.NoError(t, f.container.Provider().Add(storage))

	value := func(text string) itemdata.ValueData {
		return itemdata.External(0, "gridfs", itemdata.String(text))
	}

	discarded := newProperty(root, qname("discarded"), itemdata.TypeString, value("discarded"))
	conn, err := f.container.Connect(ctx, false)
	require.NoError(t, err)
	require.NoError(t, conn.AddProperty(ctx, discarded))
	require.NoError(t, conn.Prepare(ctx))
	require.NoError(t, conn.Rollback(ctx))

	exists, err := driver.Exists(ctx, blobstore.FlatLayout{}.Key(discarded.ID, 0))
	require.NoError(t, err)
	require.False(t, exists)

	kept := newProperty(root, qname("kept"), itemdata.TypeString, value("kept"))
	transact(t, ctx, f, func(ctx context.Context, conn workspace.Connection) error {
		return conn.AddProperty(ctx, kept)
	})

	got := getProperty(t, ctx, f, root, qname("kept"))
	require.NotNil(t, got)
	require.Equal(t, itemdata.String("kept"), got.Values[0].Value)
}
