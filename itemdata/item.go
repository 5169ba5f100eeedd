// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package itemdata

import (
	"io"
)

// Identifiers with a fixed meaning.
const (
	// RootParentID is the parent identifier stored for the root node.
	RootParentID = " "
	// RootID is the identifier of the root node.
	RootID = "00exo0jcr0root0uuid0000000000000"
)

// ItemType selects nodes, properties or both in lookups.
type ItemType int

// Item types.
const (
	ItemUnknown ItemType = iota
	ItemNode
	ItemProperty
)

// Matches returns whether an item with the given kind is selected.
func (typ ItemType) Matches(isNode bool) bool {
	switch typ {
	case ItemNode:
		return isNode
	case ItemProperty:
		return !isNode
	default:
		return true
	}
}

// ItemData holds the fields shared by nodes and properties. Index is the
// same name sibling index, properties always use 1. Path is filled in by
// reads when the parent path is known.
type ItemData struct {
	ID       string
	ParentID string
	Name     QName
	Index    int
	Version  int
	Path     QPath
}

// Item returns the shared fields.
func (item *ItemData) Item() *ItemData { return item }

// Entry returns the path entry of the item.
func (item *ItemData) Entry() QPathEntry {
	return QPathEntry{QName: item.Name, Index: item.Index, ID: item.ID}
}

// Item is a NodeData or a PropertyData.
type Item interface {
	Item() *ItemData
	IsNode() bool
}

// NodeData is a persisted node.
type NodeData struct {
	ItemData
	OrderNumber int
	PrimaryType QName
	MixinTypes  []QName
	ACL         AccessControlList
}

// IsNode implements Item.
func (node *NodeData) IsNode() bool { return true }

// HasMixin returns whether name is one of the node mixins.
func (node *NodeData) HasMixin(name QName) bool {
	for _, mixin := range node.MixinTypes {
		if mixin == name {
			return true
		}
	}
	return false
}

// PropertyData is a persisted property with its ordered values.
type PropertyData struct {
	ItemData
	Type        Type
	MultiValued bool
	Values      []ValueData
}

// IsNode implements Item.
func (property *PropertyData) IsNode() bool { return false }

// HasExternalValues returns whether any value lives in a value storage.
func (property *PropertyData) HasExternalValues() bool {
	for _, value := range property.Values {
		if value.StorageID != "" {
			return true
		}
	}
	return false
}

// ValueData is one value of a property. It is either inline, with Value set
// and StorageID empty, or stored in the value storage named by StorageID.
//
// When an external value is written, its content is taken from Content with
// exactly Size bytes, or from EncodeValue(Value) when Content is nil.
// Reads of large external binary values leave Value nil and set Content to
// a reader that the caller closes when it implements io.Closer.
type ValueData struct {
	OrderNumber int
	Value       Value

	StorageID string
	Size      int64
	Content   io.Reader
}

// IsExternal returns whether the value lives in a value storage.
func (value ValueData) IsExternal() bool { return value.StorageID != "" }

// Inline returns an inline value.
func Inline(orderNumber int, v Value) ValueData {
	return ValueData{OrderNumber: orderNumber, Value: v}
}

// External returns a value stored in storageID with the encoded form of v.
func External(orderNumber int, storageID string, v Value) ValueData {
	return ValueData{OrderNumber: orderNumber, Value: v, StorageID: storageID, Size: int64(len(EncodeValue(v)))}
}

// ExternalContent returns a value stored in storageID whose content is read
// from r. length must be the exact number of bytes r produces.
func ExternalContent(orderNumber int, storageID string, r io.Reader, length int64) ValueData {
	return ValueData{OrderNumber: orderNumber, StorageID: storageID, Size: length, Content: r}
}

// QPathEntryFilter matches child names. A name containing '*' matches any
// sequence of characters in its place, an index of -1 matches every index.
type QPathEntryFilter struct {
	Name  QName
	Index int
}

// IsExact returns whether the filter contains no wildcard.
func (filter QPathEntryFilter) IsExact() bool {
	return !containsWildcard(filter.Name.Namespace) && !containsWildcard(filter.Name.Name)
}

// Match returns whether entry is selected by the filter.
func (filter QPathEntryFilter) Match(name QName, index int) bool {
	if filter.Index != -1 && filter.Index != index {
		return false
	}
	return matchWildcard(filter.Name.Namespace, name.Namespace) && matchWildcard(filter.Name.Name, name.Name)
}

func containsWildcard(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '*' {
			return true
		}
	}
	return false
}

// matchWildcard matches s against pattern where '*' matches any sequence.
func matchWildcard(pattern, s string) bool {
	px, sx := 0, 0
	star, mark := -1, 0
	for sx < len(s) {
		switch {
		case px < len(pattern) && pattern[px] != '*' && pattern[px] == s[sx]:
			px++
			sx++
		case px < len(pattern) && pattern[px] == '*':
			star, mark = px, sx
			px++
		case star >= 0:
			px = star + 1
			mark++
			sx = mark
		default:
			return false
		}
	}
	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}
