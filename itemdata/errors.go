// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package itemdata contains the node and property records persisted by the
// workspace storages, together with the typed property values.
package itemdata

import (
	"github.com/zeebo/errs"
)

var (
	// Error is the default itemdata error class.
	Error = errs.Class("itemdata")

	// ErrInvalidItemState is returned when a mutation did not find the item
	// it expected, usually because another session changed it concurrently.
	ErrInvalidItemState = errs.Class("invalid item state")

	// ErrItemExists is returned when an item collides with an existing one
	// on something other than its identifier.
	ErrItemExists = errs.Class("item exists")

	// ErrValueNotFound is returned when a value that must exist is absent.
	ErrValueNotFound = errs.Class("value not found")

	// ErrIllegalName is returned for malformed names, paths and permissions.
	ErrIllegalName = errs.Class("illegal name")
)
