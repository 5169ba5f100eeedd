// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package blobstore

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultShardDepth is the number of single character directories an
// identifier is split into by ShardedLayout.
const DefaultShardDepth = 8

// Layout maps a property identifier and a value order number to a blob key.
type Layout interface {
	// PropertyPrefix returns the prefix shared by every value of the property.
	PropertyPrefix(propertyID string) string
	// Key returns the key of a single value.
	Key(propertyID string, orderNumber int) string
	// Root returns the prefix shared by every key of the layout.
	Root() string
}

// ShardedLayout spreads keys over nested directories built from the first
// characters of the identifier so that object storage does not concentrate
// all keys on a single partition.
//
// For id "abcdefghij" and depth 8 the prefix is "root/a/b/c/d/e/f/g/hij/".
type ShardedLayout struct {
	Prefix string
	Depth  int
}

// Root returns the prefix shared by every key of the layout.
func (layout ShardedLayout) Root() string {
	if layout.Prefix == "" {
		return ""
	}
	return layout.Prefix + "/"
}

// PropertyPrefix returns the prefix shared by every value of the property.
func (layout ShardedLayout) PropertyPrefix(propertyID string) string {
	return layout.dir(propertyID) + propertyID
}

// Key returns the key of a single value.
func (layout ShardedLayout) Key(propertyID string, orderNumber int) string {
	return layout.PropertyPrefix(propertyID) + strconv.Itoa(orderNumber)
}

func (layout ShardedLayout) dir(propertyID string) string {
	depth := layout.Depth
	if depth <= 0 {
		depth = DefaultShardDepth
	}
	if depth > len(propertyID) {
		depth = len(propertyID)
	}

	var b strings.Builder
	b.WriteString(layout.Root())
	for i := 0; i < depth; i++ {
		b.WriteByte(propertyID[i])
		if i < depth-1 {
			b.WriteByte('/')
		}
	}
	b.WriteString(propertyID[depth:])
	b.WriteByte('/')
	return b.String()
}

// FlatLayout stores keys directly as identifier followed by order number.
type FlatLayout struct{}

// Root returns the empty prefix.
func (FlatLayout) Root() string { return "" }

// PropertyPrefix returns the identifier itself.
func (FlatLayout) PropertyPrefix(propertyID string) string { return propertyID }

// Key returns the identifier followed by the order number.
func (FlatLayout) Key(propertyID string, orderNumber int) string {
	return propertyID + strconv.Itoa(orderNumber)
}

var sequence int64

// UniqueSuffix returns a suffix made of the current unix time in
// milliseconds and a process wide sequence number, "<millis>_<seq>".
func UniqueSuffix(now time.Time) string {
	seq := atomic.AddInt64(&sequence, 1)
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + strconv.FormatInt(seq, 10)
}

// BackupKey returns the name a key is moved to while its deletion is staged.
func BackupKey(key string, now time.Time) string {
	return key + "." + UniqueSuffix(now)
}

// EscapePrefix turns a repository supplied string into a key prefix usable
// by object storage. Backslashes become slashes, characters that are not
// allowed in object keys become underscores and surrounding slashes are
// removed.
func EscapePrefix(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '\\':
			b.WriteRune('/')
		case ' ', '%', ';', ',', '(', ')', '&', '#', '<', '>', ':', '"', '*', '?', '|', '.':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "/")
}
