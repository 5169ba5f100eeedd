// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package gridfs

import "strings"

// DatabaseName returns the database named in a connection URI, or
// DefaultDatabase when the URI has none.
func DatabaseName(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		uri = uri[i+3:]
	}
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	i := strings.Index(uri, "/")
	if i < 0 {
		return DefaultDatabase
	}
	name := strings.Trim(uri[i+1:], "/")
	if name == "" {
		return DefaultDatabase
	}
	return name
}

// CollectionName joins prefix and suffix with an underscore, replacing the
// characters MongoDB forbids in collection names.
func CollectionName(prefix, suffix string) string {
	name := prefix + "_" + suffix
	return strings.NewReplacer("$", "_", "\x00", "_").Replace(name)
}
