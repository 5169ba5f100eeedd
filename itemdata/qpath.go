// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package itemdata

import (
	"strings"
)

// QPath is an absolute path made of qualified entries. The first entry is
// always the root, "[]:1".
type QPath []QPathEntry

// RootPath is the path of the root node.
var RootPath = QPath{NewEntry(RootName, 1)}

// String formats the path as its concatenated entries, for example
// "[]:1[]testRoot:1[foo]node1:4".
func (path QPath) String() string {
	var b strings.Builder
	for _, entry := range path {
		b.WriteString(entry.String())
	}
	return b.String()
}

// Depth returns the number of entries below the root.
func (path QPath) Depth() int { return len(path) - 1 }

// Name returns the last entry of the path.
func (path QPath) Name() QPathEntry {
	if len(path) == 0 {
		return QPathEntry{}
	}
	return path[len(path)-1]
}

// Parent returns the path without its last entry.
func (path QPath) Parent() QPath {
	if len(path) <= 1 {
		return nil
	}
	return path[:len(path)-1:len(path)-1]
}

// Child returns a new path with entry appended.
func (path QPath) Child(entry QPathEntry) QPath {
	child := make(QPath, 0, len(path)+1)
	child = append(child, path...)
	return append(child, entry)
}

// Equal compares the paths entry by entry.
func (path QPath) Equal(other QPath) bool {
	if len(path) != len(other) {
		return false
	}
	for i := range path {
		if !path[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// IsDescendantOf returns whether path is strictly below ancestor.
func (path QPath) IsDescendantOf(ancestor QPath) bool {
	if len(path) <= len(ancestor) {
		return false
	}
	return path[:len(ancestor)].Equal(ancestor)
}

// ParseQPath parses a path formatted by QPath.String.
func ParseQPath(s string) (QPath, error) {
	if s == "" {
		return nil, ErrIllegalName.New("empty path")
	}

	var path QPath
	for len(s) > 0 {
		if s[0] != '[' {
			return nil, ErrIllegalName.New("%q: entry does not start with [", s)
		}
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, ErrIllegalName.New("%q has no closing ]", s)
		}
		next := strings.IndexByte(s[end:], '[')
		raw := s
		if next >= 0 {
			raw, s = s[:end+next], s[end+next:]
		} else {
			s = ""
		}
		entry, err := ParseQPathEntry(raw)
		if err != nil {
			return nil, err
		}
		path = append(path, entry)
	}
	return path, nil
}
