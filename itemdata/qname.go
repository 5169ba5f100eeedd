// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package itemdata

import (
	"strconv"
	"strings"
)

// Namespaces of the built in names.
const (
	JCRNamespace = "http://www.jcp.org/jcr/1.0"
	ExoNamespace = "http://www.exoplatform.com/jcr/exo/1.0"
)

// Well known names.
var (
	RootName = QName{}

	PrimaryType = QName{Namespace: JCRNamespace, Name: "primaryType"}
	MixinTypes  = QName{Namespace: JCRNamespace, Name: "mixinTypes"}
	LockOwner   = QName{Namespace: JCRNamespace, Name: "lockOwner"}
	LockIsDeep  = QName{Namespace: JCRNamespace, Name: "lockIsDeep"}
	Owner       = QName{Namespace: ExoNamespace, Name: "owner"}
	Permissions = QName{Namespace: ExoNamespace, Name: "permissions"}

	Owneable      = QName{Namespace: ExoNamespace, Name: "owneable"}
	Privilegeable = QName{Namespace: ExoNamespace, Name: "privilegeable"}
)

// QName is a name qualified by a namespace uri.
type QName struct {
	Namespace string
	Name      string
}

// String formats the name as "[uri]local".
func (name QName) String() string {
	return "[" + name.Namespace + "]" + name.Name
}

// IsZero returns whether name is the empty root name.
func (name QName) IsZero() bool { return name == QName{} }

// ParseQName parses a name formatted as "[uri]local".
func ParseQName(s string) (QName, error) {
	if !strings.HasPrefix(s, "[") {
		return QName{}, ErrIllegalName.New("%q does not start with [", s)
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return QName{}, ErrIllegalName.New("%q has no closing ]", s)
	}
	local := s[end+1:]
	if strings.ContainsAny(local, "[]:/") {
		return QName{}, ErrIllegalName.New("%q has an invalid local name", s)
	}
	return QName{Namespace: s[1:end], Name: local}, nil
}

// QPathEntry is one segment of a path, a name with its same name sibling
// index. ID is the identifier of the item when known.
type QPathEntry struct {
	QName
	Index int
	ID    string
}

// NewEntry returns an entry without identifier.
func NewEntry(name QName, index int) QPathEntry {
	return QPathEntry{QName: name, Index: index}
}

// String formats the entry as "[uri]local:index".
func (entry QPathEntry) String() string {
	return entry.QName.String() + ":" + strconv.Itoa(entry.Index)
}

// Equal compares names and indexes, ignoring identifiers.
func (entry QPathEntry) Equal(other QPathEntry) bool {
	return entry.QName == other.QName && entry.Index == other.Index
}

// ParseQPathEntry parses an entry formatted as "[uri]local:index". A missing
// index means 1.
func ParseQPathEntry(s string) (QPathEntry, error) {
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return QPathEntry{}, ErrIllegalName.New("%q has no closing ]", s)
	}
	index := 1
	if colon := strings.LastIndexByte(s[end:], ':'); colon >= 0 {
		n, err := strconv.Atoi(s[end+colon+1:])
		if err != nil || n < 1 {
			return QPathEntry{}, ErrIllegalName.New("%q has an invalid index", s)
		}
		index = n
		s = s[:end+colon]
	}
	name, err := ParseQName(s)
	if err != nil {
		return QPathEntry{}, err
	}
	return NewEntry(name, index), nil
}
