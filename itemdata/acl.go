// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package itemdata

import (
	"strings"
)

// Permissions understood by the repository.
const (
	PermissionRead        = "read"
	PermissionAddNode     = "add_node"
	PermissionSetProperty = "set_property"
	PermissionRemove      = "remove"
)

// SystemIdentity owns items that were created without an explicit owner.
const SystemIdentity = "__system"

// AccessControlEntry grants one permission to one identity.
type AccessControlEntry struct {
	Identity   string
	Permission string
}

// String formats the entry as "identity permission".
func (entry AccessControlEntry) String() string {
	return entry.Identity + " " + entry.Permission
}

// ParseAccessControlEntry parses an entry formatted as "identity permission".
func ParseAccessControlEntry(s string) (AccessControlEntry, error) {
	identity, permission, ok := strings.Cut(s, " ")
	if !ok || identity == "" || permission == "" || strings.Contains(permission, " ") {
		return AccessControlEntry{}, ErrIllegalName.New("invalid access control entry %q", s)
	}
	return AccessControlEntry{Identity: identity, Permission: permission}, nil
}

// AccessControlList is the owner and the permissions of a node.
type AccessControlList struct {
	Owner   string
	Entries []AccessControlEntry
}

// DefaultACL returns the list used for nodes without any access control.
func DefaultACL() AccessControlList {
	var entries []AccessControlEntry
	for _, permission := range []string{PermissionRead, PermissionAddNode, PermissionSetProperty, PermissionRemove} {
		entries = append(entries, AccessControlEntry{Identity: "any", Permission: permission})
	}
	return AccessControlList{Owner: SystemIdentity, Entries: entries}
}

// HasOwner returns whether an owner is set.
func (acl AccessControlList) HasOwner() bool { return acl.Owner != "" }

// HasPermissions returns whether any entries are set.
func (acl AccessControlList) HasPermissions() bool { return len(acl.Entries) > 0 }

// ACLHolder is a node that carries its own owner or permissions.
type ACLHolder struct {
	ID          string
	Owner       bool
	Permissions bool
}
