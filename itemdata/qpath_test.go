// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package itemdata_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/jcrstore/itemdata"
)

func TestParseQPath(t *testing.T) {
	path1, err := itemdata.ParseQPath("[]:1[]testRoot:1[]node1:4")
	require.NoError(t, err)
	path2, err := itemdata.ParseQPath("[]:1[]testRoot:1[]node1:3")
	require.NoError(t, err)
	path3, err := itemdata.ParseQPath("[]:1[]testRoot:1[foo]node1:3")
	require.NoError(t, err)
	child, err := itemdata.ParseQPath("[]:1[]testRoot:1[]node1:4[]child1:5")
	require.NoError(t, err)

	require.Len(t, path1, 3)
	require.True(t, path1[0].Equal(path2[0]))
	require.True(t, path1[1].Equal(path2[1]))
	require.False(t, path1[2].Equal(path2[2]))
	require.False(t, path3[2].Equal(path2[2]))
	require.Equal(t, "foo", path3[2].Namespace)
	require.Equal(t, 3, path3[2].Index)

	require.True(t, child.IsDescendantOf(path1))
	require.False(t, child.IsDescendantOf(path2))
	require.False(t, path1.IsDescendantOf(path1))

	require.Equal(t, "[]:1[]testRoot:1[foo]node1:3", path3.String())
	require.True(t, path1.Equal(child.Parent()))
	require.Equal(t, 2, path1.Depth())
}

func TestParseQPathNamespaceWithColon(t *testing.T) {
	path, err := itemdata.ParseQPath("[]:1[http://www.jcp.org/jcr/1.0]system:1")
	require.NoError(t, err)
	require.Equal(t, itemdata.QName{Namespace: itemdata.JCRNamespace, Name: "system"}, path.Name().QName)
	require.Equal(t, "[]:1[http://www.jcp.org/jcr/1.0]system:1", path.String())
}

func TestParseQPathInvalid(t *testing.T) {
	for _, s := range []string{
		"",
		"node",
		"[]:1node:1",
		"[]:x",
		"[]:0",
		"[unterminated:1",
	} {
		_, err := itemdata.ParseQPath(s)
		require.Error(t, err, s)
		require.True(t, itemdata.ErrIllegalName.Has(err), s)
	}
}

func TestQName(t *testing.T) {
	name, err := itemdata.ParseQName("[http://www.jcp.org/jcr/1.0]primaryType")
	require.NoError(t, err)
	require.Equal(t, itemdata.PrimaryType, name)
	require.Equal(t, "[http://www.jcp.org/jcr/1.0]primaryType", name.String())

	root, err := itemdata.ParseQName("[]")
	require.NoError(t, err)
	require.True(t, root.IsZero())

	_, err = itemdata.ParseQName("primaryType")
	require.Error(t, err)
}

func TestAccessControlEntry(t *testing.T) {
	entry, err := itemdata.ParseAccessControlEntry("john read")
	require.NoError(t, err)
	require.Equal(t, itemdata.AccessControlEntry{Identity: "john", Permission: itemdata.PermissionRead}, entry)
	require.Equal(t, "john read", entry.String())

	for _, s := range []string{"", "john", " read", "john ", "john read twice"} {
		_, err := itemdata.ParseAccessControlEntry(s)
		require.Error(t, err, s)
	}
}

func TestQPathEntryFilter(t *testing.T) {
	name := itemdata.QName{Namespace: "ns", Name: "document.txt"}

	for _, tc := range []struct {
		filter itemdata.QPathEntryFilter
		match  bool
	}{
		{itemdata.QPathEntryFilter{Name: name, Index: 1}, true},
		{itemdata.QPathEntryFilter{Name: name, Index: 2}, false},
		{itemdata.QPathEntryFilter{Name: name, Index: -1}, true},
		{itemdata.QPathEntryFilter{Name: itemdata.QName{Namespace: "ns", Name: "doc*"}, Index: -1}, true},
		{itemdata.QPathEntryFilter{Name: itemdata.QName{Namespace: "ns", Name: "*.txt"}, Index: 1}, true},
		{itemdata.QPathEntryFilter{Name: itemdata.QName{Namespace: "ns", Name: "*.pdf"}, Index: 1}, false},
		{itemdata.QPathEntryFilter{Name: itemdata.QName{Namespace: "*", Name: "*"}, Index: -1}, true},
		{itemdata.QPathEntryFilter{Name: itemdata.QName{Namespace: "other", Name: "*"}, Index: -1}, false},
	} {
		require.Equal(t, tc.match, tc.filter.Match(name, 1), "%v", tc.filter)
	}

	require.True(t, itemdata.QPathEntryFilter{Name: name}.IsExact())
	require.False(t, itemdata.QPathEntryFilter{Name: itemdata.QName{Name: "a*"}}.IsExact())
}
