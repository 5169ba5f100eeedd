// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/memory"
	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/jcrstore/blobstore"
	"storj.io/jcrstore/mongostore"
	"storj.io/jcrstore/orphans"
	"storj.io/jcrstore/private/mongotest"
)

func TestOpenEnvironmentInvalidConfig(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)
	for _, config := range []Config{
		{ValueStorages: ":s3", Orphans: orphans.Config{Journal: "memory://"}},
		{ValueStorages: "values:ftp", Orphans: orphans.Config{Journal: "memory://"}},
		{Orphans: orphans.Config{Journal: "tape://drive"}},
	} {
		env, err := openEnvironment(ctx, log, config)
		require.Error(t, err, config.ValueStorages+config.Orphans.Journal)
		require.Nil(t, env)
	}
}

func TestOpenEnvironment(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	uri := mongotest.URI(t)
	workspace := "ws" + hex.EncodeToString(testrand.BytesInt(8))

	env, err := openEnvironment(ctx, zaptest.NewLogger(t), Config{
		Repository:    "repository",
		ValueStorages: "gfs:gridfs:connection-uri=" + uri,
		Mongo:         mongostore.Config{URI: uri, Workspace: workspace},
		Spool:         blobstore.SpoolConfig{TempDir: ctx.Dir("spool"), MaxBufferSize: memory.KiB},
		Orphans:       orphans.Config{Journal: "bolt://" + ctx.File("journal.db"), MaxAttempts: 3},
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, env.Close()) }()

	require.Equal(t, []string{"gfs"}, env.provider.IDs())
	require.Equal(t, workspace, env.container.Name())
	require.Zero(t, env.reclaimer.Len())

	count, err := env.container.NodesCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	storage, err := env.provider.Storage("gfs")
	require.NoError(t, err)
	require.NoError(t, storage.Clean(ctx))
	require.NoError(t, env.container.Collection().Drop(context.Background()))
}
