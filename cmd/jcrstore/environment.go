// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/jcrstore/blobstore"
	"storj.io/jcrstore/mongostore"
	"storj.io/jcrstore/orphans"
	"storj.io/jcrstore/valuestorage"
)

// Config is the configuration of a workspace and its value storages.
type Config struct {
	Repository    string `help:"name of the repository the workspace belongs to" default:"repository"`
	ValueStorages string `help:"value storages as a semicolon separated list of id:type:key=value,..." default:""`

	Mongo   mongostore.Config
	Spool   blobstore.SpoolConfig
	Orphans orphans.Config
}

// environment is an opened workspace with its value storages.
type environment struct {
	reclaimer *orphans.Reclaimer
	provider  *valuestorage.Provider
	container *mongostore.Container
}

func openEnvironment(ctx context.Context, log *zap.Logger, config Config) (_ *environment, err error) {
	definitions, err := valuestorage.ParseDefinitions(config.ValueStorages)
	if err != nil {
		return nil, err
	}

	journal, err := orphans.OpenJournal(ctx, log, config.Orphans.Journal)
	if err != nil {
		return nil, errs.New("Error opening orphan journal: %+v", err)
	}
	reclaimer, err := orphans.New(log.Named("orphans"), journal, config.Orphans)
	if err != nil {
		return nil, errs.Combine(err, journal.Close())
	}

	env := &environment{reclaimer: reclaimer}
	defer func() {
		if err != nil {
			err = errs.Combine(err, env.Close())
		}
	}()

	env.provider, err = valuestorage.NewProvider()
	if err != nil {
		return nil, err
	}
	for _, definition := range definitions {
		storage, err := valuestorage.Open(ctx, log.Named("values"), definition, config.Repository, config.Mongo.Workspace, reclaimer, config.Spool)
		if err != nil {
			return nil, errs.New("Error opening value storage %q: %+v", definition.ID, err)
		}
		if err := env.provider.Add(storage); err != nil {
			return nil, errs.Combine(err, storage.Close())
		}
	}

	// every namespace is registered, so journaled orphans can be resolved
	if err := reclaimer.Load(ctx); err != nil {
		return nil, err
	}

	env.container, err = mongostore.Open(ctx, log.Named("mongo"), config.Mongo, env.provider)
	if err != nil {
		return nil, errs.New("Error opening workspace container: %+v", err)
	}
	return env, nil
}

// Close releases the container, the value storages and the reclaimer.
func (env *environment) Close() error {
	var group errs.Group
	if env.container != nil {
		group.Add(env.container.Close())
	}
	if env.provider != nil {
		group.Add(env.provider.Close())
	}
	group.Add(env.reclaimer.Close())
	return group.Err()
}
