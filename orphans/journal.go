// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package orphans

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"storj.io/jcrstore/private/kvstore"
	"storj.io/jcrstore/private/kvstore/badgerdb"
	"storj.io/jcrstore/private/kvstore/boltdb"
	"storj.io/jcrstore/private/kvstore/redis"
	"storj.io/jcrstore/private/kvstore/storelogger"
)

// JournalBucket is the bolt bucket pending orphans are kept in.
const JournalBucket = "orphans"

// OpenJournal opens the store described by address. Supported schemes are
// memory://, bolt://<file>, badger://<dir> and redis://<host>. memory:// and
// badger:// without a dir keep the journal in an in-memory badger database,
// so pending orphans are lost on restart.
func OpenJournal(ctx context.Context, log *zap.Logger, address string) (_ kvstore.Store, err error) {
	defer mon.Task()(&ctx)(&err)

	scheme, rest, ok := strings.Cut(address, "://")
	if !ok {
		return nil, Error.New("invalid journal address %q", address)
	}

	var store kvstore.Store
	switch scheme {
	case "memory":
		if rest != "" {
			return nil, Error.New("memory journal takes no path, got %q", rest)
		}
		store, err = badgerdb.Open(log.Named("badger"), "")
	case "bolt":
		if rest == "" {
			return nil, Error.New("bolt journal requires a file path")
		}
		store, err = boltdb.New(rest, JournalBucket)
	case "badger":
		store, err = badgerdb.Open(log.Named("badger"), rest)
	case "redis":
		store, err = redis.OpenURL(ctx, address)
	default:
		return nil, Error.New("unsupported journal scheme %q", scheme)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return storelogger.New(log.Named("journal"), store), nil
}
