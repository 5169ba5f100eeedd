// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package redis keeps a kvstore journal in a redis database.
package redis

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/jcrstore/private/kvstore"
)

var (
	// Error is a redis error.
	Error = errs.Class("redis")

	mon = monkit.Package()

	_ kvstore.Store = (*Client)(nil)
)

// scanBatch is the number of keys requested per SCAN and MGET round trip.
const scanBatch = 256

// Config locates the journal in redis.
type Config struct {
	Address  string
	Password string
	DB       int
	// Prefix is prepended to every key so that several journals can share
	// one database.
	Prefix string
}

// ParseURL parses an address formatted as
// redis://host:port?db=1&password=secret&prefix=orphans/.
func ParseURL(address string) (Config, error) {
	u, err := url.Parse(address)
	if err != nil {
		return Config{}, Error.Wrap(err)
	}
	if u.Scheme != "redis" {
		return Config{}, Error.New("not a redis:// formatted address: %q", address)
	}

	q := u.Query()
	config := Config{
		Address:  u.Host,
		Password: q.Get("password"),
		Prefix:   q.Get("prefix"),
	}
	if db := q.Get("db"); db != "" {
		if config.DB, err = strconv.Atoi(db); err != nil {
			return Config{}, Error.New("invalid db %q", db)
		}
	}
	return config, nil
}

// Client is a journal kept in redis.
type Client struct {
	db     *redis.Client
	prefix string
}

// Open connects to redis and verifies the connection.
func Open(ctx context.Context, config Config) (*Client, error) {
	client := &Client{
		db: redis.NewClient(&redis.Options{
			Addr:     config.Address,
			Password: config.Password,
			DB:       config.DB,
		}),
		prefix: config.Prefix,
	}

	if err := client.db.Ping(ctx).Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), client.db.Close())
	}
	return client, nil
}

// OpenURL connects to the redis database described by address.
func OpenURL(ctx context.Context, address string) (*Client, error) {
	config, err := ParseURL(address)
	if err != nil {
		return nil, err
	}
	return Open(ctx, config)
}

func (client *Client) key(key kvstore.Key) string {
	return client.prefix + string(key)
}

// Get returns the value of key.
func (client *Client) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	value, err := client.db.Get(ctx, client.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}
	return value, Error.Wrap(err)
}

// Put stores value under key without expiration.
func (client *Client) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}
	return Error.Wrap(client.db.Set(ctx, client.key(key), []byte(value), 0).Err())
}

// Delete removes key.
func (client *Client) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}
	return Error.Wrap(client.db.Del(ctx, client.key(key)).Err())
}

// Range calls fn for every key under the client prefix. Keys are fetched in
// batches, a key deleted while ranging may be skipped.
func (client *Client) Range(ctx context.Context, fn func(context.Context, kvstore.Key, kvstore.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	seen := map[string]struct{}{}
	var cursor uint64
	for {
		keys, next, err := client.db.Scan(ctx, cursor, client.prefix+"*", scanBatch).Result()
		if err != nil {
			return Error.Wrap(err)
		}

		// SCAN may return a key more than once
		fresh := keys[:0]
		for _, key := range keys {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				fresh = append(fresh, key)
			}
		}

		if len(fresh) > 0 {
			values, err := client.db.MGet(ctx, fresh...).Result()
			if err != nil {
				return Error.Wrap(err)
			}
			for i, value := range values {
				text, ok := value.(string)
				if !ok {
					continue
				}
				if err := fn(ctx, kvstore.Key(fresh[i][len(client.prefix):]), kvstore.Value(text)); err != nil {
					return err
				}
			}
		}

		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close closes the connection.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}
