// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package valuestorage

import (
	"context"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"storj.io/jcrstore/blobstore"
	"storj.io/jcrstore/blobstore/gridfs"
	"storj.io/jcrstore/blobstore/s3store"
	"storj.io/jcrstore/orphans"
)

// Names of the recognized properties.
const (
	PropertyBucket               = "bucket"
	PropertyKeyPrefix            = "key-prefix"
	PropertyEndpoint             = "endpoint"
	PropertySecure               = "secure"
	PropertyProtocol             = "protocol"
	PropertyRegion               = "region"
	PropertyAccessKeyID          = "access-key-id"
	PropertySecretAccessKey      = "secret-access-key"
	PropertyConnectionTimeout    = "connection-timeout"
	PropertySocketTimeout        = "socket-timeout"
	PropertyMaxConnections       = "max-connections"
	PropertyMaxErrorRetry        = "max-error-retry"
	PropertyProxyHost            = "proxy-host"
	PropertyProxyPort            = "proxy-port"
	PropertyProxyUsername        = "proxy-username"
	PropertyProxyPassword        = "proxy-password"
	PropertyConnectionURI        = "connection-uri"
	PropertyCollectionNameSuffix = "collection-name-suffix"
)

// Storage types.
const (
	TypeS3     = "s3"
	TypeGridFS = "gridfs"
)

// GridFSBucketPrefix prefixes the bucket names derived by
// ParseGridFSProperties.
const GridFSBucketPrefix = "jcr_gfs"

// Properties is the flat configuration of a value storage.
type Properties map[string]string

// Definition names a value storage, its type and its properties.
type Definition struct {
	ID         string
	Type       string
	Properties Properties
}

// ParseDefinitions parses a semicolon separated list of storages, each
// formatted as "id:type:key=value,key=value".
func ParseDefinitions(s string) ([]Definition, error) {
	var definitions []Definition
	for _, raw := range strings.Split(s, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) < 2 || parts[0] == "" {
			return nil, Error.New("invalid value storage %q", raw)
		}
		definition := Definition{ID: parts[0], Type: parts[1], Properties: Properties{}}
		if len(parts) == 3 {
			for _, pair := range strings.Split(parts[2], ",") {
				if pair == "" {
					continue
				}
				key, value, ok := strings.Cut(pair, "=")
				if !ok || key == "" {
					return nil, Error.New("invalid property %q of %q", pair, definition.ID)
				}
				definition.Properties[strings.TrimSpace(key)] = strings.TrimSpace(value)
			}
		}
		definitions = append(definitions, definition)
	}
	return definitions, nil
}

// String formats the definition for ParseDefinitions.
func (definition Definition) String() string {
	keys := make([]string, 0, len(definition.Properties))
	for key := range definition.Properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+definition.Properties[key])
	}
	return definition.ID + ":" + definition.Type + ":" + strings.Join(pairs, ",")
}

// S3Settings is the decoded configuration of an S3 value storage.
type S3Settings struct {
	Config        s3store.Config
	KeyPrefix     string
	MaxErrorRetry int
}

// ParseS3Properties decodes the properties of an S3 value storage. Without a
// key-prefix the values are stored under "repository/workspace".
func ParseS3Properties(props Properties, repository, workspace string) (settings S3Settings, err error) {
	settings.Config = s3store.Config{
		Endpoint:       "s3.amazonaws.com",
		Secure:         true,
		ConnectTimeout: 10 * time.Second,
		SocketTimeout:  50 * time.Second,
		MaxConnections: 50,
	}

	settings.Config.Bucket = props[PropertyBucket]
	if settings.Config.Bucket == "" {
		return settings, Error.New("property %q is required", PropertyBucket)
	}

	prefix := props[PropertyKeyPrefix]
	if prefix == "" {
		prefix = repository + "/" + workspace
	}
	settings.KeyPrefix = blobstore.EscapePrefix(prefix)

	if v, ok := props[PropertyEndpoint]; ok && v != "" {
		settings.Config.Endpoint = v
	}
	if v, ok := props[PropertyProtocol]; ok && v != "" {
		settings.Config.Secure = !strings.EqualFold(v, "http")
	}
	if v, ok := props[PropertySecure]; ok && v != "" {
		if settings.Config.Secure, err = cast.ToBoolE(v); err != nil {
			return settings, propertyError(PropertySecure, err)
		}
	}
	settings.Config.Region = props[PropertyRegion]
	settings.Config.AccessKey = props[PropertyAccessKeyID]
	settings.Config.SecretKey = props[PropertySecretAccessKey]

	if v, ok := props[PropertyConnectionTimeout]; ok && v != "" {
		if settings.Config.ConnectTimeout, err = parseTimeout(v); err != nil {
			return settings, propertyError(PropertyConnectionTimeout, err)
		}
	}
	if v, ok := props[PropertySocketTimeout]; ok && v != "" {
		if settings.Config.SocketTimeout, err = parseTimeout(v); err != nil {
			return settings, propertyError(PropertySocketTimeout, err)
		}
	}
	if v, ok := props[PropertyMaxConnections]; ok && v != "" {
		if settings.Config.MaxConnections, err = cast.ToIntE(v); err != nil {
			return settings, propertyError(PropertyMaxConnections, err)
		}
	}
	if v, ok := props[PropertyMaxErrorRetry]; ok && v != "" {
		if settings.MaxErrorRetry, err = cast.ToIntE(v); err != nil {
			return settings, propertyError(PropertyMaxErrorRetry, err)
		}
	}

	if host := props[PropertyProxyHost]; host != "" {
		proxy := &url.URL{Scheme: "http", Host: host}
		if port := props[PropertyProxyPort]; port != "" {
			if _, err := cast.ToIntE(port); err != nil {
				return settings, propertyError(PropertyProxyPort, err)
			}
			proxy.Host = net.JoinHostPort(host, port)
		}
		if user := props[PropertyProxyUsername]; user != "" {
			proxy.User = url.UserPassword(user, props[PropertyProxyPassword])
		}
		settings.Config.ProxyURL = proxy.String()
	}

	return settings, nil
}

// GridFSSettings is the decoded configuration of a GridFS value storage.
type GridFSSettings struct {
	Config gridfs.Config
}

// ParseGridFSProperties decodes the properties of a GridFS value storage.
// Without a collection-name-suffix the bucket is named after the repository
// and the workspace.
func ParseGridFSProperties(props Properties, repository, workspace string) (settings GridFSSettings, err error) {
	settings.Config.URI = props[PropertyConnectionURI]
	if settings.Config.URI == "" {
		return settings, Error.New("property %q is required", PropertyConnectionURI)
	}

	suffix := props[PropertyCollectionNameSuffix]
	if suffix == "" {
		suffix = repository + "_" + workspace
	}
	settings.Config.Bucket = gridfs.CollectionName(GridFSBucketPrefix, suffix)
	return settings, nil
}

// parseTimeout accepts a number of milliseconds or a duration such as "5s".
func parseTimeout(v string) (time.Duration, error) {
	if millis, err := cast.ToInt64E(v); err == nil {
		return time.Duration(millis) * time.Millisecond, nil
	}
	return cast.ToDurationE(v)
}

func propertyError(name string, err error) error {
	return Error.New("invalid property %q: %v", name, err)
}

// Open connects the blob backend described by definition and returns the
// storage on top of it.
func Open(ctx context.Context, log *zap.Logger, definition Definition, repository, workspace string, reclaimer *orphans.Reclaimer, spool blobstore.SpoolConfig) (_ *Storage, err error) {
	defer mon.Task()(&ctx)(&err)

	log = log.Named(definition.ID)

	var driver blobstore.Driver
	var layout blobstore.Layout
	switch definition.Type {
	case TypeS3:
		settings, err := ParseS3Properties(definition.Properties, repository, workspace)
		if err != nil {
			return nil, err
		}
		s3store.SetMaxRetries(settings.MaxErrorRetry)
		driver, err = s3store.Open(ctx, log, settings.Config)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		layout = blobstore.ShardedLayout{Prefix: settings.KeyPrefix, Depth: blobstore.DefaultShardDepth}
	case TypeGridFS:
		settings, err := ParseGridFSProperties(definition.Properties, repository, workspace)
		if err != nil {
			return nil, err
		}
		driver, err = gridfs.Open(ctx, log, settings.Config)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		layout = blobstore.FlatLayout{}
	default:
		return nil, Error.New("unknown value storage type %q", definition.Type)
	}

	return New(log, definition.ID, driver, layout, reclaimer, spool), nil
}
