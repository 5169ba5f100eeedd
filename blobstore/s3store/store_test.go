// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package s3store_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/jcrstore/blobstore/s3store"
	"storj.io/jcrstore/blobstore/testsuite"
)

// configFromEnv parses STORJ_TEST_S3, formatted as
// http[s]://access:secret@host:port/bucket.
func configFromEnv(t *testing.T) s3store.Config {
	address := os.Getenv("STORJ_TEST_S3")
	if address == "" {
		t.Skip("STORJ_TEST_S3 is not set")
	}

	u, err := url.Parse(address)
	require.NoError(t, err)

	secret, _ := u.User.Password()
	return s3store.Config{
		Endpoint:       u.Host,
		Secure:         u.Scheme == "https",
		AccessKey:      u.User.Username(),
		SecretKey:      secret,
		Bucket:         strings.Trim(u.Path, "/"),
		MaxConnections: 10,
	}
}

func TestSuite(t *testing.T) {
	config := configFromEnv(t)

	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := s3store.Open(ctx, zaptest.NewLogger(t), config)
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	testsuite.RunTests(t, store, "test-"+testrand.UUID().String()+"/")
}

func TestOpenRequiresBucket(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	_, err := s3store.Open(ctx, zaptest.NewLogger(t), s3store.Config{Endpoint: "localhost:1"})
	require.Error(t, err)
}

func TestBatchDeleteDrainsResults(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if _, ok := r.URL.Query()["delete"]; ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
					`<Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	store, err := s3store.Open(ctx, zaptest.NewLogger(t), s3store.Config{
		Endpoint:       u.Host,
		Region:         "us-east-1",
		AccessKey:      "access",
		SecretKey:      "secret",
		Bucket:         "values",
		ConnectTimeout: time.Second,
		SocketTimeout:  5 * time.Second,
		MaxConnections: 4,
	})
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	keys := make([]string, 2500)
	for i := range keys {
		keys[i] = "values/" + strconv.Itoa(i)
	}

	for i := 0; i < 3; i++ {
		failed, err := store.BatchDelete(ctx, keys)
		if err == nil {
			require.ElementsMatch(t, keys, failed)
		} else {
			require.Equal(t, keys, failed)
		}
	}

	removing := func() bool {
		buf := make([]byte, 1<<20)
		return strings.Contains(string(buf[:runtime.Stack(buf, true)]), "removeObjects")
	}
	require.Eventually(t, func() bool { return !removing() }, 5*time.Second, 10*time.Millisecond)
}
