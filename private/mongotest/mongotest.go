// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package mongotest locates the MongoDB server used by tests.
package mongotest

import (
	"os"
	"testing"
)

// EnvURI names the environment variable holding the test server URI.
const EnvURI = "STORJ_TEST_MONGO"

// URI returns the connection URI of the test server and skips the test when
// none is configured.
func URI(t testing.TB) string {
	uri := os.Getenv(EnvURI)
	if uri == "" || uri == "omit" {
		t.Skipf("%s is not set", EnvURI)
	}
	return uri
}
