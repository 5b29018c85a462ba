package main

import (
	"context"
	"github.com/myrjola/profilescan/internal/e2etest"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

func testLookupEnv(key string) (string, bool) {
	switch key {
	case "PROFILESCAN_ADDR":
		return "localhost:0", true
	case "PROFILESCAN_SQLITE_URL":
		return ":memory:", true
	default:
		return "", false
	}
}

// startTestServer runs the application on a random port until the test ends.
func startTestServer(t *testing.T, lookupEnv func(string) (string, bool)) *e2etest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	server, err := e2etest.StartServer(ctx, io.Discard, lookupEnv, run)
	require.NoError(t, err)
	return server
}
