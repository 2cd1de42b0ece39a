package queueadapter

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bossjones/gearman-server/internal/protocol"
)

// redisAddr returns an address to probe, preferring GEARMAN_TEST_REDIS_ADDR
// so CI environments with a real redis available can opt in.
func redisAddr() string {
	if addr := os.Getenv("GEARMAN_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:6379"
}

func TestRedisAddDoneReplay(t *testing.T) {
	addr := redisAddr()
	conn, err := net.DialTimeout("tcp", addr, 0)
	if err != nil {
		t.Skipf("no redis reachable at %s, skipping: %v", addr, err)
	}
	conn.Close()

	r := NewRedis(addr, 4)
	defer r.Close()

	require.NoError(t, r.Add(Record{Unique: "u1-test", Function: "reverse", Data: []byte("hello"), Priority: protocol.PriorityNormal}))
	defer r.Done("u1-test", "reverse")

	found := false
	require.NoError(t, r.Replay(func(rec Record) error {
		if rec.Unique == "u1-test" {
			found = true
		}
		return nil
	}))
	require.True(t, found, "expected Replay to surface the added record")

	require.NoError(t, r.Done("u1-test", "reverse"))

	found = false
	require.NoError(t, r.Replay(func(rec Record) error {
		if rec.Unique == "u1-test" {
			found = true
		}
		return nil
	}))
	require.False(t, found, "expected Done to remove the record from subsequent replays")
}
