package repository

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commandRecorder answers commands in process so no Redis server is needed.
type commandRecorder struct {
	mu     sync.Mutex
	args   [][]any
	claim  bool
	failed error
}

func (r *commandRecorder) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled in tests")
	}
}

func (r *commandRecorder) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		r.mu.Lock()
		r.args = append(r.args, cmd.Args())
		r.mu.Unlock()
		if r.failed != nil {
			cmd.SetErr(r.failed)
			return r.failed
		}
		switch c := cmd.(type) {
		case *redis.BoolCmd:
			c.SetVal(r.claim)
		case *redis.IntCmd:
			c.SetVal(1)
		}
		return nil
	}
}

func (r *commandRecorder) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func newRecordedClient(rec *commandRecorder) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(rec)
	return client
}

func TestRedisDeduperClaimUsesSetNXWithTTL(t *testing.T) {
	rec := &commandRecorder{claim: true}
	client := newRecordedClient(rec)
	defer client.Close()
	deduper := NewRedisBreachDeduper(client, 48*time.Hour)

	claimed, err := deduper.Claim(context.Background(), "t-1:BREACHED_RESPONSE:2024-03-04")
	require.NoError(t, err)
	assert.True(t, claimed)

	require.Len(t, rec.args, 1)
	args := rec.args[0]
	require.Len(t, args, 6)
	assert.Equal(t, "set", args[0])
	assert.Equal(t, "sla:breach:t-1:BREACHED_RESPONSE:2024-03-04", args[1])
	assert.Equal(t, "ex", args[3])
	assert.EqualValues(t, 172800, args[4])
	assert.Equal(t, "nx", args[5])
}

func TestRedisDeduperClaimAlreadyTaken(t *testing.T) {
	rec := &commandRecorder{claim: false}
	client := newRecordedClient(rec)
	defer client.Close()

	claimed, err := NewRedisBreachDeduper(client, time.Hour).Claim(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRedisDeduperWithoutTTLUsesPlainSetNX(t *testing.T) {
	rec := &commandRecorder{claim: true}
	client := newRecordedClient(rec)
	defer client.Close()

	_, err := NewRedisBreachDeduper(client, 0).Claim(context.Background(), "k")
	require.NoError(t, err)
	require.Len(t, rec.args, 1)
	assert.Equal(t, []any{"setnx", "sla:breach:k"}, rec.args[0][:2])
}

func TestRedisDeduperReleaseDeletesKey(t *testing.T) {
	rec := &commandRecorder{}
	client := newRecordedClient(rec)
	defer client.Close()

	require.NoError(t, NewRedisBreachDeduper(client, time.Hour).Release(context.Background(), "k"))
	require.Len(t, rec.args, 1)
	assert.Equal(t, []any{"del", "sla:breach:k"}, rec.args[0])
}

func TestRedisDeduperSurfacesErrors(t *testing.T) {
	rec := &commandRecorder{failed: errors.New("connection refused")}
	client := newRecordedClient(rec)
	defer client.Close()

	claimed, err := NewRedisBreachDeduper(client, time.Hour).Claim(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, claimed)
}
