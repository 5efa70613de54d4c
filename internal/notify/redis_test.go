package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// publishRecorder answers PUBLISH in process so no Redis server is needed.
type publishRecorder struct {
	args [][]any
	err  error
}

func (r *publishRecorder) DialHook(redis.DialHook) redis.DialHook {
	return func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("dial disabled in tests")
	}
}

func (r *publishRecorder) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		r.args = append(r.args, cmd.Args())
		if r.err != nil {
			cmd.SetErr(r.err)
			return r.err
		}
		if c, ok := cmd.(*redis.IntCmd); ok {
			c.SetVal(1)
		}
		return nil
	}
}

func (r *publishRecorder) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisNotifierPublishesMessage(t *testing.T) {
	rec := &publishRecorder{}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(rec)
	defer client.Close()

	n := NewRedisNotifier(client, "sla:escalations")
	err := n.Notify(context.Background(), domain.BreachBreachedResponse, "t-1", []string{"agent-1", "mgr-1"},
		Context{EventID: "e-1", TicketID: "t-1", Kind: domain.BreachBreachedResponse})
	require.NoError(t, err)

	require.Len(t, rec.args, 1)
	args := rec.args[0]
	require.Len(t, args, 3)
	assert.Equal(t, "publish", args[0])
	assert.Equal(t, "sla:escalations", args[1])

	payload, ok := args[2].([]byte)
	require.True(t, ok)
	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "BREACHED_RESPONSE", got["kind"])
	assert.Equal(t, "t-1", got["ticket_id"])
	assert.Equal(t, []any{"agent-1", "mgr-1"}, got["recipient_ids"])
	assert.Equal(t, "e-1", got["context"].(map[string]any)["event_id"])
}

func TestRedisNotifierWrapsPublishError(t *testing.T) {
	rec := &publishRecorder{err: errors.New("connection reset")}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(rec)
	defer client.Close()

	err := NewRedisNotifier(client, "sla:escalations").Notify(context.Background(), domain.BreachBreachedResolution, "t-1", nil, Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish sla:escalations")
	assert.ErrorIs(t, err, rec.err)
}
