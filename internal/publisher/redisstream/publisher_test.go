package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	args   []*redis.XAddArgs
	err    error
	closed bool
}

func (f *fakeClient) XAdd(_ context.Context, args *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, args)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	return redis.NewStringResult("1700000000000-0", nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestPublishAppendsJSONEntry(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	pub := New(client, 1000)
	pub.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	id, err := pub.Publish(context.Background(), "catalog.exports", map[string]any{"run_id": "r1"})
	require.NoError(t, err)
	require.Equal(t, "1700000000000-0", id)

	require.Len(t, client.args, 1)
	args := client.args[0]
	require.Equal(t, "catalog.exports", args.Stream)
	require.EqualValues(t, 1000, args.MaxLen)
	require.True(t, args.Approx)

	values, ok := args.Values.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "2024-05-01T12:00:00Z", values["timestamp"])
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &payload))
	require.Equal(t, "r1", payload["run_id"])

	require.NoError(t, pub.Close())
	require.True(t, client.closed)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	pub := New(&fakeClient{err: boom}, 0)
	_, err := pub.Publish(context.Background(), "s", "x")
	require.ErrorIs(t, err, boom)

	_, err = pub.Publish(context.Background(), " ", "x")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "s", make(chan int))
	require.Error(t, err)
}

func TestOpenRequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{})
	require.Error(t, err)

	pub, err := Open(Config{Addr: "127.0.0.1:6379", MaxLen: 10})
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}
