package notifications

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.PublishUser(context.Background(), 1, "payload"))
	assert.NoError(t, n.PublishBroadcast(context.Background(), "payload"))
	assert.NoError(t, n.StartSubscriber(context.Background(), func(string, string) {
		t.Fatal("no messages expected")
	}))
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		userID   uint
		expected string
	}{
		{1, "events:user:1"},
		{100, "events:user:100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, UserChannel(tt.userID))
		id, ok := parseUserChannel(tt.expected)
		assert.True(t, ok)
		assert.Equal(t, tt.userID, id)
	}
}

func TestParseUserChannel_Rejects(t *testing.T) {
	t.Parallel()
	for _, channel := range []string{"events:broadcast", "events:user:", "events:user:abc", "events:user:0", "other:user:1"} {
		_, ok := parseUserChannel(channel)
		assert.False(t, ok, channel)
	}
}

func TestEvent_Encode(t *testing.T) {
	t.Parallel()
	msg, err := Event{Type: "post_reaction_updated", Payload: map[string]any{"post_id": 7}}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"post_reaction_updated","payload":{"post_id":7}}`, msg)
}

func TestNotifier_SubscriberStopsOnCancel(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var received int32
	payloads := make(chan string, 4)
	require.NoError(t, n.StartSubscriber(ctx, func(_ string, payload string) {
		atomic.AddInt32(&received, 1)
		payloads <- payload
	}))

	require.NoError(t, n.PublishBroadcast(context.Background(), "before-cancel"))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)

	select {
	case <-payloads:
	default:
	}

	require.NoError(t, n.PublishBroadcast(context.Background(), "after-cancel"))
	assert.Never(t, func() bool {
		select {
		case payload := <-payloads:
			return payload == "after-cancel"
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestNotifier_SubscriberSurvivesPanic(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	require.NoError(t, n.StartSubscriber(ctx, func(_ string, payload string) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
	}))

	require.NoError(t, n.PublishBroadcast(ctx, "first"))
	require.NoError(t, n.PublishBroadcast(ctx, "second"))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 2
	}, time.Second, 10*time.Millisecond)
}
