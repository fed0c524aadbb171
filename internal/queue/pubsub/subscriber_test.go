package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
)

type fixture struct {
	srv   *pstest.Server
	topic *pubsub.Topic
	sub   *pubsub.Subscription
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "crawl-requests")
	require.NoError(t, err)
	t.Cleanup(topic.Stop)
	sub, err := client.CreateSubscription(ctx, "crawl-workers", pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	require.NoError(t, err)
	return fixture{srv: srv, topic: topic, sub: sub}
}

func (f fixture) publish(t *testing.T, data string, attrs map[string]string) string {
	t.Helper()
	id, err := f.topic.Publish(context.Background(), &pubsub.Message{Data: []byte(data), Attributes: attrs}).Get(context.Background())
	require.NoError(t, err)
	return id
}

func TestReceiveDecodesAndAcks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.publish(t, `{"channel_id":"UC1","video_id":"v1","continuation":"c"}`, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var got []chat.CrawlRequest
	err := New(f.sub, Config{MaxOutstanding: 1}, nil).Receive(ctx, func(_ context.Context, req chat.CrawlRequest) error {
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
		cancel()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1", Continuation: "c"}, got[0])
	assert.Eventually(t, func() bool { return f.srv.Message(id).Acks > 0 }, time.Second, 10*time.Millisecond)
}

func TestReceiveFallsBackToAttributes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.publish(t, "", map[string]string{"channel_id": "UC1", "video_id": "v1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got chat.CrawlRequest
	err := New(f.sub, Config{}, nil).Receive(ctx, func(_ context.Context, req chat.CrawlRequest) error {
		got = req
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1"}, got)
}

func TestReceiveNacksRetryableFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.publish(t, `{"channel_id":"UC1","video_id":"v1"}`, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	err := New(f.sub, Config{MaxOutstanding: 1}, nil).Receive(ctx, func(context.Context, chat.CrawlRequest) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return chat.ErrTransport
		}
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts, 2)
	assert.GreaterOrEqual(t, f.srv.Message(id).Deliveries, 2)
}

func TestReceiveWithoutSubscription(t *testing.T) {
	t.Parallel()

	err := New(nil, Config{}, nil).Receive(context.Background(), func(context.Context, chat.CrawlRequest) error { return nil })
	require.ErrorIs(t, err, chat.ErrConfig)
}
