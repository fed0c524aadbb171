package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
)

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
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
	return srv, topic
}

func TestPublishCrawlRequest(t *testing.T) {
	t.Parallel()

	srv, topic := newTestTopic(t)
	pub := New(topic)
	defer pub.Stop()

	req := chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1", Continuation: "cursor"}
	id, err := pub.PublishCrawlRequest(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got chat.CrawlRequest
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, req, got)
	assert.Equal(t, "UC1", msgs[0].Attributes["channel_id"])
	assert.Equal(t, "v1", msgs[0].Attributes["video_id"])
	assert.Equal(t, "cursor", msgs[0].Attributes["continuation"])
}

func TestPublishCrawlRequestRejectsInvalid(t *testing.T) {
	t.Parallel()

	srv, topic := newTestTopic(t)
	pub := New(topic)
	defer pub.Stop()

	_, err := pub.PublishCrawlRequest(context.Background(), chat.CrawlRequest{ChannelID: "UC1"})
	var fieldErr *chat.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Empty(t, srv.Messages())
}

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil).PublishCrawlRequest(context.Background(), chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1"})
	require.ErrorIs(t, err, chat.ErrConfig)
}
