package archive

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/storage"
	"github.com/JakeFAU/livechat-harvester/internal/storage/memory"
)

func strPtr(s string) *string { return &s }

func TestCommentsRoundTrip(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	a := New(store, Paths{})
	ctx := context.Background()

	empty, err := a.LoadComments(ctx, "UC1", "v1")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	_, err = a.ReadComments(ctx, "UC1", "v1")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	msgs := []chat.Message{
		{ID: "a", Kind: chat.KindTextMessage, Timestamp: 1.5, Author: chat.Author{ChannelID: "UCa", Name: "<b>"}, Text: strPtr("こんにちは & hi")},
		{ID: "b", Kind: chat.KindSuperChat, AmountString: "$5.00"},
	}
	require.NoError(t, a.SaveComments(ctx, "UC1", "v1", msgs))

	obj, ok := store.Object("comments/UC1/v1.json")
	require.True(t, ok)
	assert.Equal(t, ContentTypeJSON, obj.ContentType)
	assert.Contains(t, string(obj.Data), "こんにちは & hi")
	assert.Contains(t, string(obj.Data), `"name":"<b>"`)
	assert.NotContains(t, string(obj.Data), `"message":null`)
	assert.True(t, strings.HasPrefix(string(obj.Data), "["))

	loaded, err := a.LoadComments(ctx, "UC1", "v1")
	require.NoError(t, err)
	assert.Equal(t, msgs, loaded)
}

func TestCommentedVideos(t *testing.T) {
	t.Parallel()

	a := New(memory.NewBlobStore(), DefaultPaths())
	ctx := context.Background()
	require.NoError(t, a.SaveComments(ctx, "UC1", "v1", nil))
	require.NoError(t, a.SaveComments(ctx, "UC1", "v2", nil))
	require.NoError(t, a.SaveComments(ctx, "UC10", "v3", nil))

	got, err := a.CommentedVideos(ctx, "UC1")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"v1": {}, "v2": {}}, got)
}

func TestCatalogAndChannels(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	a := New(store, DefaultPaths())
	ctx := context.Background()

	_, err := a.LoadCatalog(ctx, "UC1")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	videos := []chat.Video{{VideoID: "v1", ChannelID: "UC1", Title: "t", PublishedAt: "2024-01-01T00:00:00Z", Duration: "PT1H"}}
	require.NoError(t, a.SaveCatalog(ctx, "UC1", videos))
	got, err := a.ReadCatalogObject(ctx, "videos/UC1.json")
	require.NoError(t, err)
	assert.Equal(t, videos, got)

	_, err = store.PutObject(ctx, "channels.json", ContentTypeJSON, strings.NewReader(`[{"name":"One","channel_id":"UC1"}]`))
	require.NoError(t, err)
	channels, err := a.LoadChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []chat.Channel{{Name: "One", ChannelID: "UC1"}}, channels)
}

func TestDecodeFailureIsParseError(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	_, err := store.PutObject(context.Background(), "comments/UC1/v1.json", "", strings.NewReader(`{not json`))
	require.NoError(t, err)

	_, err = New(store, DefaultPaths()).LoadComments(context.Background(), "UC1", "v1")
	assert.ErrorIs(t, err, chat.ErrParse)
}

func TestStoreFailuresPropagate(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	m := &storage.MockProvider{}
	m.On("GetObject", mock.Anything, "comments/UC1/v1.json").Return(nil, boom)
	m.On("PutObject", mock.Anything, "comments/UC1/v1.json", ContentTypeJSON, mock.Anything).Return("", boom)
	m.On("ObjectExists", mock.Anything, "bigquery/UC1/v1.ndjson").Return(false, boom)

	a := New(m, DefaultPaths())
	ctx := context.Background()

	_, err := a.LoadComments(ctx, "UC1", "v1")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, a.SaveComments(ctx, "UC1", "v1", nil), boom)
	_, err = a.AnalyticsExists(ctx, "UC1", "v1")
	assert.ErrorIs(t, err, boom)
	m.AssertExpectations(t)
}

func TestSaveAnalytics(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	a := New(store, DefaultPaths())
	ctx := context.Background()

	ok, err := a.AnalyticsExists(ctx, "UC1", "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	uri, err := a.SaveAnalytics(ctx, "UC1", "v1", []byte("{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "memory://bigquery/UC1/v1.ndjson", uri)

	obj, found := store.Object("bigquery/UC1/v1.ndjson")
	require.True(t, found)
	assert.Equal(t, ContentTypeNDJSON, obj.ContentType)

	ok, err = a.AnalyticsExists(ctx, "UC1", "v1")
	require.NoError(t, err)
	assert.True(t, ok)
}
