package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/livechat-harvester/internal/archive"
	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/storage/memory"
)

type fakeLister struct {
	videos map[string][]chat.Video
	errs   map[string]error
	after  map[string]time.Time
}

func (l *fakeLister) ListCompleted(_ context.Context, channelID string, after time.Time) ([]chat.Video, error) {
	if l.after == nil {
		l.after = map[string]time.Time{}
	}
	l.after[channelID] = after
	if err := l.errs[channelID]; err != nil {
		return nil, err
	}
	return l.videos[channelID], nil
}

func video(id, published string) chat.Video {
	return chat.Video{VideoID: id, ChannelID: "UC1", Title: id, PublishedAt: published, Duration: "PT1H"}
}

func TestMergeVideos(t *testing.T) {
	t.Parallel()

	existing := []chat.Video{video("b", "2024-01-02T00:00:00Z"), video("a", "2024-01-01T00:00:00Z")}
	renamed := video("a", "2024-01-01T00:00:00Z")
	renamed.Title = "renamed"
	merged, added := MergeVideos(existing, []chat.Video{video("c", "2024-01-03T00:00:00Z"), renamed})

	assert.Equal(t, 1, added)
	require.Len(t, merged, 3)
	assert.Equal(t, "a", merged[0].VideoID)
	assert.Equal(t, "renamed", merged[0].Title)
	assert.Equal(t, "b", merged[1].VideoID)
	assert.Equal(t, "c", merged[2].VideoID)
}

func newArchive(t *testing.T, channels []chat.Channel) *archive.Archive {
	t.Helper()
	store := memory.NewBlobStore()
	if channels != nil {
		data, err := json.Marshal(channels)
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), "channels.json", archive.ContentTypeJSON, bytes.NewReader(data))
		require.NoError(t, err)
	}
	return archive.New(store, archive.DefaultPaths())
}

func TestSyncAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newArchive(t, []chat.Channel{{Name: "One", ChannelID: "UC1"}, {Name: "Two", ChannelID: "UC2"}})
	require.NoError(t, a.SaveCatalog(ctx, "UC1", []chat.Video{video("a", "2024-01-01T00:00:00Z"), video("b", "2024-02-01T10:00:00Z")}))

	lister := &fakeLister{videos: map[string][]chat.Video{
		"UC1": {video("c", "2024-03-01T00:00:00Z")},
		"UC2": {video("x", "2024-01-05T00:00:00Z"), video("y", "2024-01-04T00:00:00Z")},
	}}
	sum, err := New(a, lister, nil).SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Channels: 2, Added: 3}, sum)

	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 1, 0, time.UTC), lister.after["UC1"])
	assert.True(t, lister.after["UC2"].IsZero())

	uc1, err := a.LoadCatalog(ctx, "UC1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(uc1))
	uc2, err := a.LoadCatalog(ctx, "UC2")
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, ids(uc2))
}

func TestSyncAllStopsOnQuota(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newArchive(t, []chat.Channel{{ChannelID: "UC1"}, {ChannelID: "UC2"}})
	lister := &fakeLister{errs: map[string]error{"UC1": &chat.QuotaError{Err: errors.New("403")}}}

	sum, err := New(a, lister, nil).SyncAll(ctx)
	require.ErrorIs(t, err, chat.ErrUpstreamQuota)
	assert.Zero(t, sum.Channels)
	assert.NotContains(t, lister.after, "UC2")
	_, err = a.LoadCatalog(ctx, "UC1")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestSyncAllMissingChannels(t *testing.T) {
	t.Parallel()

	_, err := New(newArchive(t, nil), &fakeLister{}, nil).SyncAll(context.Background())
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func TestSyncChannelBadPublishedAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := newArchive(t, nil)
	require.NoError(t, a.SaveCatalog(ctx, "UC1", []chat.Video{video("a", "yesterday")}))
	_, err := New(a, &fakeLister{}, nil).SyncChannel(ctx, chat.Channel{ChannelID: "UC1"})
	var fieldErr *chat.FieldError
	require.ErrorAs(t, err, &fieldErr)
}

func ids(videos []chat.Video) []string {
	out := make([]string, len(videos))
	for i, v := range videos {
		out[i] = v.VideoID
	}
	return out
}
