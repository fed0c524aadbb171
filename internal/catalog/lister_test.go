package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
)

type apiStub struct {
	mu       sync.Mutex
	searches []map[string]string
	quota    bool
}

func (s *apiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	q := r.URL.Query()
	switch {
	case strings.HasSuffix(r.URL.Path, "/search"):
		s.mu.Lock()
		s.searches = append(s.searches, map[string]string{
			"channelId":      q.Get("channelId"),
			"eventType":      q.Get("eventType"),
			"type":           q.Get("type"),
			"maxResults":     q.Get("maxResults"),
			"publishedAfter": q.Get("publishedAfter"),
			"pageToken":      q.Get("pageToken"),
			"part":           strings.Join(q["part"], ","),
		})
		s.mu.Unlock()
		if s.quota {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quota","errors":[{"domain":"youtube.quota","reason":"quotaExceeded","message":"quota"}]}}`))
			return
		}
		if q.Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"nextPageToken":"p2","items":[
				{"id":{"kind":"youtube#video","videoId":"a"},"snippet":{"channelId":"UC1","title":"A","publishedAt":"2024-01-01T00:00:00Z"}},
				{"id":{"kind":"youtube#playlist","playlistId":"pl"},"snippet":{"channelId":"UC1","title":"P","publishedAt":"2024-01-01T00:00:00Z"}}
			]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[
			{"id":{"kind":"youtube#video","videoId":"b"},"snippet":{"channelId":"UC1","title":"B","publishedAt":"2024-01-02T00:00:00Z"}}
		]}`))
	case strings.HasSuffix(r.URL.Path, "/videos"):
		var items []string
		for _, id := range strings.Split(strings.Join(q["id"], ","), ",") {
			items = append(items, `{"id":"`+id+`","contentDetails":{"duration":"PT`+strings.ToUpper(id)+`1M"}}`)
		}
		_, _ = w.Write([]byte(`{"items":[` + strings.Join(items, ",") + `]}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestLister(t *testing.T, stub *apiStub) *YouTubeLister {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	l, err := NewYouTubeLister(context.Background(), "test-key",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return l
}

func TestYouTubeListerPages(t *testing.T) {
	t.Parallel()

	stub := &apiStub{}
	l := newTestLister(t, stub)

	videos, err := l.ListCompleted(context.Background(), "UC1", time.Date(2023, 12, 31, 0, 0, 1, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []chat.Video{
		{VideoID: "a", ChannelID: "UC1", Title: "A", PublishedAt: "2024-01-01T00:00:00Z", Duration: "PTA1M"},
		{VideoID: "b", ChannelID: "UC1", Title: "B", PublishedAt: "2024-01-02T00:00:00Z", Duration: "PTB1M"},
	}, videos)

	require.Len(t, stub.searches, 2)
	first := stub.searches[0]
	assert.Equal(t, "UC1", first["channelId"])
	assert.Equal(t, "completed", first["eventType"])
	assert.Equal(t, "video", first["type"])
	assert.Equal(t, "50", first["maxResults"])
	assert.Equal(t, "2023-12-31T00:00:01Z", first["publishedAfter"])
	assert.Equal(t, "id,snippet", first["part"])
	assert.Equal(t, "p2", stub.searches[1]["pageToken"])
}

func TestYouTubeListerWithoutAfter(t *testing.T) {
	t.Parallel()

	stub := &apiStub{}
	_, err := newTestLister(t, stub).ListCompleted(context.Background(), "UC1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, stub.searches[0]["publishedAfter"])
}

func TestYouTubeListerQuota(t *testing.T) {
	t.Parallel()

	_, err := newTestLister(t, &apiStub{quota: true}).ListCompleted(context.Background(), "UC1", time.Time{})
	require.ErrorIs(t, err, chat.ErrUpstreamQuota)
	var apiErr *googleapi.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Code)
}

func TestNewYouTubeListerRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewYouTubeLister(context.Background(), "")
	require.ErrorIs(t, err, chat.ErrConfig)
}
