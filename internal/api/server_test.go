package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/catalog"
	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/ledger"
	"github.com/JakeFAU/livechat-harvester/internal/storage/memory"
)

type fakeCrawls struct {
	mu   sync.Mutex
	reqs []chat.CrawlRequest
	err  error
}

func (f *fakeCrawls) Handle(_ context.Context, req chat.CrawlRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.err
}

type fakeObjects struct {
	names []string
	n     int
	err   error
}

func (f *fakeObjects) HandleObject(_ context.Context, name string) (int, error) {
	f.names = append(f.names, name)
	return f.n, f.err
}

type fakeSyncer struct {
	sum catalog.Summary
	err error
}

func (f fakeSyncer) SyncAll(context.Context) (catalog.Summary, error) {
	return f.sum, f.err
}

func envelope(t *testing.T, data string, attrs map[string]string) *bytes.Reader {
	t.Helper()
	body := map[string]any{
		"message": map[string]any{
			"data":       base64.StdEncoding.EncodeToString([]byte(data)),
			"attributes": attrs,
			"messageId":  "123",
		},
		"subscription": "projects/p/subscriptions/s",
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func serve(s *Server, method, target string, body *bytes.Reader) *httptest.ResponseRecorder {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	s := NewServer(Dependencies{}, Options{}, zap.NewNop())
	rec := serve(s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(s, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "livechat_pages_fetched_total")

	notReady := NewServer(Dependencies{Ready: func(context.Context) error { return errors.New("down") }}, Options{}, nil)
	rec = serve(notReady, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_PushCrawl(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		data       string
		attrs      map[string]string
		handlerErr error
		wantCode   int
		wantReq    *chat.CrawlRequest
	}{
		{
			name:     "json body",
			data:     `{"channel_id":"UC1","video_id":"v1","continuation":"c"}`,
			wantCode: http.StatusNoContent,
			wantReq:  &chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1", Continuation: "c"},
		},
		{
			name:     "attributes only",
			data:     "untouched_video",
			attrs:    map[string]string{"channel_id": "UC1", "video_id": "v1"},
			wantCode: http.StatusNoContent,
			wantReq:  &chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1"},
		},
		{
			name:     "undecodable is dropped",
			data:     "{}",
			wantCode: http.StatusNoContent,
		},
		{
			name:       "not available is final",
			data:       `{"channel_id":"UC1","video_id":"v1"}`,
			handlerErr: chat.ErrNotAvailable,
			wantCode:   http.StatusNoContent,
			wantReq:    &chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1"},
		},
		{
			name:       "transport failure retries",
			data:       `{"channel_id":"UC1","video_id":"v1"}`,
			handlerErr: fmt.Errorf("fetch: %w", chat.ErrTransport),
			wantCode:   http.StatusInternalServerError,
			wantReq:    &chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			crawls := &fakeCrawls{err: tt.handlerErr}
			s := NewServer(Dependencies{Crawls: crawls}, Options{}, nil)
			rec := serve(s, http.MethodPost, "/v1/pubsub/crawl", envelope(t, tt.data, tt.attrs))
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantReq == nil {
				assert.Empty(t, crawls.reqs)
				return
			}
			require.Len(t, crawls.reqs, 1)
			assert.Equal(t, *tt.wantReq, crawls.reqs[0])
		})
	}
}

func TestServer_PushCrawlBadEnvelope(t *testing.T) {
	t.Parallel()

	s := NewServer(Dependencies{Crawls: &fakeCrawls{}}, Options{}, nil)
	rec := serve(s, http.MethodPost, "/v1/pubsub/crawl", bytes.NewReader([]byte("{invalid")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(NewServer(Dependencies{}, Options{}, nil), http.MethodPost, "/v1/pubsub/crawl", envelope(t, "{}", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_StorageEvents(t *testing.T) {
	t.Parallel()

	det := &fakeObjects{n: 3}
	flat := &fakeObjects{n: 10}
	s := NewServer(Dependencies{Detector: det, Flattener: flat}, Options{}, nil)

	finalize := func(name string) map[string]string {
		return map[string]string{"objectId": name, "eventType": "OBJECT_FINALIZE", "bucketId": "b"}
	}

	rec := serve(s, http.MethodPost, "/v1/events/storage", envelope(t, "{}", finalize("videos/UC1.json")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"object":"videos/UC1.json","published":3}`, rec.Body.String())

	rec = serve(s, http.MethodPost, "/v1/events/storage", envelope(t, "{}", finalize("comments/UC1/v1.json")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"object":"comments/UC1/v1.json","rows":10}`, rec.Body.String())

	rec = serve(s, http.MethodPost, "/v1/events/storage", envelope(t, "{}", finalize("bigquery/UC1/v1.ndjson")))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(s, http.MethodPost, "/v1/events/storage", envelope(t, "{}", map[string]string{
		"objectId": "videos/UC1.json", "eventType": "OBJECT_DELETE",
	}))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []string{"videos/UC1.json"}, det.names)
	assert.Equal(t, []string{"comments/UC1/v1.json"}, flat.names)
}

func TestServer_StorageEventErrors(t *testing.T) {
	t.Parallel()

	attrs := map[string]string{"objectId": "videos/UC1.json", "eventType": "OBJECT_FINALIZE"}

	s := NewServer(Dependencies{Detector: &fakeObjects{err: errors.New("boom")}}, Options{}, nil)
	rec := serve(s, http.MethodPost, "/v1/events/storage", envelope(t, "{}", attrs))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	s = NewServer(Dependencies{Detector: &fakeObjects{err: chat.ErrNotFound}}, Options{}, nil)
	rec = serve(s, http.MethodPost, "/v1/events/storage", envelope(t, "{}", attrs))
	require.Equal(t, http.StatusNoContent, rec.Code)

	s = NewServer(Dependencies{}, Options{}, nil)
	rec = serve(s, http.MethodPost, "/v1/events/storage", envelope(t, "{}", attrs))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_CatalogSync(t *testing.T) {
	t.Parallel()

	s := NewServer(Dependencies{Catalog: fakeSyncer{sum: catalog.Summary{Channels: 2, Added: 5}}}, Options{}, nil)
	rec := serve(s, http.MethodPost, "/v1/catalog/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"channels":2,"added":5}`, rec.Body.String())

	quota := &chat.QuotaError{Err: errors.New("403")}
	s = NewServer(Dependencies{Catalog: fakeSyncer{err: fmt.Errorf("sync UC1: %w", quota)}}, Options{}, nil)
	rec = serve(s, http.MethodPost, "/v1/catalog/sync", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	s = NewServer(Dependencies{Catalog: fakeSyncer{err: errors.New("boom")}}, Options{}, nil)
	rec = serve(s, http.MethodPost, "/v1/catalog/sync", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ListRuns(t *testing.T) {
	t.Parallel()

	runs := memory.NewRunStore()
	ctx := context.Background()
	for i, vid := range []string{"v1", "v2", "v1"} {
		require.NoError(t, runs.RecordRun(ctx, ledger.Run{
			ID:        fmt.Sprintf("run-%d", i),
			VideoID:   vid,
			StartedAt: time.Unix(int64(100+i), 0).UTC(),
			State:     "done",
		}))
	}
	s := NewServer(Dependencies{Runs: runs}, Options{}, nil)

	rec := serve(s, http.MethodGet, "/v1/runs?video_id=v1&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []ledger.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "run-2", body.Runs[0].ID)

	rec = serve(s, http.MethodGet, "/v1/runs?limit=zero", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(NewServer(Dependencies{}, Options{}, nil), http.MethodGet, "/v1/runs", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	s := NewServer(Dependencies{Runs: memory.NewRunStore()}, Options{AuthEnabled: true, APIKey: "secret"}, nil)

	rec := serve(s, http.MethodGet, "/v1/runs", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodGet, "/v1/runs?api_key=secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
