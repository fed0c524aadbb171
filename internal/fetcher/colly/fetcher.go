// Package collyfetcher implements livechat.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/livechat"
)

// DefaultUserAgent is a desktop browser string sent when none is configured.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Headers     http.Header
	Timeout     time.Duration
	MaxBodySize int
}

// Fetcher implements livechat.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

var _ livechat.Fetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Replay cursors revisit the same endpoint, so URL revisits are allowed.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly. Network failures and non-2xx
// responses wrap chat.ErrTransport.
func (f *Fetcher) Fetch(ctx context.Context, request livechat.FetchRequest) (livechat.FetchResponse, error) {
	return f.runCollector(ctx, request)
}

// visitOutcome is owned by the visiting goroutine until it is sent.
type visitOutcome struct {
	result   livechat.FetchResponse
	fetchErr error
	visitErr error
}

func (f *Fetcher) buildCollector(
	request livechat.FetchRequest,
	result *livechat.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = DefaultUserAgent
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	if f.cfg.MaxBodySize > 0 {
		collector.MaxBodySize = f.cfg.MaxBodySize
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	f.configureCollectorHooks(collector, request, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request livechat.FetchRequest,
	result *livechat.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(f.cfg.Headers, r)
		copyHeaders(request.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = livechat.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, request livechat.FetchRequest) (livechat.FetchResponse, error) {
	done := make(chan visitOutcome, 1)
	go func() {
		var out visitOutcome
		collector := f.buildCollector(request, &out.result, &out.fetchErr)
		out.visitErr = collector.Visit(request.URL)
		done <- out
	}()

	select {
	case <-ctx.Done():
		return livechat.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case out := <-done:
		if out.fetchErr != nil {
			return livechat.FetchResponse{}, fmt.Errorf("%w: fetch %s: %v", chat.ErrTransport, request.URL, out.fetchErr)
		}
		if out.visitErr != nil {
			return livechat.FetchResponse{}, fmt.Errorf("%w: visit %s: %v", chat.ErrTransport, request.URL, out.visitErr)
		}
		return out.result, nil
	}
}

// copyHeaders sets rather than adds so request headers override configured ones.
func copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
