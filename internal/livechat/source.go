package livechat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/embedded"
	"github.com/JakeFAU/livechat-harvester/internal/payload"
)

// Default endpoint templates. {video_id} and {continuation} are substituted query-escaped.
const (
	DefaultWatchURL  = "https://www.youtube.com/watch?v={video_id}"
	DefaultReplayURL = "https://www.youtube.com/live_chat_replay?continuation={continuation}"
)

// DefaultReplayLabels are the sub-menu titles that select the full chat replay.
var DefaultReplayLabels = []string{"Live chat replay", "チャットのリプレイ"}

// Page is one fetched page of raw chat items. An empty Next means no further pages.
type Page struct {
	Items []payload.Value
	Next  string
}

// PageSource yields chat replay pages addressed by continuation cursor.
type PageSource interface {
	// InitialCursor returns the cursor of the first replay page, or an error
	// wrapping chat.ErrNotAvailable when the video has no chat replay.
	InitialCursor(ctx context.Context, videoID string) (string, error)
	// FetchPage fetches exactly one page.
	FetchPage(ctx context.Context, cursor string) (Page, error)
}

// FetchRequest describes one GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result of a successful GET.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Fetcher performs HTTP GETs with the configured static headers.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Pacer delays a fetch until it may proceed.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// SourceConfig configures the HTTP page source.
type SourceConfig struct {
	WatchURL     string
	ReplayURL    string
	ReplayLabels []string
	Headers      http.Header
}

// Source is a PageSource backed by the public watch and replay pages.
type Source struct {
	cfg     SourceConfig
	fetcher Fetcher
	pacer   Pacer
	logger  *zap.Logger
}

var _ PageSource = (*Source)(nil)

// NewSource wires a Source. pacer may be nil.
func NewSource(cfg SourceConfig, fetcher Fetcher, pacer Pacer, logger *zap.Logger) *Source {
	if cfg.WatchURL == "" {
		cfg.WatchURL = DefaultWatchURL
	}
	if cfg.ReplayURL == "" {
		cfg.ReplayURL = DefaultReplayURL
	}
	if len(cfg.ReplayLabels) == 0 {
		cfg.ReplayLabels = DefaultReplayLabels
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{cfg: cfg, fetcher: fetcher, pacer: pacer, logger: logger}
}

// InitialCursor loads the watch page and picks the replay view's reload continuation.
func (s *Source) InitialCursor(ctx context.Context, videoID string) (string, error) {
	target := expand(s.cfg.WatchURL, "{video_id}", videoID)
	state, err := s.load(ctx, target, embedded.InitialData)
	if err != nil {
		return "", err
	}

	bar, err := state.Dig("contents", "twoColumnWatchNextResults")
	if err != nil {
		return "", fmt.Errorf("watch page state: %w", err)
	}
	renderer, err := bar.Dig("conversationBar", "liveChatRenderer")
	if err != nil {
		var missing *payload.MissingFieldError
		if errors.As(err, &missing) {
			return "", fmt.Errorf("%w: video %s has no live chat renderer", chat.ErrNotAvailable, videoID)
		}
		return "", fmt.Errorf("watch page state: %w", err)
	}
	menu, err := renderer.Dig("header", "liveChatHeaderRenderer", "viewSelector", "sortFilterSubMenuRenderer", "subMenuItems")
	if err != nil {
		return "", fmt.Errorf("live chat header: %w", err)
	}
	items, err := menu.Array()
	if err != nil {
		return "", fmt.Errorf("live chat header: %w", err)
	}

	titles := make([]string, 0, len(items))
	for _, item := range items {
		title, err := str(item, "title")
		if err != nil {
			return "", fmt.Errorf("live chat menu: %w", err)
		}
		titles = append(titles, title)
		if !s.isReplayLabel(title) {
			continue
		}
		cursor, err := str(item, "continuation", "reloadContinuationData", "continuation")
		if err != nil {
			return "", fmt.Errorf("live chat menu %q: %w", title, err)
		}
		return cursor, nil
	}
	s.logger.Info("chat replay menu not found",
		zap.String("video_id", videoID),
		zap.Strings("candidates", titles),
	)
	return "", fmt.Errorf("%w: video %s menu %q", chat.ErrNotAvailable, videoID, titles)
}

// FetchPage fetches one replay page. A continuation without actions or continuations
// is the end of the stream.
func (s *Source) FetchPage(ctx context.Context, cursor string) (Page, error) {
	target := expand(s.cfg.ReplayURL, "{continuation}", cursor)
	state, err := s.load(ctx, target, embedded.ReplayData)
	if err != nil {
		return Page{}, err
	}
	cont, err := state.Dig("continuationContents", "liveChatContinuation")
	if err != nil {
		return Page{}, fmt.Errorf("replay page state: %w", err)
	}
	if !cont.Has("actions") && !cont.Has("continuations") {
		s.logger.Debug("replay stream ended", zap.String("cursor", cursor))
		return Page{}, nil
	}

	var page Page
	if cont.Has("actions") {
		if page.Items, err = replayItems(cont); err != nil {
			return Page{}, err
		}
	}
	if cont.Has("continuations") {
		if page.Next, err = nextCursor(cont); err != nil {
			return Page{}, err
		}
	}
	return page, nil
}

func replayItems(cont payload.Value) ([]payload.Value, error) {
	actionsValue, err := cont.Get("actions")
	if err != nil {
		return nil, err
	}
	actions, err := actionsValue.Array()
	if err != nil {
		return nil, err
	}
	var items []payload.Value
	for _, action := range actions {
		if !action.Has("replayChatItemAction") {
			continue
		}
		innerValue, err := action.Dig("replayChatItemAction", "actions")
		if err != nil {
			return nil, err
		}
		inner, err := innerValue.Array()
		if err != nil {
			return nil, err
		}
		for _, chatAction := range inner {
			if !chatAction.Has("addChatItemAction") {
				continue
			}
			item, err := chatAction.Dig("addChatItemAction", "item")
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func nextCursor(cont payload.Value) (string, error) {
	listValue, err := cont.Get("continuations")
	if err != nil {
		return "", err
	}
	list, err := listValue.Array()
	if err != nil {
		return "", err
	}
	for _, c := range list {
		if c.Has("liveChatReplayContinuationData") {
			return str(c, "liveChatReplayContinuationData", "continuation")
		}
	}
	return "", nil
}

func (s *Source) load(ctx context.Context, target string, pattern embedded.Pattern) (payload.Value, error) {
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx, target); err != nil {
			return payload.Value{}, fmt.Errorf("pace %s: %w", target, err)
		}
	}
	resp, err := s.fetcher.Fetch(ctx, FetchRequest{URL: target, Headers: s.cfg.Headers})
	if err != nil {
		return payload.Value{}, err
	}
	s.logger.Debug("page fetched",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
	)
	state, err := embedded.Extract(resp.Body, pattern)
	if err != nil {
		return payload.Value{}, fmt.Errorf("extract %s: %w", target, err)
	}
	return state, nil
}

func (s *Source) isReplayLabel(title string) bool {
	for _, label := range s.cfg.ReplayLabels {
		if strings.EqualFold(strings.TrimSpace(title), label) {
			return true
		}
	}
	return false
}

func expand(template, placeholder, value string) string {
	return strings.ReplaceAll(template, placeholder, url.QueryEscape(value))
}
