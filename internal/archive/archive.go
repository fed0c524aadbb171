// Package archive reads and writes the harvester's JSON collections on top of an
// object store: the channel list, per-channel video catalogs, per-video comment
// collections and their analytics exports.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/storage"
)

// Content types used for stored objects.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeNDJSON = "application/x-ndjson"
)

// Archive is a typed view over a storage.Provider.
type Archive struct {
	store storage.Provider
	paths Paths
}

// New wires an Archive.
func New(store storage.Provider, paths Paths) *Archive {
	if paths == (Paths{}) {
		paths = DefaultPaths()
	}
	return &Archive{store: store, paths: paths}
}

// Paths returns the object layout.
func (a *Archive) Paths() Paths { return a.paths }

// Store returns the underlying provider.
func (a *Archive) Store() storage.Provider { return a.store }

// ListObjects lists object names under prefix.
func (a *Archive) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	names, err := a.store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return names, nil
}

// LoadComments returns the stored collection, or an empty slice when none exists.
func (a *Archive) LoadComments(ctx context.Context, channelID, videoID string) ([]chat.Message, error) {
	var messages []chat.Message
	err := a.readJSON(ctx, a.paths.CommentsObject(channelID, videoID), &messages)
	if errors.Is(err, chat.ErrNotFound) {
		return []chat.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ReadComments is LoadComments without the missing-object fallback.
func (a *Archive) ReadComments(ctx context.Context, channelID, videoID string) ([]chat.Message, error) {
	var messages []chat.Message
	if err := a.readJSON(ctx, a.paths.CommentsObject(channelID, videoID), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SaveComments replaces the stored collection.
func (a *Archive) SaveComments(ctx context.Context, channelID, videoID string, messages []chat.Message) error {
	if messages == nil {
		messages = []chat.Message{}
	}
	return a.writeJSON(ctx, a.paths.CommentsObject(channelID, videoID), messages)
}

// CommentedVideos returns the ids of videos with a stored comment collection.
func (a *Archive) CommentedVideos(ctx context.Context, channelID string) (map[string]struct{}, error) {
	prefix := a.paths.CommentsPrefix(channelID)
	names, err := a.store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list comments for %s: %w", channelID, err)
	}
	out := make(map[string]struct{}, len(names))
	for _, name := range names {
		rest := strings.TrimPrefix(name, prefix)
		if strings.Contains(rest, "/") || path.Ext(rest) != ".json" {
			continue
		}
		out[strings.TrimSuffix(rest, ".json")] = struct{}{}
	}
	return out, nil
}

// LoadCatalog returns a channel's catalog. A missing object wraps chat.ErrNotFound.
func (a *Archive) LoadCatalog(ctx context.Context, channelID string) ([]chat.Video, error) {
	return a.ReadCatalogObject(ctx, a.paths.CatalogObject(channelID))
}

// ReadCatalogObject decodes a catalog stored under an explicit object name.
func (a *Archive) ReadCatalogObject(ctx context.Context, name string) ([]chat.Video, error) {
	var videos []chat.Video
	if err := a.readJSON(ctx, name, &videos); err != nil {
		return nil, err
	}
	return videos, nil
}

// SaveCatalog replaces a channel's catalog.
func (a *Archive) SaveCatalog(ctx context.Context, channelID string, videos []chat.Video) error {
	if videos == nil {
		videos = []chat.Video{}
	}
	return a.writeJSON(ctx, a.paths.CatalogObject(channelID), videos)
}

// LoadChannels reads the channel list.
func (a *Archive) LoadChannels(ctx context.Context) ([]chat.Channel, error) {
	var channels []chat.Channel
	if err := a.readJSON(ctx, a.paths.Channels, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// SaveAnalytics writes an NDJSON export.
func (a *Archive) SaveAnalytics(ctx context.Context, channelID, videoID string, data []byte) (string, error) {
	uri, err := a.store.PutObject(ctx, a.paths.AnalyticsObject(channelID, videoID), ContentTypeNDJSON, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write analytics %s/%s: %w", channelID, videoID, err)
	}
	return uri, nil
}

// AnalyticsExists reports whether an export was already written.
func (a *Archive) AnalyticsExists(ctx context.Context, channelID, videoID string) (bool, error) {
	ok, err := a.store.ObjectExists(ctx, a.paths.AnalyticsObject(channelID, videoID))
	if err != nil {
		return false, fmt.Errorf("stat analytics %s/%s: %w", channelID, videoID, err)
	}
	return ok, nil
}

func (a *Archive) readJSON(ctx context.Context, name string, out any) error {
	data, err := a.store.GetObject(ctx, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", chat.ErrParse, name, err)
	}
	return nil
}

func (a *Archive) writeJSON(ctx context.Context, name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if _, err := a.store.PutObject(ctx, name, ContentTypeJSON, bytes.NewReader(bytes.TrimRight(buf.Bytes(), "\n"))); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
