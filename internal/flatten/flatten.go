// Package flatten converts stored comment collections into newline-delimited
// JSON rows for warehouse loading.
package flatten

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/archive"
	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/metrics"
)

// Row is one analytics record.
type Row struct {
	ID               string  `json:"id"`
	ChannelID        string  `json:"channel_id"`
	VideoID          string  `json:"video_id"`
	Type             string  `json:"type"`
	Timestamp        string  `json:"timestamp"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
	ElapsedTime      string  `json:"elapsed_time"`
	AuthorChannelID  string  `json:"author_channel_id"`
	AuthorName       string  `json:"author_name"`
	Message          *string `json:"message"`
	AmountString     *string `json:"amount_string"`
}

// Archive is the slice of archive.Archive the flattener uses.
type Archive interface {
	Paths() archive.Paths
	ReadComments(ctx context.Context, channelID, videoID string) ([]chat.Message, error)
	SaveAnalytics(ctx context.Context, channelID, videoID string, data []byte) (string, error)
	AnalyticsExists(ctx context.Context, channelID, videoID string) (bool, error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// Flattener writes analytics exports.
type Flattener struct {
	archive Archive
	logger  *zap.Logger
}

// New constructs a Flattener.
func New(a Archive, logger *zap.Logger) *Flattener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flattener{archive: a, logger: logger}
}

// Rows maps messages to analytics rows.
func Rows(channelID, videoID string, messages []chat.Message) []Row {
	rows := make([]Row, 0, len(messages))
	for _, m := range messages {
		row := Row{
			ID:               m.ID,
			ChannelID:        channelID,
			VideoID:          videoID,
			Type:             string(m.Kind),
			Timestamp:        m.Time().Format(time.RFC3339Nano),
			TimestampSeconds: m.Timestamp,
			ElapsedTime:      m.ElapsedTime,
			AuthorChannelID:  m.Author.ChannelID,
			AuthorName:       m.Author.Name,
			Message:          m.Text,
		}
		if m.AmountString != "" {
			amount := m.AmountString
			row.AmountString = &amount
		}
		rows = append(rows, row)
	}
	return rows
}

// Encode renders rows as NDJSON, one object per line.
func Encode(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return nil, fmt.Errorf("encode row %s: %w", rows[i].ID, err)
		}
	}
	return buf.Bytes(), nil
}

// HandleObject converts the comment collection stored at name. Names outside the
// comments prefix are ignored. It returns the number of rows written.
func (f *Flattener) HandleObject(ctx context.Context, name string) (int, error) {
	channelID, videoID, ok, err := f.archive.Paths().ParseCommentsObject(name)
	if !ok {
		f.logger.Info("object is not a comment collection, ignoring", zap.String("object", name))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return f.Convert(ctx, channelID, videoID)
}

// Convert writes the export for one video. A missing or empty collection writes nothing.
func (f *Flattener) Convert(ctx context.Context, channelID, videoID string) (int, error) {
	logger := f.logger.With(zap.String("channel_id", channelID), zap.String("video_id", videoID))
	messages, err := f.archive.ReadComments(ctx, channelID, videoID)
	if errors.Is(err, chat.ErrNotFound) {
		logger.Info("comment collection not found")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read comments: %w", err)
	}
	if len(messages) == 0 {
		logger.Info("comment collection empty")
		return 0, nil
	}

	data, err := Encode(Rows(channelID, videoID, messages))
	if err != nil {
		return 0, err
	}
	uri, err := f.archive.SaveAnalytics(ctx, channelID, videoID, data)
	if err != nil {
		return 0, err
	}
	metrics.ObserveFlattenedRows(len(messages))
	logger.Info("analytics export written", zap.String("uri", uri), zap.Int("rows", len(messages)))
	return len(messages), nil
}

// Backfill converts every stored collection that has no export yet and returns
// the number of videos converted.
func (f *Flattener) Backfill(ctx context.Context) (int, error) {
	prefix := f.archive.Paths().CommentsPrefix("")
	names, err := f.archive.ListObjects(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", prefix, err)
	}
	converted := 0
	for _, name := range names {
		channelID, videoID, _, err := f.archive.Paths().ParseCommentsObject(name)
		if err != nil {
			f.logger.Warn("skipping unrecognized object", zap.String("object", name), zap.Error(err))
			continue
		}
		exists, err := f.archive.AnalyticsExists(ctx, channelID, videoID)
		if err != nil {
			return converted, err
		}
		if exists {
			continue
		}
		rows, err := f.Convert(ctx, channelID, videoID)
		if err != nil {
			return converted, fmt.Errorf("convert %s: %w", name, err)
		}
		if rows > 0 {
			converted++
		}
	}
	f.logger.Info("backfill finished", zap.Int("objects", len(names)), zap.Int("converted", converted))
	return converted, nil
}
