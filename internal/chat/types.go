// Package chat defines the domain types shared by the harvester subsystems.
package chat

import (
	"math"
	"time"
)

// Kind classifies an emitted chat message.
type Kind string

// Kind values persisted in the comment collection.
const (
	KindTextMessage Kind = "textMessage"
	KindSuperChat   Kind = "superChat"
)

// Author identifies who wrote a chat message.
type Author struct {
	ChannelID string `json:"channelId"`
	Name      string `json:"name"`
}

// Message is one normalized chat replay entry. Messages are immutable once parsed.
type Message struct {
	ID           string  `json:"id"`
	Kind         Kind    `json:"type"`
	Timestamp    float64 `json:"timestamp"`
	Datetime     string  `json:"datetime"`
	ElapsedTime  string  `json:"elapsedTime"`
	Author       Author  `json:"author"`
	Text         *string `json:"message,omitempty"`
	AmountString string  `json:"amountString,omitempty"`
}

// MessageText returns the message body, or "" for wordless super chats.
func (m Message) MessageText() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

// Time converts the fractional second timestamp into a UTC time. The source
// resolution is microseconds, so the value is rounded to the nearest one.
func (m Message) Time() time.Time {
	return time.UnixMicro(int64(math.Round(m.Timestamp * 1e6))).UTC()
}

// CrawlRequest asks for one incremental crawl of a video's chat replay.
// An empty Continuation means "start from the beginning".
type CrawlRequest struct {
	ChannelID    string `json:"channel_id"`
	VideoID      string `json:"video_id"`
	Continuation string `json:"continuation,omitempty"`
}

// Validate checks that the request identifies a video.
func (r CrawlRequest) Validate() error {
	if r.ChannelID == "" {
		return &FieldError{Field: "channel_id"}
	}
	if r.VideoID == "" {
		return &FieldError{Field: "video_id"}
	}
	return nil
}

// Channel is one entry of the channel list object.
type Channel struct {
	Name      string `json:"name"`
	ChannelID string `json:"channel_id"`
}

// Video is one entry of a channel's catalog object.
type Video struct {
	VideoID     string `json:"video_id"`
	ChannelID   string `json:"channel_id"`
	Title       string `json:"title"`
	PublishedAt string `json:"published_at"`
	Duration    string `json:"duration"`
}

// PublishedTime parses PublishedAt, which is stored as RFC3339 with a Z suffix.
func (v Video) PublishedTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, v.PublishedAt)
	if err != nil {
		return time.Time{}, &FieldError{Field: "published_at", Err: err}
	}
	return t, nil
}
