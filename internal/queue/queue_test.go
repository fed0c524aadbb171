package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
)

func TestEncodeMirrorsAttributes(t *testing.T) {
	t.Parallel()

	data, attrs, err := Encode(chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1", Continuation: "c"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel_id":"UC1","video_id":"v1","continuation":"c"}`, string(data))
	assert.Equal(t, map[string]string{"channel_id": "UC1", "video_id": "v1", "continuation": "c"}, attrs)

	data, attrs, err = Encode(chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel_id":"UC1","video_id":"v1"}`, string(data))
	assert.NotContains(t, attrs, AttrContinuation)

	_, _, err = Encode(chat.CrawlRequest{VideoID: "v1"})
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		attrs   map[string]string
		want    chat.CrawlRequest
		wantErr bool
	}{
		{
			name: "json body",
			data: `{"channel_id":"UC1","video_id":"v1","continuation":"c"}`,
			want: chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1", Continuation: "c"},
		},
		{
			name:  "attributes only",
			attrs: map[string]string{"channel_id": "UC1", "video_id": "v1"},
			want:  chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1"},
		},
		{
			name:  "non json body falls back",
			data:  "v1",
			attrs: map[string]string{"channel_id": "UC1", "video_id": "v1", "continuation": "c"},
			want:  chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1", Continuation: "c"},
		},
		{
			name:  "body fields win",
			data:  `{"channel_id":"UC1","video_id":"v1"}`,
			attrs: map[string]string{"channel_id": "UC2", "video_id": "v2", "continuation": "c"},
			want:  chat.CrawlRequest{ChannelID: "UC1", VideoID: "v1", Continuation: "c"},
		},
		{
			name:    "missing video",
			data:    `{"channel_id":"UC1"}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Decode([]byte(tt.data), tt.attrs)
			if tt.wantErr {
				var fieldErr *chat.FieldError
				require.ErrorAs(t, err, &fieldErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldAck(t *testing.T) {
	t.Parallel()

	assert.True(t, ShouldAck(nil))
	assert.True(t, ShouldAck(fmt.Errorf("wrap: %w", chat.ErrNotFound)))
	assert.True(t, ShouldAck(fmt.Errorf("wrap: %w", chat.ErrNotAvailable)))
	assert.True(t, ShouldAck(&chat.FieldError{Field: "video_id"}))
	assert.False(t, ShouldAck(fmt.Errorf("wrap: %w", chat.ErrTransport)))
	assert.False(t, ShouldAck(fmt.Errorf("wrap: %w", chat.ErrParse)))
	assert.False(t, ShouldAck(errors.New("boom")))
}

func TestAttributeCarrierPropagation(t *testing.T) {
	t.Parallel()

	carrier := AttributeCarrier{}
	var _ propagation.TextMapCarrier = carrier
	carrier.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	assert.Equal(t, []string{"traceparent"}, carrier.Keys())
	assert.Equal(t, "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01", carrier.Get("traceparent"))
}
