package livechat

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/payload"
)

// Renderer keys found on chat replay items.
const (
	rendererEngagement = "liveChatViewerEngagementMessageRenderer"
	rendererText       = "liveChatTextMessageRenderer"
	rendererPaid       = "liveChatPaidMessageRenderer"
)

// ParseItem normalizes one addChatItemAction item. The boolean is false for items
// that are intentionally not emitted: system engagement notices and renderer kinds
// such as memberships, placeholders and tickers.
func ParseItem(item payload.Value) (chat.Message, bool, error) {
	switch {
	case item.Has(rendererEngagement):
		return chat.Message{}, false, nil
	case item.Has(rendererText):
		return parseRenderer(item, rendererText)
	case item.Has(rendererPaid):
		return parseRenderer(item, rendererPaid)
	default:
		return chat.Message{}, false, nil
	}
}

func parseRenderer(item payload.Value, key string) (chat.Message, bool, error) {
	r, err := item.Get(key)
	if err != nil {
		return chat.Message{}, false, err
	}

	var msg chat.Message
	if msg.ID, err = str(r, "id"); err != nil {
		return chat.Message{}, false, err
	}

	msg.Kind = chat.KindTextMessage
	if r.Has("purchaseAmountText") {
		msg.Kind = chat.KindSuperChat
		if msg.AmountString, err = str(r, "purchaseAmountText", "simpleText"); err != nil {
			return chat.Message{}, false, err
		}
	}

	usecValue, err := r.Get("timestampUsec")
	if err != nil {
		return chat.Message{}, false, err
	}
	usec, err := usecValue.Int64()
	if err != nil {
		return chat.Message{}, false, err
	}
	msg.Timestamp = float64(usec) / 1_000_000
	msg.Datetime = time.UnixMicro(usec).UTC().Format(time.RFC3339Nano)

	if msg.ElapsedTime, err = str(r, "timestampText", "simpleText"); err != nil {
		return chat.Message{}, false, err
	}
	if msg.Author.ChannelID, err = str(r, "authorExternalChannelId"); err != nil {
		return chat.Message{}, false, err
	}
	if msg.Author.Name, err = str(r, "authorName", "simpleText"); err != nil {
		return chat.Message{}, false, err
	}

	// Super chats without a comment have no message field at all.
	if r.Has("message") {
		text, err := joinRuns(msg.ID, r)
		if err != nil {
			return chat.Message{}, false, err
		}
		msg.Text = &text
	}
	return msg, true, nil
}

func joinRuns(id string, r payload.Value) (string, error) {
	runsValue, err := r.Dig("message", "runs")
	if err != nil {
		return "", err
	}
	runs, err := runsValue.Array()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, run := range runs {
		switch {
		case run.Has("text"):
			text, err := str(run, "text")
			if err != nil {
				return "", err
			}
			b.WriteString(text)
		case run.Has("emoji"):
			label, err := str(run, "emoji", "image", "accessibility", "accessibilityData", "label")
			if err != nil {
				return "", err
			}
			b.WriteString(":" + label + ":")
		default:
			return "", &chat.UnrecognizedRunError{MessageID: id, Index: i, Run: run.Compact()}
		}
	}
	return b.String(), nil
}

func str(v payload.Value, keys ...string) (string, error) {
	leaf, err := v.Dig(keys...)
	if err != nil {
		return "", err
	}
	s, err := leaf.Str()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.Join(keys, "."), err)
	}
	return s, nil
}
