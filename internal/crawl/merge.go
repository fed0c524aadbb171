package crawl

import "github.com/JakeFAU/livechat-harvester/internal/chat"

// Merge appends the messages from incoming whose id is not already present.
// Existing order is kept and additions follow fetch order. The returned added
// slice holds exactly the messages that were appended.
func Merge(existing, incoming []chat.Message) (merged, added []chat.Message) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged = make([]chat.Message, 0, len(existing)+len(incoming))
	for _, m := range existing {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range incoming {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
		added = append(added, m)
	}
	return merged, added
}
