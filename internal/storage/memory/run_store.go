package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/livechat-harvester/internal/ledger"
)

// RunStore keeps the run ledger in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs []ledger.Run
	ids  map[string]struct{}
}

var _ ledger.Store = (*RunStore)(nil)

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{ids: make(map[string]struct{})}
}

// RecordRun appends a run. Run ids must be unique.
func (s *RunStore) RecordRun(_ context.Context, run ledger.Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ids[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.ids[run.ID] = struct{}{}
	s.runs = append(s.runs, run)
	return nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, videoID string, limit int) ([]ledger.Run, error) {
	if limit <= 0 {
		limit = ledger.DefaultListLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if videoID == "" || run.VideoID == videoID {
			out = append(out, run)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
