package queue

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
)

// MockPublisher is a mock implementation of the Publisher interface for testing.
type MockPublisher struct {
	mock.Mock
}

var _ Publisher = (*MockPublisher)(nil)

// PublishCrawlRequest is the mock implementation of the PublishCrawlRequest method.
func (m *MockPublisher) PublishCrawlRequest(ctx context.Context, req chat.CrawlRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}
