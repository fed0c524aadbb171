package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of the Provider interface for testing.
type MockProvider struct {
	mock.Mock
}

var _ Provider = (*MockProvider)(nil)

// PutObject drains r and records the call with the bytes read.
func (m *MockProvider) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	args := m.Called(ctx, path, contentType, data)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}

// GetObject is the mock implementation of the GetObject method.
func (m *MockProvider) GetObject(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1) //nolint:wrapcheck
}

// ObjectExists is the mock implementation of the ObjectExists method.
func (m *MockProvider) ObjectExists(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1) //nolint:wrapcheck
}

// ListObjects is the mock implementation of the ListObjects method.
func (m *MockProvider) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1) //nolint:wrapcheck
}
