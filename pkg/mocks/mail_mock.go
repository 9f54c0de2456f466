package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/loomwork/loom/pkg/providers/mail"
)

// MockMailClient is a mock implementation of the mail.Client interface.
type MockMailClient struct {
	mock.Mock
}

func (m *MockMailClient) ListMessages(ctx context.Context, filter mail.Filter) ([]mail.MessageRef, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]mail.MessageRef), args.Error(1)
}

func (m *MockMailClient) FetchMessage(ctx context.Context, id string) (*mail.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*mail.Message), args.Error(1)
}
