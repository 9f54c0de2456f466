// Package mocks provides hand-written testify mocks for collaborator interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/loomwork/loom/pkg/providers/ai"
)

// MockAIProvider is a mock implementation of the ai.Provider interface.
type MockAIProvider struct {
	mock.Mock
}

func (m *MockAIProvider) Complete(ctx context.Context, req ai.Request) (string, error) {
	args := m.Called(ctx, req)

	return args.String(0), args.Error(1)
}
