package coordinator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wapair/session-backend/interfaces"
)

// MockProtocolClient mocks the interfaces.ProtocolClient interface.
type MockProtocolClient struct {
	mock.Mock
}

// Events mocks the Events method.
func (m *MockProtocolClient) Events() <-chan interfaces.Event {
	args := m.Called()
	return args.Get(0).(<-chan interfaces.Event)
}

// RequestPairingCode mocks the RequestPairingCode method.
func (m *MockProtocolClient) RequestPairingCode(ctx context.Context, address string) (string, error) {
	args := m.Called(ctx, address)
	return args.String(0), args.Error(1)
}

// Close mocks the Close method.
func (m *MockProtocolClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockProtocolDialer mocks the interfaces.ProtocolDialer interface.
type MockProtocolDialer struct {
	mock.Mock
}

// Dial mocks the Dial method.
func (m *MockProtocolDialer) Dial(ctx context.Context, auth interfaces.AuthState) (interfaces.ProtocolClient, error) {
	args := m.Called(ctx, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.ProtocolClient), args.Error(1)
}
