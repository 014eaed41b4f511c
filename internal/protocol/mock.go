package protocol

import (
	"github.com/stretchr/testify/mock"

	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) Push(host string, env *Envelope) error {
	args := m.Called(host, env)
	return args.Error(0)
}

func (m *MockPusher) Ask(host string, env *Envelope) (*Envelope, error) {
	args := m.Called(host, env)
	if env, ok := args.Get(0).(*Envelope); ok {
		return env, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPusher) MulticastSend(group string, env *Envelope) error {
	args := m.Called(group, env)
	return args.Error(0)
}

func (m *MockPusher) BroadcastSend(env *Envelope) error {
	args := m.Called(env)
	return args.Error(0)
}

type MockApprovalStarter struct {
	mock.Mock
}

func (m *MockApprovalStarter) Start(connType ConnType, request *types.Event) {
	m.Called(connType, request)
}

type MockGroupJoiner struct {
	mock.Mock
}

func (m *MockGroupJoiner) Join(group string) error {
	args := m.Called(group)
	return args.Error(0)
}
