package snapshot

import (
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(section string, data []byte) error {
	args := m.Called(section, data)
	return args.Error(0)
}

func (m *MockStore) Load(section string) ([]byte, error) {
	args := m.Called(section)
	if data, ok := args.Get(0).([]byte); ok {
		return data, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
