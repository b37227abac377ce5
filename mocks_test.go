package identity_test

import (
	"context"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/mock"
)

// MockLogger implements identity.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

// MockGroupLookup implements identity.GroupLookup for testing
type MockGroupLookup struct {
	mock.Mock
}

func (m *MockGroupLookup) UserGroups(ctx context.Context, username string) ([]string, error) {
	args := m.Called(ctx, username)
	if groups := args.Get(0); groups != nil {
		return groups.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// plainHasher skips bcrypt so store fixtures stay cheap. It stores the
// password with a marker prefix and compares by equality.
type plainHasher struct{}

func (plainHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", identity.ErrNoEmptyPassword
	}
	return "plain$" + password, nil
}

func (plainHasher) ComparePasswordAndHash(password, hash string) error {
	if hash == "plain$"+password {
		return nil
	}
	return identity.ErrInvalidCredentials
}

var _ identity.PasswordAuthenticator = plainHasher{}
var _ identity.Logger = (*MockLogger)(nil)
var _ identity.GroupLookup = (*MockGroupLookup)(nil)
