package testutil

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/joaopsoliveira03-school/estg-sd/internal/types"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// NewUser builds a user with a predictable password for protocol tests.
func NewUser(username string, role types.Role) types.User {
	return types.User{
		Username: username,
		Name:     username,
		Password: username + "-pass",
		Role:     role,
	}
}

// FakeConn is an in-memory stand-in for a live direct connection.
type FakeConn struct {
	Host     string
	IsClosed bool
}

func (c *FakeConn) RemoteHost() string { return c.Host }
func (c *FakeConn) Closed() bool       { return c.IsClosed }
func (c *FakeConn) Close() error       { c.IsClosed = true; return nil }

// Eventually polls cond until it holds or the deadline passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
