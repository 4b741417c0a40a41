package testutils

import (
	"sync"

	"whoshome/internal/router"
)

// MockRouter is a canned router.Router backend for tests. Safe for
// concurrent use; records block/unblock calls and counts listings.
type MockRouter struct {
	mu sync.Mutex

	Known  []router.Client
	Online []router.Client

	KnownErr   error
	OnlineErr  error
	BlockErr   error
	UnblockErr error

	KnownCalls  int
	OnlineCalls int
	Blocked     []string
	Unblocked   []string
}

var _ router.Router = (*MockRouter)(nil)

func (m *MockRouter) KnownClients() ([]router.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.KnownCalls++
	if m.KnownErr != nil {
		return nil, m.KnownErr
	}
	return append([]router.Client(nil), m.Known...), nil
}

func (m *MockRouter) OnlineClients() ([]router.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OnlineCalls++
	if m.OnlineErr != nil {
		return nil, m.OnlineErr
	}
	return append([]router.Client(nil), m.Online...), nil
}

func (m *MockRouter) Block(c router.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BlockErr != nil {
		return m.BlockErr
	}
	m.Blocked = append(m.Blocked, c.MAC)
	return nil
}

func (m *MockRouter) Unblock(c router.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UnblockErr != nil {
		return m.UnblockErr
	}
	m.Unblocked = append(m.Unblocked, c.MAC)
	return nil
}

// SetOnline swaps the online list between polls.
func (m *MockRouter) SetOnline(clients []router.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Online = append([]router.Client(nil), clients...)
}
