package mocks

import (
	"bytes"
	"sync"

	"github.com/mcoot/partygate/internal/dependencies/random"
)

// MockRandom hands out queued lobby codes and secrets in order. Lobbies may be
// created concurrently, so the queues are locked.
type MockRandom struct {
	mu      sync.Mutex
	strings []string
	secrets [][]byte
	drawn   int
}

var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a MockRandom with empty queues
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// String pops the next queued code. An empty queue yields "", which lobby
// code generation treats as a failed draw.
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drawn++
	if len(r.strings) == 0 {
		return ""
	}
	s := r.strings[0]
	r.strings = r.strings[1:]
	return s
}

// Secret pops the next queued secret, or returns n bytes of 's'
func (r *MockRandom) Secret(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.secrets) == 0 {
		return bytes.Repeat([]byte{'s'}, n)
	}
	b := r.secrets[0]
	r.secrets = r.secrets[1:]
	return b
}

// QueueString queues codes for String
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strings = append(r.strings, values...)
}

// QueueSecret queues secrets for Secret
func (r *MockRandom) QueueSecret(values ...[]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets = append(r.secrets, values...)
}

// Drawn reports how many times String has been called
func (r *MockRandom) Drawn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drawn
}
