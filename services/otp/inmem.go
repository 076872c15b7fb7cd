package otpsvc

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/newedu/guardian/core"
)

// NowFunc facilitates mocking time.Now() in tests
var NowFunc = time.Now

type entry struct {
	code      string
	expiresAt time.Time
}

type inmemStore struct {
	mu      sync.Mutex
	entries map[string]entry
}

var _ core.OTPStore = (*inmemStore)(nil)

// NewInMemStore is an OTPStore for tests and local development. Entries
// expire lazily on check.
func NewInMemStore() *inmemStore {
	return &inmemStore{entries: make(map[string]entry)}
}

func (s *inmemStore) Store(_ context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{code: code, expiresAt: NowFunc().Add(ttl)}
	return nil
}

func (s *inmemStore) Check(_ context.Context, key, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false, core.ErrOTPNotFound
	}
	if NowFunc().After(e.expiresAt) {
		delete(s.entries, key)
		return false, core.ErrOTPNotFound
	}
	if subtle.ConstantTimeCompare([]byte(e.code), []byte(code)) != 1 {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}
