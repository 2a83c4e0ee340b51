package memory

import (
	"context"
	"sync"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

// IdempotencyStore keeps claims and responses in process memory. Entries never expire.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]domain.IdempotencyRecord
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{entries: make(map[string]domain.IdempotencyRecord)}
}

// Claim reserves key. When the key is already held, its record is returned instead.
func (s *IdempotencyStore) Claim(_ context.Context, key, fingerprint string) (domain.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.entries[key]; ok {
		rec.Body = append([]byte(nil), rec.Body...)
		return rec, false, nil
	}
	s.entries[key] = domain.IdempotencyRecord{Fingerprint: fingerprint, Pending: true}
	return domain.IdempotencyRecord{}, true, nil
}

func (s *IdempotencyStore) Complete(_ context.Context, key, fingerprint string, status int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = domain.IdempotencyRecord{
		Fingerprint: fingerprint,
		Status:      status,
		Body:        append([]byte(nil), body...),
	}
	return nil
}

// Release drops a pending claim. Completed responses are kept.
func (s *IdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.entries[key]; ok && rec.Pending {
		delete(s.entries, key)
	}
	return nil
}
