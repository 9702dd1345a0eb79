package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/ethauth/ports"
)

type memoryRecord struct {
	challengeHash string
	expiresAt     time.Time
}

// MemoryStore is an in-memory implementation of the ChallengeStore interface
type MemoryStore struct {
	challenges map[string]memoryRecord
	ttl        time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

var _ ports.ChallengeStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
// Challenges older than ttl are treated as missing; a zero ttl disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]memoryRecord),
		ttl:        ttl,
		now:        time.Now,
	}
}

// StoreChallenge saves the challenge, replacing any previous one
func (s *MemoryStore) StoreChallenge(ctx context.Context, address, challengeHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := memoryRecord{challengeHash: challengeHash}
	if s.ttl > 0 {
		record.expiresAt = s.now().Add(s.ttl)
	}
	s.challenges[address] = record

	return nil
}

// GetChallenge returns the pending challenge for address
func (s *MemoryStore) GetChallenge(ctx context.Context, address string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.lookup(address)
	if !ok {
		return "", false, nil
	}
	return record.challengeHash, true, nil
}

// DeleteChallenge removes the pending challenge for address
func (s *MemoryStore) DeleteChallenge(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.challenges, address)
	return nil
}

// ConsumeChallenge deletes the challenge if it still equals challengeHash
func (s *MemoryStore) ConsumeChallenge(ctx context.Context, address, challengeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.lookup(address)
	if !ok || record.challengeHash != challengeHash {
		return false, nil
	}

	delete(s.challenges, address)
	return true, nil
}

// lookup must be called with mu held. Expired records are dropped on access.
func (s *MemoryStore) lookup(address string) (memoryRecord, bool) {
	record, ok := s.challenges[address]
	if !ok {
		return memoryRecord{}, false
	}
	if !record.expiresAt.IsZero() && s.now().After(record.expiresAt) {
		delete(s.challenges, address)
		return memoryRecord{}, false
	}
	return record, true
}
