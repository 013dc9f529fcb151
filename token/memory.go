package token

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the reference [Store] implementation: a mutex-guarded map
// with secondary indexes by family and subject. It defines the semantics
// the Redis and Postgres stores must reproduce and is what the engine
// tests run against.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]*Record
	families map[string][]string
	subjects map[string][]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*Record),
		families: make(map[string][]string),
		subjects: make(map[string][]string),
	}
}

func (s *MemoryStore) insertLocked(rec *Record) {
	cp := rec.Clone()
	s.records[cp.TokenID] = cp
	s.families[cp.FamilyID] = append(s.families[cp.FamilyID], cp.TokenID)
	s.subjects[cp.SubjectID] = append(s.subjects[cp.SubjectID], cp.TokenID)
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.TokenID]; exists {
		return ErrConflict
	}
	s.insertLocked(rec)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tokenID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) CompareAndRotate(_ context.Context, tokenID string, providedHash [32]byte, successor *Record, now time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Status != StatusActive {
		return nil, ErrRotationConflict
	}
	if rec.ExpiredAt(now) {
		return nil, ErrExpired
	}
	if rec.SecretHash != providedHash {
		return nil, ErrSecretMismatch
	}
	if _, exists := s.records[successor.TokenID]; exists {
		return nil, ErrConflict
	}

	rec.Status = StatusRotated
	rec.ReplacedBy = successor.TokenID
	s.insertLocked(successor)

	return s.records[successor.TokenID].Clone(), nil
}

func (s *MemoryStore) Revoke(_ context.Context, tokenID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tokenID]
	if !ok {
		return ErrNotFound
	}
	s.revokeLocked(rec, now)
	return nil
}

func (s *MemoryStore) revokeLocked(rec *Record, now time.Time) bool {
	if rec.Status == StatusRevoked {
		return false
	}
	rec.Status = StatusRevoked
	rec.RevokedAt = now.Unix()
	return true
}

func (s *MemoryStore) RevokeFamily(_ context.Context, familyID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for _, id := range s.families[familyID] {
		if rec, ok := s.records[id]; ok && s.revokeLocked(rec, now) {
			revoked++
		}
	}
	return revoked, nil
}

func (s *MemoryStore) RevokeAllForSubject(_ context.Context, subjectID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for _, id := range s.subjects[subjectID] {
		if rec, ok := s.records[id]; ok && s.revokeLocked(rec, now) {
			revoked++
		}
	}
	return revoked, nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, rec := range s.records {
		if !rec.ExpiredAt(now) {
			continue
		}
		delete(s.records, id)
		s.families[rec.FamilyID] = removeID(s.families[rec.FamilyID], id)
		s.subjects[rec.SubjectID] = removeID(s.subjects[rec.SubjectID], id)
		purged++
	}
	return purged, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
