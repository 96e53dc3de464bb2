package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"docSyncServer/backend/internal/entity"
	"docSyncServer/backend/internal/repo"
)

type shareKey struct {
	docID  string
	userID uint64
}

type MemoryShareStore struct {
	mu      sync.RWMutex
	entries map[shareKey]entity.ShareEntry
	nextID  uint64
}

var _ repo.ShareRepo = (*MemoryShareStore)(nil)

func NewMemoryShareStore() *MemoryShareStore {
	return &MemoryShareStore{entries: make(map[shareKey]entity.ShareEntry)}
}

func (s *MemoryShareStore) CreateIfAbsent(ctx context.Context, entry entity.ShareEntry) (bool, error) {
	k := shareKey{docID: entry.DocumentID, userID: entry.SharedWithUserID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[k]; ok {
		return false, nil
	}
	s.nextID++
	entry.ID = s.nextID
	s.entries[k] = entry
	return true, nil
}

func (s *MemoryShareStore) Delete(ctx context.Context, docID string, userID uint64) error {
	s.mu.Lock()
	delete(s.entries, shareKey{docID: docID, userID: userID})
	s.mu.Unlock()
	return nil
}

func (s *MemoryShareStore) Get(ctx context.Context, docID string, userID uint64) (entity.ShareEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[shareKey{docID: docID, userID: userID}]
	if !ok {
		return entity.ShareEntry{}, fmt.Errorf("share doc=%s user=%d: %w", docID, userID, entity.ErrNotFound)
	}
	return e, nil
}

func (s *MemoryShareStore) ListBySharedWith(ctx context.Context, userID uint64) ([]entity.ShareEntry, error) {
	return s.filter(func(e entity.ShareEntry) bool { return e.SharedWithUserID == userID }), nil
}

func (s *MemoryShareStore) ListByDocument(ctx context.Context, docID string) ([]entity.ShareEntry, error) {
	return s.filter(func(e entity.ShareEntry) bool { return e.DocumentID == docID }), nil
}

func (s *MemoryShareStore) filter(keep func(entity.ShareEntry) bool) []entity.ShareEntry {
	s.mu.RLock()
	out := make([]entity.ShareEntry, 0)
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
