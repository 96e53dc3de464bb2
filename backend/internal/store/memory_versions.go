package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"docSyncServer/backend/internal/entity"
	"docSyncServer/backend/internal/repo"
)

// 单个文档的版本日志，mu 只串行化同一文档的追加
type memDocLog struct {
	mu       sync.Mutex
	versions []entity.Version
}

// MemoryVersionStore 进程内的版本日志实现（开发环境和测试用）
type MemoryVersionStore struct {
	mu     sync.RWMutex
	docs   map[string]*memDocLog
	byID   map[uint64]entity.Version
	nextID atomic.Uint64
	now    func() time.Time
}

var _ repo.VersionRepo = (*MemoryVersionStore)(nil)

func NewMemoryVersionStore() *MemoryVersionStore {
	return &MemoryVersionStore{
		docs: make(map[string]*memDocLog),
		byID: make(map[uint64]entity.Version),
		now:  time.Now,
	}
}

func (s *MemoryVersionStore) docLog(docID string, create bool) *memDocLog {
	s.mu.RLock()
	l := s.docs[docID]
	s.mu.RUnlock()
	if l != nil || !create {
		return l
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l = s.docs[docID]; l == nil {
		l = &memDocLog{}
		s.docs[docID] = l
	}
	return l
}

func (s *MemoryVersionStore) Append(ctx context.Context, docID string, content string, editedBy uint64, description string) (entity.Version, error) {
	if err := ctx.Err(); err != nil {
		return entity.Version{}, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	l := s.docLog(docID, true)
	l.mu.Lock()
	defer l.mu.Unlock()

	// 时间戳在版本号顺序上不递减
	ts := s.now()
	if n := len(l.versions); n > 0 {
		ts = notBefore(ts, l.versions[n-1].Timestamp)
	}
	v := entity.Version{
		ID:                s.nextID.Add(1),
		DocumentID:        docID,
		Content:           content,
		EditedByUserID:    editedBy,
		Timestamp:         ts,
		VersionNumber:     len(l.versions) + 1,
		ChangeDescription: description,
	}
	l.versions = append(l.versions, v)

	s.mu.Lock()
	s.byID[v.ID] = v
	s.mu.Unlock()
	return v, nil
}

func (s *MemoryVersionStore) ListByDocument(ctx context.Context, docID string) ([]entity.Version, error) {
	l := s.docLog(docID, false)
	if l == nil {
		return []entity.Version{}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]entity.Version, len(l.versions))
	copy(out, l.versions)
	return out, nil
}

func (s *MemoryVersionStore) GetByID(ctx context.Context, id uint64) (entity.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	if !ok {
		return entity.Version{}, fmt.Errorf("version %d: %w", id, entity.ErrNotFound)
	}
	return v, nil
}

func (s *MemoryVersionStore) Latest(ctx context.Context, docID string) (entity.Version, bool, error) {
	l := s.docLog(docID, false)
	if l == nil {
		return entity.Version{}, false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.versions) == 0 {
		return entity.Version{}, false, nil
	}
	return l.versions[len(l.versions)-1], true, nil
}

func (s *MemoryVersionStore) ListByUser(ctx context.Context, userID uint64) ([]entity.Version, error) {
	s.mu.RLock()
	out := make([]entity.Version, 0)
	for _, v := range s.byID {
		if v.EditedByUserID == userID {
			out = append(out, v)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
