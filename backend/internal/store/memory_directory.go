package store

import (
	"context"
	"fmt"
	"sync"

	"docSyncServer/backend/internal/entity"
	"docSyncServer/backend/internal/repo"
)

// MemoryDirectory 内存版的文档元数据 + 用户目录
// storage.driver=memory 时由配置里的种子数据填充
type MemoryDirectory struct {
	mu     sync.RWMutex
	owners map[string]uint64
	users  map[uint64]struct{}
}

var (
	_ repo.DocumentStore = (*MemoryDirectory)(nil)
	_ repo.UserStore     = (*MemoryDirectory)(nil)
)

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{owners: make(map[string]uint64), users: make(map[uint64]struct{})}
}

// AddDocument 注册文档，同时把所有者登记为用户
func (d *MemoryDirectory) AddDocument(docID string, ownerID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners[docID] = ownerID
	d.users[ownerID] = struct{}{}
}

func (d *MemoryDirectory) AddUser(userID uint64) {
	d.mu.Lock()
	d.users[userID] = struct{}{}
	d.mu.Unlock()
}

func (d *MemoryDirectory) GetOwnerID(ctx context.Context, docID string) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	owner, ok := d.owners[docID]
	if !ok {
		return 0, fmt.Errorf("document %s: %w", docID, entity.ErrNotFound)
	}
	return owner, nil
}

func (d *MemoryDirectory) UserExists(ctx context.Context, userID uint64) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[userID]
	return ok, nil
}
