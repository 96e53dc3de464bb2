package repo

import (
	"context"

	"docSyncServer/backend/internal/entity"
)

// VersionRepo 追加式版本日志
// Append 对同一文档必须原子地分配版本号，不同文档之间互不阻塞
type VersionRepo interface {
	Append(ctx context.Context, docID string, content string, editedBy uint64, description string) (entity.Version, error)
	ListByDocument(ctx context.Context, docID string) ([]entity.Version, error)
	GetByID(ctx context.Context, id uint64) (entity.Version, error)
	// Latest 文档没有任何版本时 ok=false
	Latest(ctx context.Context, docID string) (v entity.Version, ok bool, err error)
	ListByUser(ctx context.Context, userID uint64) ([]entity.Version, error)
}

// ShareRepo 分享记录
type ShareRepo interface {
	// CreateIfAbsent 已存在时保持原记录不变，created=false
	CreateIfAbsent(ctx context.Context, entry entity.ShareEntry) (created bool, err error)
	Delete(ctx context.Context, docID string, userID uint64) error
	Get(ctx context.Context, docID string, userID uint64) (entity.ShareEntry, error)
	ListBySharedWith(ctx context.Context, userID uint64) ([]entity.ShareEntry, error)
	ListByDocument(ctx context.Context, docID string) ([]entity.ShareEntry, error)
}

// DocumentStore 文档元数据服务，这里只关心存在性和所有者
type DocumentStore interface {
	GetOwnerID(ctx context.Context, docID string) (uint64, error)
}

// UserStore 用户服务，只做存在性检查
type UserStore interface {
	UserExists(ctx context.Context, userID uint64) (bool, error)
}
