package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docSyncServer/backend/internal/cache"
	"docSyncServer/backend/internal/entity"
	"docSyncServer/backend/internal/repo"
)

// Gate 文档分享与权限判定
// 所有者永远有权限；edit 需要 edit 分享记录；view 只要有任意分享记录
type Gate struct {
	shares repo.ShareRepo
	docs   repo.DocumentStore
	users  repo.UserStore
	// 可选，nil 时直接查 shares
	perms cache.PermissionCache
	log   *zap.Logger
	now   func() time.Time
}

func NewGate(shares repo.ShareRepo, docs repo.DocumentStore, users repo.UserStore, perms cache.PermissionCache, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		shares: shares,
		docs:   docs,
		users:  users,
		perms:  perms,
		log:    log,
		now:    time.Now,
	}
}

// Share 幂等：记录已存在时保持原权限，不升级也不降级
func (g *Gate) Share(ctx context.Context, docID string, userID uint64, permission string) (entity.ShareEntry, bool, error) {
	perm, err := entity.ParsePermission(permission)
	if err != nil {
		return entity.ShareEntry{}, false, err
	}
	if _, err := g.docs.GetOwnerID(ctx, docID); err != nil {
		return entity.ShareEntry{}, false, err
	}
	ok, err := g.users.UserExists(ctx, userID)
	if err != nil {
		return entity.ShareEntry{}, false, err
	}
	if !ok {
		return entity.ShareEntry{}, false, fmt.Errorf("user %d: %w", userID, entity.ErrNotFound)
	}

	created, err := g.shares.CreateIfAbsent(ctx, entity.ShareEntry{
		DocumentID:       docID,
		SharedWithUserID: userID,
		Permission:       perm,
		SharedAt:         g.now(),
	})
	if err != nil {
		return entity.ShareEntry{}, false, err
	}
	g.invalidate(ctx, docID, userID)

	entry, err := g.shares.Get(ctx, docID, userID)
	if err != nil {
		return entity.ShareEntry{}, created, err
	}
	g.log.Info("document_shared",
		zap.String("doc", docID),
		zap.Uint64("user", userID),
		zap.String("permission", string(entry.Permission)),
		zap.Bool("created", created),
	)
	return entry, created, nil
}

// Unshare 记录不存在不算错误
func (g *Gate) Unshare(ctx context.Context, docID string, userID uint64) error {
	if err := g.shares.Delete(ctx, docID, userID); err != nil {
		return err
	}
	g.invalidate(ctx, docID, userID)
	g.log.Info("document_unshared", zap.String("doc", docID), zap.Uint64("user", userID))
	return nil
}

func (g *Gate) ListSharedWith(ctx context.Context, userID uint64) ([]entity.ShareEntry, error) {
	return g.shares.ListBySharedWith(ctx, userID)
}

func (g *Gate) ListForDocument(ctx context.Context, docID string) ([]entity.ShareEntry, error) {
	if _, err := g.docs.GetOwnerID(ctx, docID); err != nil {
		return nil, err
	}
	return g.shares.ListByDocument(ctx, docID)
}

// Authorize 文档不存在返回 ErrNotFound
func (g *Gate) Authorize(ctx context.Context, docID string, userID uint64, required entity.Permission) (bool, error) {
	owner, err := g.docs.GetOwnerID(ctx, docID)
	if err != nil {
		return false, err
	}
	if owner == userID {
		return true, nil
	}
	perm, ok, err := g.lookup(ctx, docID, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return perm.Allows(required), nil
}

func (g *Gate) lookup(ctx context.Context, docID string, userID uint64) (entity.Permission, bool, error) {
	load := func() (entity.Permission, bool, error) {
		e, err := g.shares.Get(ctx, docID, userID)
		if errors.Is(err, entity.ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return e.Permission, true, nil
	}
	if g.perms == nil {
		return load()
	}
	return g.perms.GetOrLoad(ctx, docID, userID, load)
}

func (g *Gate) invalidate(ctx context.Context, docID string, userID uint64) {
	if g.perms == nil {
		return
	}
	if err := g.perms.Invalidate(ctx, docID, userID); err != nil {
		g.log.Warn("permission_cache_invalidate_failed",
			zap.String("doc", docID), zap.Uint64("user", userID), zap.Error(err))
	}
}
