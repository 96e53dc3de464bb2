package version

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"docSyncServer/backend/internal/entity"
	"docSyncServer/backend/internal/repo"
)

// Service 版本日志对外的操作：追加、列表、查询、回滚
// 历史只追加，回滚也是在末尾追加一条复制旧内容的新版本
type Service struct {
	repo repo.VersionRepo
	log  *zap.Logger
}

func NewService(r repo.VersionRepo, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: r, log: log}
}

func (s *Service) Append(ctx context.Context, docID string, content string, editedBy uint64, description string) (entity.Version, error) {
	if docID == "" {
		return entity.Version{}, fmt.Errorf("%w: missing documentId", entity.ErrInvalidArgument)
	}
	v, err := s.repo.Append(ctx, docID, content, editedBy, description)
	if err != nil {
		s.log.Warn("version_append_failed", zap.String("doc", docID), zap.Uint64("user", editedBy), zap.Error(err))
		return entity.Version{}, err
	}
	s.log.Debug("version_appended",
		zap.String("doc", docID),
		zap.Uint64("id", v.ID),
		zap.Int("number", v.VersionNumber),
		zap.Uint64("user", editedBy))
	return v, nil
}

// ListByDocument Ascending 为存储顺序；Descending 为历史视图（时间倒序，时间相同按版本号倒序）
func (s *Service) ListByDocument(ctx context.Context, docID string, order entity.Order) ([]entity.Version, error) {
	versions, err := s.repo.ListByDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if order == entity.Descending {
		slices.SortStableFunc(versions, func(a, b entity.Version) int {
			if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
				return c
			}
			return b.VersionNumber - a.VersionNumber
		})
	}
	return versions, nil
}

func (s *Service) GetByID(ctx context.Context, id uint64) (entity.Version, error) {
	return s.repo.GetByID(ctx, id)
}

// Target 校验 versionID 存在且属于 docID，否则 ErrNotFound
func (s *Service) Target(ctx context.Context, docID string, versionID uint64) (entity.Version, error) {
	target, err := s.repo.GetByID(ctx, versionID)
	if err != nil {
		return entity.Version{}, err
	}
	if target.DocumentID != docID {
		return entity.Version{}, fmt.Errorf("version %d not in document %s: %w", versionID, docID, entity.ErrNotFound)
	}
	return target, nil
}

// Revert 以目标版本的内容和作者追加一条新版本
func (s *Service) Revert(ctx context.Context, docID string, versionID uint64) (entity.Version, error) {
	target, err := s.Target(ctx, docID, versionID)
	if err != nil {
		return entity.Version{}, err
	}
	return s.Append(ctx, docID, target.Content, target.EditedByUserID, RevertDescription(target))
}

func (s *Service) Latest(ctx context.Context, docID string) (entity.Version, bool, error) {
	return s.repo.Latest(ctx, docID)
}

func (s *Service) ListByUser(ctx context.Context, userID uint64) ([]entity.Version, error) {
	return s.repo.ListByUser(ctx, userID)
}

func RevertDescription(target entity.Version) string {
	return fmt.Sprintf("Reverted to version %d", target.VersionNumber)
}
