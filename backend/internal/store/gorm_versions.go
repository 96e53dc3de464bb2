package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docSyncServer/backend/internal/entity"
	"docSyncServer/backend/internal/repo"
)

// GormVersionStore 版本日志的 MySQL 实现
// 版本号由 document_version_heads 的行锁串行分配，(document_id, version_number) 唯一索引兜底
type GormVersionStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ repo.VersionRepo = (*GormVersionStore)(nil)

func NewGormVersionStore(db *gorm.DB) *GormVersionStore {
	return &GormVersionStore{db: db, now: time.Now}
}

func (s *GormVersionStore) Append(ctx context.Context, docID string, content string, editedBy uint64, description string) (entity.Version, error) {
	var out entity.Version
	var err error
	// 计数器行和版本表不一致时（例如历史数据导入）重新对齐一次再重试
	for attempt := 0; attempt < 2; attempt++ {
		out, err = s.appendOnce(ctx, docID, content, editedBy, description)
		if err == nil {
			return out, nil
		}
		if !isDuplicateKey(err) || attempt == 1 {
			break
		}
		if syncErr := s.resyncHead(ctx, docID); syncErr != nil {
			err = syncErr
			break
		}
	}
	return entity.Version{}, fmt.Errorf("%w: append version doc=%s: %v", entity.ErrStoreUnavailable, docID, err)
}

func (s *GormVersionStore) appendOnce(ctx context.Context, docID string, content string, editedBy uint64, description string) (entity.Version, error) {
	var out entity.Version
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&entity.VersionHead{DocumentID: docID}).Error; err != nil {
			return err
		}
		var head entity.VersionHead
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("document_id = ?", docID).First(&head).Error; err != nil {
			return err
		}

		// 多实例时钟可能不同步，时间戳不早于上一版本，保证随版本号单调不减
		ts := s.now()
		if head.LastNumber > 0 {
			var prev entity.Version
			err := tx.Select("id", "timestamp").
				Where("document_id = ? AND version_number = ?", docID, head.LastNumber).
				Take(&prev).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			ts = notBefore(ts, prev.Timestamp)
		}

		out = entity.Version{
			DocumentID:        docID,
			Content:           content,
			EditedByUserID:    editedBy,
			Timestamp:         ts,
			VersionNumber:     head.LastNumber + 1,
			ChangeDescription: description,
		}
		if err := tx.Create(&out).Error; err != nil {
			return err
		}
		return tx.Model(&entity.VersionHead{}).
			Where("document_id = ?", docID).
			Update("last_number", out.VersionNumber).Error
	})
	return out, err
}

func notBefore(ts, prev time.Time) time.Time {
	if ts.Before(prev) {
		return prev
	}
	return ts
}

func (s *GormVersionStore) resyncHead(ctx context.Context, docID string) error {
	var maxNumber int
	db := s.db.WithContext(ctx)
	if err := db.Model(&entity.Version{}).
		Where("document_id = ?", docID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&maxNumber).Error; err != nil {
		return err
	}
	return db.Model(&entity.VersionHead{}).
		Where("document_id = ?", docID).
		Update("last_number", maxNumber).Error
}

func (s *GormVersionStore) ListByDocument(ctx context.Context, docID string) ([]entity.Version, error) {
	out := make([]entity.Version, 0)
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("version_number ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	return out, nil
}

func (s *GormVersionStore) GetByID(ctx context.Context, id uint64) (entity.Version, error) {
	var v entity.Version
	err := s.db.WithContext(ctx).First(&v, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.Version{}, fmt.Errorf("version %d: %w", id, entity.ErrNotFound)
		}
		return entity.Version{}, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	return v, nil
}

func (s *GormVersionStore) Latest(ctx context.Context, docID string) (entity.Version, bool, error) {
	var v entity.Version
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("version_number DESC").
		Limit(1).
		Take(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.Version{}, false, nil
		}
		return entity.Version{}, false, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	return v, true, nil
}

func (s *GormVersionStore) ListByUser(ctx context.Context, userID uint64) ([]entity.Version, error) {
	out := make([]entity.Version, 0)
	err := s.db.WithContext(ctx).
		Where("edited_by_user_id = ?", userID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	return out, nil
}
