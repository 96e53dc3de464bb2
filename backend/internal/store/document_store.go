package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docSyncServer/backend/internal/entity"
)

// DocumentStore 只读访问文档元数据表（由文档服务维护）
type DocumentStore struct{ db *sql.DB }

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) GetOwnerID(ctx context.Context, docID string) (uint64, error) {
	var ownerID uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM documents WHERE id = ?`,
		docID,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("document %s: %w", docID, entity.ErrNotFound)
		}
		return 0, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	return ownerID, nil
}
