package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"docSyncServer/backend/internal/entity"
	"docSyncServer/backend/internal/repo"
)

const shareColumns = `id, document_id, shared_with_user_id, permission, shared_at`

// ShareStore 基于 MySQL 的分享记录，(document_id, shared_with_user_id) 上有唯一索引
type ShareStore struct{ db *sql.DB }

var _ repo.ShareRepo = (*ShareStore)(nil)

func NewShareStore(db *sql.DB) *ShareStore {
	return &ShareStore{db: db}
}

func (s *ShareStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS shared_documents (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		document_id VARCHAR(64) NOT NULL,
		shared_with_user_id BIGINT UNSIGNED NOT NULL,
		permission VARCHAR(16) NOT NULL DEFAULT 'edit',
		shared_at DATETIME(6) NOT NULL,
		UNIQUE KEY uk_doc_user (document_id, shared_with_user_id),
		KEY idx_shared_with (shared_with_user_id)
	)`)
	return err
}

func (s *ShareStore) CreateIfAbsent(ctx context.Context, entry entity.ShareEntry) (bool, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shared_documents (document_id, shared_with_user_id, permission, shared_at)
		VALUES (?, ?, ?, ?)`,
		entry.DocumentID,
		entry.SharedWithUserID,
		string(entry.Permission),
		entry.SharedAt,
	)
	if err != nil {
		// 1062 = duplicate key，已分享过，保持原权限不变
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	return true, nil
}

func (s *ShareStore) Delete(ctx context.Context, docID string, userID uint64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM shared_documents WHERE document_id = ? AND shared_with_user_id = ?`,
		docID, userID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *ShareStore) Get(ctx context.Context, docID string, userID uint64) (entity.ShareEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+shareColumns+` FROM shared_documents WHERE document_id = ? AND shared_with_user_id = ?`,
		docID, userID,
	)
	e, err := scanShare(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.ShareEntry{}, fmt.Errorf("share doc=%s user=%d: %w", docID, userID, entity.ErrNotFound)
		}
		return entity.ShareEntry{}, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	return e, nil
}

func (s *ShareStore) ListBySharedWith(ctx context.Context, userID uint64) ([]entity.ShareEntry, error) {
	return s.list(ctx, `SELECT `+shareColumns+` FROM shared_documents WHERE shared_with_user_id = ? ORDER BY id`, userID)
}

func (s *ShareStore) ListByDocument(ctx context.Context, docID string) ([]entity.ShareEntry, error) {
	return s.list(ctx, `SELECT `+shareColumns+` FROM shared_documents WHERE document_id = ? ORDER BY id`, docID)
}

func (s *ShareStore) list(ctx context.Context, query string, arg any) ([]entity.ShareEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	out := make([]entity.ShareEntry, 0)
	for rows.Next() {
		e, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShare(r rowScanner) (entity.ShareEntry, error) {
	var e entity.ShareEntry
	var perm string
	if err := r.Scan(&e.ID, &e.DocumentID, &e.SharedWithUserID, &perm, &e.SharedAt); err != nil {
		return entity.ShareEntry{}, err
	}
	e.Permission = entity.Permission(perm)
	return e, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
