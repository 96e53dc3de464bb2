package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docSyncServer/backend/internal/entity"
)

type UserStore struct{ db *sql.DB }

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) UserExists(ctx context.Context, userID uint64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE id = ?`,
		userID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", entity.ErrStoreUnavailable, err)
	}
	return true, nil
}
