package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"docSyncServer/backend/internal/entity"
)

func TestMemoryShareStore_CreateIfAbsentKeepsFirst(t *testing.T) {
	s := NewMemoryShareStore()
	ctx := context.Background()

	created, err := s.CreateIfAbsent(ctx, entity.ShareEntry{DocumentID: "d1", SharedWithUserID: 2, Permission: entity.PermissionView, SharedAt: time.Now()})
	if err != nil || !created {
		t.Fatalf("first CreateIfAbsent() created=%v err=%v", created, err)
	}
	created, err = s.CreateIfAbsent(ctx, entity.ShareEntry{DocumentID: "d1", SharedWithUserID: 2, Permission: entity.PermissionEdit, SharedAt: time.Now()})
	if err != nil || created {
		t.Fatalf("second CreateIfAbsent() created=%v err=%v", created, err)
	}

	e, err := s.Get(ctx, "d1", 2)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	assert.Equal(t, e.Permission, entity.PermissionView)

	list, _ := s.ListBySharedWith(ctx, 2)
	assert.Equal(t, len(list), 1)
}

func TestMemoryShareStore_DeleteIsIdempotent(t *testing.T) {
	s := NewMemoryShareStore()
	ctx := context.Background()
	_, _ = s.CreateIfAbsent(ctx, entity.ShareEntry{DocumentID: "d1", SharedWithUserID: 2, Permission: entity.PermissionEdit})

	if err := s.Delete(ctx, "d1", 2); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "d1", 2); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "d1", 2); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
	docs, _ := s.ListByDocument(ctx, "d1")
	assert.Equal(t, len(docs), 0)
}
