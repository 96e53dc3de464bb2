package version

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"docSyncServer/backend/internal/entity"
	"docSyncServer/backend/internal/store"
)

func newTestService() *Service {
	return NewService(store.NewMemoryVersionStore(), nil)
}

func TestRevert_AppendsCopyAtNextNumber(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	v1, _ := s.Append(ctx, "D1", "hello", 1, "")
	_, _ = s.Append(ctx, "D1", "hello world", 2, "")

	v3, err := s.Revert(ctx, "D1", v1.ID)
	if err != nil {
		t.Fatalf("Revert() error = %v", err)
	}
	assert.Equal(t, v3.VersionNumber, 3)
	assert.Equal(t, v3.Content, "hello")
	assert.Equal(t, v3.EditedByUserID, uint64(1))
	assert.Equal(t, v3.ChangeDescription, "Reverted to version 1")

	all, _ := s.ListByDocument(ctx, "D1", entity.Ascending)
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	// 旧版本保持不变
	assert.Equal(t, all[0].Content, "hello")
	assert.Equal(t, all[1].Content, "hello world")
}

func TestRevert_NotFoundLeavesLogUnchanged(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, _ = s.Append(ctx, "D1", "hello", 1, "")
	other, _ := s.Append(ctx, "D2", "other doc", 1, "")

	if _, err := s.Revert(ctx, "D1", 999); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("Revert(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Revert(ctx, "D1", other.ID); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("Revert(cross-document) error = %v, want ErrNotFound", err)
	}
	all, _ := s.ListByDocument(ctx, "D1", entity.Ascending)
	assert.Equal(t, len(all), 1)
}

func TestListByDocument_HistoryOrder(t *testing.T) {
	mem := store.NewMemoryVersionStore()
	s := NewService(mem, nil)
	ctx := context.Background()

	for _, c := range []string{"a", "b", "c"} {
		if _, err := s.Append(ctx, "D1", c, 1, ""); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	asc, _ := s.ListByDocument(ctx, "D1", entity.Ascending)
	desc, _ := s.ListByDocument(ctx, "D1", entity.Descending)
	if len(asc) != 3 || len(desc) != 3 {
		t.Fatalf("len asc=%d desc=%d", len(asc), len(desc))
	}
	for i := range asc {
		assert.Equal(t, asc[i].VersionNumber, i+1)
		assert.Equal(t, desc[i].VersionNumber, 3-i)
	}
}

func TestListByDocument_DescendingTieBreak(t *testing.T) {
	same := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	r := &fixedRepo{versions: []entity.Version{
		{ID: 1, DocumentID: "D", VersionNumber: 1, Timestamp: same.Add(-time.Second)},
		{ID: 2, DocumentID: "D", VersionNumber: 2, Timestamp: same},
		{ID: 3, DocumentID: "D", VersionNumber: 3, Timestamp: same},
	}}
	s := NewService(r, nil)
	desc, err := s.ListByDocument(context.Background(), "D", entity.Descending)
	if err != nil {
		t.Fatalf("ListByDocument() error = %v", err)
	}
	got := []int{desc[0].VersionNumber, desc[1].VersionNumber, desc[2].VersionNumber}
	assert.Equal(t, got, []int{3, 2, 1})
}

func TestAppend_RejectsEmptyDocument(t *testing.T) {
	s := newTestService()
	if _, err := s.Append(context.Background(), "", "x", 1, ""); !errors.Is(err, entity.ErrInvalidArgument) {
		t.Fatalf("Append(\"\") error = %v, want ErrInvalidArgument", err)
	}
}

type fixedRepo struct {
	store.MemoryVersionStore
	versions []entity.Version
}

func (r *fixedRepo) ListByDocument(ctx context.Context, docID string) ([]entity.Version, error) {
	out := make([]entity.Version, len(r.versions))
	copy(out, r.versions)
	return out, nil
}
