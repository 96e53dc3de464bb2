package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"docSyncServer/backend/internal/entity"
)

func TestMemoryVersionStore_AppendNumbersFromOne(t *testing.T) {
	s := NewMemoryVersionStore()
	ctx := context.Background()

	v1, err := s.Append(ctx, "d1", "hello", 1, "")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	v2, err := s.Append(ctx, "d1", "hello world", 2, "Document updated")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	other, err := s.Append(ctx, "d2", "x", 1, "")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	assert.Equal(t, v1.VersionNumber, 1)
	assert.Equal(t, v2.VersionNumber, 2)
	assert.Equal(t, other.VersionNumber, 1)
	assert.NotEqual(t, v1.ID, v2.ID)
	assert.NotEqual(t, v2.ID, other.ID)
	assert.Equal(t, v2.ChangeDescription, "Document updated")
}

func TestMemoryVersionStore_ConcurrentAppendIsGapless(t *testing.T) {
	s := NewMemoryVersionStore()
	ctx := context.Background()

	const writers = 16
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := s.Append(ctx, "doc", fmt.Sprintf("w%d-%d", w, i), uint64(w), ""); err != nil {
					t.Errorf("Append() error = %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	versions, err := s.ListByDocument(ctx, "doc")
	if err != nil {
		t.Fatalf("ListByDocument() error = %v", err)
	}
	if len(versions) != writers*perWriter {
		t.Fatalf("len = %d, want %d", len(versions), writers*perWriter)
	}
	seen := make(map[uint64]bool)
	for i, v := range versions {
		if v.VersionNumber != i+1 {
			t.Fatalf("versions[%d].VersionNumber = %d, want %d", i, v.VersionNumber, i+1)
		}
		if i > 0 && v.Timestamp.Before(versions[i-1].Timestamp) {
			t.Fatalf("timestamp decreased at version %d", v.VersionNumber)
		}
		if seen[v.ID] {
			t.Fatalf("duplicate id %d", v.ID)
		}
		seen[v.ID] = true
	}
}

func TestMemoryVersionStore_TimestampNeverDecreases(t *testing.T) {
	s := NewMemoryVersionStore()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Minute)}
	s.now = func() time.Time {
		next := clock[0]
		clock = clock[1:]
		return next
	}
	ctx := context.Background()
	_, _ = s.Append(ctx, "d", "a", 1, "")
	v2, _ := s.Append(ctx, "d", "b", 1, "")
	if v2.Timestamp.Before(base) {
		t.Fatalf("v2.Timestamp = %v, want >= %v", v2.Timestamp, base)
	}
}

func TestMemoryVersionStore_GetLatestAndByUser(t *testing.T) {
	s := NewMemoryVersionStore()
	ctx := context.Background()

	if _, ok, err := s.Latest(ctx, "missing"); err != nil || ok {
		t.Fatalf("Latest(missing) = ok=%v err=%v, want ok=false", ok, err)
	}
	if _, err := s.GetByID(ctx, 42); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("GetByID(42) error = %v, want ErrNotFound", err)
	}

	a, _ := s.Append(ctx, "d1", "a", 7, "")
	_, _ = s.Append(ctx, "d2", "b", 8, "")
	c, _ := s.Append(ctx, "d2", "c", 7, "")

	got, err := s.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	assert.Equal(t, got.Content, "a")

	latest, ok, err := s.Latest(ctx, "d2")
	if err != nil || !ok {
		t.Fatalf("Latest(d2) ok=%v err=%v", ok, err)
	}
	assert.Equal(t, latest.Content, "c")

	mine, _ := s.ListByUser(ctx, 7)
	if len(mine) != 2 || mine[0].ID != a.ID || mine[1].ID != c.ID {
		t.Fatalf("ListByUser(7) = %+v", mine)
	}
}

func TestNotBefore(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := notBefore(base.Add(-time.Second), base); !got.Equal(base) {
		t.Fatalf("notBefore(earlier) = %v, want %v", got, base)
	}
	later := base.Add(time.Second)
	if got := notBefore(later, base); !got.Equal(later) {
		t.Fatalf("notBefore(later) = %v, want %v", got, later)
	}
}
