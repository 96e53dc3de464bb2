package contrib

import (
	"context"

	"docSyncServer/backend/internal/entity"
)

// VersionReader 贡献统计只需要读取版本日志
type VersionReader interface {
	ListByDocument(ctx context.Context, docID string, order entity.Order) ([]entity.Version, error)
	ListByUser(ctx context.Context, userID uint64) ([]entity.Version, error)
}

// Aggregator 没有自己的状态，每次调用都从版本日志重新计算
type Aggregator struct {
	versions VersionReader
}

func NewAggregator(versions VersionReader) *Aggregator {
	return &Aggregator{versions: versions}
}

func (a *Aggregator) ContributionsFor(ctx context.Context, docID string) (entity.Contributions, error) {
	versions, err := a.versions.ListByDocument(ctx, docID, entity.Ascending)
	if err != nil {
		return entity.Contributions{}, err
	}
	out := entity.Contributions{
		DocumentID:    docID,
		TotalVersions: len(versions),
		PerUserCount:  make(map[uint64]int),
		Entries:       make([]entity.ContributionEntry, 0, len(versions)),
	}
	for _, v := range versions {
		out.PerUserCount[v.EditedByUserID]++
		out.Entries = append(out.Entries, entity.ContributionEntry{
			UserID:    v.EditedByUserID,
			Timestamp: v.Timestamp,
			VersionID: v.ID,
		})
	}
	return out, nil
}

func (a *Aggregator) VersionsByUser(ctx context.Context, userID uint64) ([]entity.Version, error) {
	return a.versions.ListByUser(ctx, userID)
}
