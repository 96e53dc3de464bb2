package entity

import "time"

// Version 一旦写入就不可变；同一文档的 VersionNumber 从 1 开始连续递增
type Version struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID        string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_doc_version,priority:1;index" json:"documentId"`
	Content           string    `gorm:"type:longtext" json:"content"`
	EditedByUserID    uint64    `gorm:"index" json:"editedByUserId"`
	Timestamp         time.Time `json:"timestamp"`
	VersionNumber     int       `gorm:"not null;uniqueIndex:uk_doc_version,priority:2" json:"versionNumber"`
	ChangeDescription string    `gorm:"type:varchar(500)" json:"changeDescription,omitempty"`
}

func (Version) TableName() string { return "document_versions" }

// VersionHead 每个文档一行的版本号计数器，用于在事务里串行分配版本号
type VersionHead struct {
	DocumentID string `gorm:"primaryKey;type:varchar(64)"`
	LastNumber int    `gorm:"not null;default:0"`
}

func (VersionHead) TableName() string { return "document_version_heads" }

// 列表排序方式
type Order int

const (
	// 存储顺序（版本号升序）
	Ascending Order = iota
	// 历史视图：时间倒序，时间相同按版本号倒序
	Descending
)

type ContributionEntry struct {
	UserID    uint64    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	VersionID uint64    `json:"versionId"`
}

type Contributions struct {
	DocumentID    string              `json:"documentId"`
	TotalVersions int                 `json:"totalVersions"`
	PerUserCount  map[uint64]int      `json:"userContributions"`
	Entries       []ContributionEntry `json:"contributions"`
}
