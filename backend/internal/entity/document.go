package entity

import "time"

// DocumentState 文档的权威内存快照，只由 collab 服务在单写者临界区内修改
type DocumentState struct {
	DocID        string    `json:"documentId"`
	Content      string    `json:"content"`
	LastEditorID uint64    `json:"lastEditorId,omitempty"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// StateFromVersion 用版本日志中最新的一条重建文档状态
func StateFromVersion(v Version) DocumentState {
	return DocumentState{
		DocID:        v.DocumentID,
		Content:      v.Content,
		LastEditorID: v.EditedByUserID,
		LastUpdated:  v.Timestamp,
	}
}
