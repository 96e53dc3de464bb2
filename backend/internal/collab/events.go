package collab

import (
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	EventDocumentEdited   = "DOCUMENT_EDITED"
	EventDocumentReverted = "DOCUMENT_REVERTED"
	EventVersionCommitted = "VERSION_COMMITTED"
)

// DocEvent 发往 Kafka 的领域事件，只带元数据不带正文
type DocEvent struct {
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	DocID         string    `json:"docId"`
	AuthorID      uint64    `json:"authorId"`
	VersionID     uint64    `json:"versionId,omitempty"`
	VersionNumber int       `json:"versionNumber,omitempty"`
	ContentLength int       `json:"contentLength"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// EventSink 事件出口，TryEnqueue 不阻塞，返回 false 表示事件被丢弃
type EventSink interface {
	TryEnqueue(evt DocEvent) bool
}

func newEvent(eventType, docID string, authorID uint64, at time.Time) DocEvent {
	return DocEvent{
		EventID:    ulid.Make().String(),
		EventType:  eventType,
		DocID:      docID,
		AuthorID:   authorID,
		OccurredAt: at,
	}
}
