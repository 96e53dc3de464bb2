package ws

import (
	"docSyncServer/backend/internal/entity"
)

const (
	TypeEdit             = "edit"
	TypeHeartbeat        = "heartbeat"
	TypeShowAliveMembers = "show_alive_members"

	TypeWelcome       = "welcome"
	TypeDocumentState = "document_state"
	TypeEditApplied   = "edit_applied"
	TypeFeedback      = "feedback"
	TypeError         = "error"
	TypeIgnored       = "ignored"
)

type ClientMessage struct {
	Type  string `json:"type"`
	DocID string `json:"docId,omitempty"`
	// "full"（默认）或 "patch"，patch 会被拒绝
	Op      string `json:"op,omitempty"`
	Content string `json:"content,omitempty"`
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

type ServerMessage struct {
	Type    string                `json:"type"`
	DocID   string                `json:"docId,omitempty"`
	Code    string                `json:"code,omitempty"`
	Content string                `json:"content,omitempty"`
	Members []PresenceMember      `json:"members,omitempty"`
	State   *entity.DocumentState `json:"state,omitempty"`
	Version *entity.Version       `json:"version,omitempty"`
	Warning string                `json:"warning,omitempty"`
}
