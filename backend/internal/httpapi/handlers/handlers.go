package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docSyncServer/backend/internal/cache"
	"docSyncServer/backend/internal/collab"
	"docSyncServer/backend/internal/contrib"
	"docSyncServer/backend/internal/entity"
	"docSyncServer/backend/internal/share"
	"docSyncServer/backend/internal/version"
)

type Handlers struct {
	collab   *collab.Service
	gate     *share.Gate
	versions *version.Service
	contrib  *contrib.Aggregator
	// 可选
	presence cache.PresenceCache
	log      *zap.Logger
}

func New(svc *collab.Service, gate *share.Gate, versions *version.Service, agg *contrib.Aggregator, presence cache.PresenceCache, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{collab: svc, gate: gate, versions: versions, contrib: agg, presence: presence, log: log}
}

// require 校验当前用户对文档的权限，失败时已写好响应
func (h *Handlers) require(c *gin.Context, docID string, level entity.Permission) (uint64, bool) {
	uid, ok := currentUser(c)
	if !ok {
		return 0, false
	}
	allowed, err := h.gate.Authorize(c.Request.Context(), docID, uid, level)
	if err != nil {
		writeError(c, err)
		return 0, false
	}
	if !allowed {
		writeError(c, fmt.Errorf("user %d needs %s access to document %s: %w", uid, level, docID, entity.ErrPermissionDenied))
		return 0, false
	}
	return uid, true
}
