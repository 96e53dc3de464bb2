package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docSyncServer/backend/internal/cache"
	"docSyncServer/backend/internal/collab"
	"docSyncServer/backend/internal/entity"
)

type editRequest struct {
	Content string `json:"content"`
	Op      string `json:"op"`
}

// POST /collab/documents/:docId/edit
func (h *Handlers) EditDocument(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, wrapBind(err))
		return
	}
	if _, err := collab.ParseOp(req.Op); err != nil {
		writeError(c, err)
		return
	}
	res, err := h.collab.Edit(c.Request.Context(), c.Param("docId"), uid, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"state":    res.State,
		"version":  res.Version,
		"warning":  res.Warning,
		"diverged": res.Version == nil,
	})
}

// documentView diverged=true 表示最近一次编辑已生效但还没有记录成版本
type documentView struct {
	entity.DocumentState
	Diverged bool `json:"diverged"`
}

// GET /collab/documents/:docId
func (h *Handlers) GetDocument(c *gin.Context) {
	docID := c.Param("docId")
	if _, ok := h.require(c, docID, entity.PermissionView); !ok {
		return
	}
	st, err := h.collab.Load(c.Request.Context(), docID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, documentView{DocumentState: st, Diverged: h.collab.Diverged(docID)})
}

// POST /collab/documents/:docId/share?userId=&permission=edit
func (h *Handlers) ShareDocument(c *gin.Context) {
	docID := c.Param("docId")
	if _, ok := h.require(c, docID, entity.PermissionEdit); !ok {
		return
	}
	target, ok := parseID(c, c.Query("userId"), "userId")
	if !ok {
		return
	}
	entry, created, err := h.gate.Share(c.Request.Context(), docID, target, c.DefaultQuery("permission", string(entity.PermissionEdit)))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Shared", "share": entry, "created": created})
}

// DELETE /collab/documents/:docId/share?userId=
func (h *Handlers) UnshareDocument(c *gin.Context) {
	docID := c.Param("docId")
	if _, ok := h.require(c, docID, entity.PermissionEdit); !ok {
		return
	}
	target, ok := parseID(c, c.Query("userId"), "userId")
	if !ok {
		return
	}
	if err := h.gate.Unshare(c.Request.Context(), docID, target); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unshared"})
}

// GET /collab/documents/:docId/shares
func (h *Handlers) ListDocumentShares(c *gin.Context) {
	docID := c.Param("docId")
	if _, ok := h.require(c, docID, entity.PermissionView); !ok {
		return
	}
	entries, err := h.gate.ListForDocument(c.Request.Context(), docID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GET /collab/shared-with/:userId
func (h *Handlers) SharedWith(c *gin.Context) {
	uid, ok := parseID(c, c.Param("userId"), "userId")
	if !ok {
		return
	}
	entries, err := h.gate.ListSharedWith(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GET /collab/documents/:docId/presence
func (h *Handlers) Presence(c *gin.Context) {
	docID := c.Param("docId")
	if _, ok := h.require(c, docID, entity.PermissionView); !ok {
		return
	}
	members := []cache.PresenceMember{}
	if h.presence != nil {
		var err error
		members, err = h.presence.GetAliveMembersWithNames(c.Request.Context(), docID)
		if err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"documentId":  docID,
		"members":     members,
		"subscribers": h.collab.SubscriberCount(docID),
	})
}
