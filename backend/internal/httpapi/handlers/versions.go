package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docSyncServer/backend/internal/entity"
)

type createVersionRequest struct {
	DocumentID        string `json:"documentId"`
	Content           string `json:"content"`
	EditedByUserID    uint64 `json:"editedByUserId"`
	ChangeDescription string `json:"changeDescription"`
}

func wrapBind(err error) error {
	return fmt.Errorf("%w: %v", entity.ErrInvalidArgument, err)
}

// POST /versions
func (h *Handlers) CreateVersion(c *gin.Context) {
	var req createVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, wrapBind(err))
		return
	}
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	if req.DocumentID == "" {
		writeError(c, fmt.Errorf("%w: missing documentId", entity.ErrInvalidArgument))
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	res, err := h.collab.Record(c.Request.Context(), req.DocumentID, uid, req.EditedByUserID, req.Content, req.ChangeDescription)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Version == nil {
		// 内容已生效并广播，但没有落成版本
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    entity.Code(entity.ErrStoreUnavailable),
			"message": res.Warning,
			"state":   res.State,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Version saved successfully", "version": res.Version})
}

// GET /versions/document/:documentId
func (h *Handlers) ListVersions(c *gin.Context) {
	h.listVersions(c, entity.Ascending)
}

// GET /versions/document/:documentId/history
func (h *Handlers) VersionHistory(c *gin.Context) {
	h.listVersions(c, entity.Descending)
}

func (h *Handlers) listVersions(c *gin.Context, order entity.Order) {
	docID := c.Param("documentId")
	if _, ok := h.require(c, docID, entity.PermissionView); !ok {
		return
	}
	versions, err := h.versions.ListByDocument(c.Request.Context(), docID, order)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// GET /versions/document/:documentId/contributions
func (h *Handlers) DocumentContributions(c *gin.Context) {
	docID := c.Param("documentId")
	if _, ok := h.require(c, docID, entity.PermissionView); !ok {
		return
	}
	out, err := h.contrib.ContributionsFor(c.Request.Context(), docID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GET /versions/:id
func (h *Handlers) GetVersion(c *gin.Context) {
	id, ok := parseID(c, c.Param("id"), "version id")
	if !ok {
		return
	}
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	v, err := h.versions.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	// 无权查看与不存在返回同样的 404，不泄露版本 id 是否存在
	allowed, err := h.gate.Authorize(c.Request.Context(), v.DocumentID, uid, entity.PermissionView)
	if err != nil {
		writeError(c, err)
		return
	}
	if !allowed {
		writeError(c, fmt.Errorf("version %d: %w", id, entity.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, v)
}

// POST /versions/revert/:documentId/:versionId
func (h *Handlers) RevertVersion(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	versionID, ok := parseID(c, c.Param("versionId"), "version id")
	if !ok {
		return
	}
	res, err := h.collab.Revert(c.Request.Context(), c.Param("documentId"), versionID, uid)
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{"message": "Document reverted successfully", "newVersion": res.Version}
	if res.Warning != "" {
		body["warning"] = res.Warning
	}
	c.JSON(http.StatusOK, body)
}

// GET /versions/user/:userId/contributions
func (h *Handlers) UserContributions(c *gin.Context) {
	uid, ok := parseID(c, c.Param("userId"), "userId")
	if !ok {
		return
	}
	versions, err := h.contrib.VersionsByUser(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (h *Handlers) NotFound(c *gin.Context) {
	writeError(c, fmt.Errorf("route %s %s: %w", c.Request.Method, c.Request.URL.Path, entity.ErrNotFound))
}
