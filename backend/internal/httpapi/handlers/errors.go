package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docSyncServer/backend/internal/entity"
)

// statusFor 错误到 HTTP 状态码的唯一映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, entity.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"code": entity.Code(err), "message": msg})
}

func parseID(c *gin.Context, raw string, name string) (uint64, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeError(c, fmt.Errorf("%w: invalid %s %q", entity.ErrInvalidArgument, name, raw))
		return 0, false
	}
	return id, true
}

// 鉴权中间件写入的 userId
func currentUser(c *gin.Context) (uint64, bool) {
	uid, ok := c.Get("userId")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "user context missing"})
		return 0, false
	}
	id, ok := uid.(uint64)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "message": "invalid user id format"})
		return 0, false
	}
	return id, true
}
