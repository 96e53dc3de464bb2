package entity

import (
	"fmt"
	"strings"
	"time"
)

type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

// ParsePermission 空字符串按 edit 处理（与分享接口的默认值一致）
func ParsePermission(s string) (Permission, error) {
	switch Permission(strings.ToLower(strings.TrimSpace(s))) {
	case "", PermissionEdit:
		return PermissionEdit, nil
	case PermissionView:
		return PermissionView, nil
	default:
		return "", fmt.Errorf("%w: unknown permission %q", ErrInvalidArgument, s)
	}
}

// Allows 判断该权限是否满足 required
func (p Permission) Allows(required Permission) bool {
	switch required {
	case PermissionView:
		return p == PermissionView || p == PermissionEdit
	case PermissionEdit:
		return p == PermissionEdit
	}
	return false
}

// ShareEntry (DocumentID, SharedWithUserID) 唯一
type ShareEntry struct {
	ID               uint64     `json:"id"`
	DocumentID       string     `json:"documentId"`
	SharedWithUserID uint64     `json:"sharedWithUserId"`
	Permission       Permission `json:"permission"`
	SharedAt         time.Time  `json:"sharedAt"`
}
