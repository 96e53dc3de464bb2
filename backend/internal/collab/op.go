package collab

import (
	"fmt"
	"strings"

	"docSyncServer/backend/internal/entity"
)

type Op string

const (
	OpFull  Op = "full"
	OpPatch Op = "patch"
)

// ParseOp 只支持整篇替换；增量 patch 没有实现，显式拒绝
func ParseOp(s string) (Op, error) {
	switch Op(strings.ToLower(strings.TrimSpace(s))) {
	case "", OpFull:
		return OpFull, nil
	case OpPatch:
		return "", fmt.Errorf("%w: incremental patch unsupported", entity.ErrInvalidArgument)
	default:
		return "", fmt.Errorf("%w: unknown op %q", entity.ErrInvalidArgument, s)
	}
}
