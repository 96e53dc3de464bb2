package entity

import "errors"

var (
	ErrNotFound         = errors.New("NOT_FOUND")
	ErrPermissionDenied = errors.New("PERMISSION_DENIED")
	// 唯一键冲突；分享接口按幂等处理，不会向调用方暴露
	ErrConflict = errors.New("CONFLICT")
	// 存储暂时不可用（版本写入、查询失败）
	ErrStoreUnavailable = errors.New("STORE_UNAVAILABLE")
	ErrInvalidArgument  = errors.New("INVALID_ARGUMENT")
)

// Code 返回 err 对应的错误码，未知错误统一为 INTERNAL
func Code(err error) string {
	for _, known := range []error{ErrNotFound, ErrPermissionDenied, ErrConflict, ErrStoreUnavailable, ErrInvalidArgument} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "INTERNAL"
}
