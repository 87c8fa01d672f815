package order

import (
	"errors"
	"fmt"
)

// ErrNotFound 订单在存储中不存在，不可重试。
var ErrNotFound = errors.New("order not found")

// ErrUnsupportedType 未知订单类型，永久失败。
var ErrUnsupportedType = errors.New("unsupported order type")

// TransientError 表示本次失败在稍后重试时可能恢复：
// 目标价未到、触发时间未到、模拟网络拥堵等。调度器据此决定退避重试。
type TransientError struct {
	Reason string
}

func (e *TransientError) Error() string {
	return e.Reason
}

// NewTransient 构造一个可重试错误。
func NewTransient(format string, args ...interface{}) *TransientError {
	return &TransientError{Reason: fmt.Sprintf(format, args...)}
}

// IsTransient 判断错误是否可重试。
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ValidationError 订单字段在编排器内部的兜底校验失败（缺触发价等），永久失败。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}
