package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 用于统一管理业务错误，包含错误码和错误消息
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 会话/消息相关 20000-20999
	CodeUnknownParticipant   = 20001
	CodeSelfConversation     = 20002
	CodeConversationNotFound = 20003
	CodeNotAParticipant      = 20004
	CodeEmptyContent         = 20005
	CodeContentTooLong       = 20006

	// 连接认证相关 21000-21999
	CodeCredentialMissing = 21001
	CodeCredentialInvalid = 21002
	CodeAccountInactive   = 21003

	// 系统错误 50000-50999
	CodeServerError       = 50001
	CodeStoreUnavailable  = 50002
	CodeFanoutUnreachable = 50003
)

// ============== 预定义错误 ==============

// 会话/消息相关
var (
	ErrUnknownParticipant   = NewError(CodeUnknownParticipant, "participant does not exist")
	ErrSelfConversation     = NewError(CodeSelfConversation, "cannot start a conversation with yourself")
	ErrConversationNotFound = NewError(CodeConversationNotFound, "conversation not found")
	ErrNotAParticipant      = NewError(CodeNotAParticipant, "you are not a participant in this conversation")
	ErrEmptyContent         = NewError(CodeEmptyContent, "message content is empty")
	ErrContentTooLong       = NewError(CodeContentTooLong, "message content exceeds the length limit")
)

// 连接认证相关
var (
	ErrCredentialMissing = NewError(CodeCredentialMissing, "authentication credential missing")
	ErrCredentialInvalid = NewError(CodeCredentialInvalid, "authentication credential invalid")
	ErrAccountInactive   = NewError(CodeAccountInactive, "account is deactivated")
)

// 系统相关
var (
	ErrServerError       = NewError(CodeServerError, "internal server error")
	ErrStoreUnavailable  = NewError(CodeStoreUnavailable, "store temporarily unavailable")
	ErrFanoutUnreachable = NewError(CodeFanoutUnreachable, "fanout unreachable")
)
