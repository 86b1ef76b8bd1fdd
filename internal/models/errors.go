package models

import (
	"errors"
	"fmt"
)

// ErrorCode 是暴露给调用方的稳定错误码。
// 调用方永远不会看到内部异常原文，只会看到这里定义的错误码之一。
type ErrorCode string

const (
	CodeAgentNotFound        ErrorCode = "AGENT_NOT_FOUND"          // 未知的 agent id，调用方错误
	CodeAgentUnavailable     ErrorCode = "AGENT_UNAVAILABLE"        // 健康检查失败
	CodeModelCallFailed      ErrorCode = "MODEL_CALL_FAILED"        // 模型调用网络/超时错误
	CodeMalformedModelOutput ErrorCode = "MALFORMED_MODEL_OUTPUT"   // 模型输出无法解析
	CodeMissingParameter     ErrorCode = "MISSING_REQUIRED_PARAMETER" // 派发时缺失必填参数，属于编排器内部错误
	CodeWorkerFailure        ErrorCode = "WORKER_FAILURE"           // worker 返回 FAILURE
	CodeCacheUnavailable     ErrorCode = "CACHE_UNAVAILABLE"        // LTM 存储不可用
)

// SupervisorError 是带有稳定错误码的结构化错误。
type SupervisorError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"` // 底层错误，仅用于日志
}

func (e *SupervisorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 返回底层错误，支持 errors.Is / errors.As。
func (e *SupervisorError) Unwrap() error { return e.Err }

// NewSupervisorError 构造一个带错误码的结构化错误。
func NewSupervisorError(code ErrorCode, message string, err error) *SupervisorError {
	return &SupervisorError{Code: code, Message: message, Err: err}
}

// AsSupervisorError 尝试从任意错误中取出 SupervisorError。
func AsSupervisorError(err error) (*SupervisorError, bool) {
	var se *SupervisorError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ErrorCodeOf 返回错误对应的稳定错误码；无法识别时回退为 WORKER_FAILURE。
func ErrorCodeOf(err error) ErrorCode {
	if se, ok := AsSupervisorError(err); ok {
		return se.Code
	}
	return CodeWorkerFailure
}
