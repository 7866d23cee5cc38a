// Package apperrors 定义业务错误分类以及到 HTTP 状态码的映射
package apperrors

import (
	"errors"
	"net/http"
)

// Code 机器可读的错误代码
type Code string

const (
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeCapacityExceeded Code = "CAPACITY_EXCEEDED"
	CodeConflict         Code = "CONFLICT"
	CodeMethodNotAllowed Code = "METHOD_NOT_ALLOWED"
	CodeInternal         Code = "INTERNAL_SERVER_ERROR"
)

// Error 业务错误，Message 会原样返回给调用方
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus 返回错误代码对应的 HTTP 状态码
func (e *Error) HTTPStatus() int {
	return StatusFor(e.Code)
}

// StatusFor 错误代码 -> HTTP 状态码
func StatusFor(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeValidation, CodeInvalidState, CodeCapacityExceeded:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// New 创建业务错误
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap 创建包装了底层原因的业务错误
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Validation(message string) *Error   { return New(CodeValidation, message) }
func NotFound(message string) *Error     { return New(CodeNotFound, message) }
func InvalidState(message string) *Error { return New(CodeInvalidState, message) }
func Unauthorized(message string) *Error { return New(CodeUnauthorized, message) }
func Conflict(message string) *Error     { return New(CodeConflict, message) }

// From 从错误链中取出业务错误；没有则返回 nil
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// CodeOf 返回错误链中的业务错误代码，非业务错误视为 INTERNAL
func CodeOf(err error) Code {
	if appErr := From(err); appErr != nil {
		return appErr.Code
	}
	return CodeInternal
}
