// Package errors 定义 finrouter 的结构化错误。
//
// 每个 *Errno 带有 7 位错误码 AABBCCC（AA 服务、BB 类别、CCC 序号）、
// 对应的 HTTP 状态和中英文消息。错误码在包初始化时注册，重复即 panic。
//
//	return errors.ErrQueryExecution.WithCause(err)
//	errors.Is(err, errors.ErrQueryExecution) // 按错误码匹配
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Errno is a registered error code. Registered values are shared; the With*
// methods return copies.
type Errno struct {
	Code      int    `json:"code"`
	HTTP      int    `json:"-"`
	MessageEN string `json:"message"`
	MessageZH string `json:"message_zh,omitempty"`

	cause error
}

func (e *Errno) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("errno %d: %s", e.Code, e.MessageEN)
	}
	return fmt.Sprintf("errno %d: %s: %v", e.Code, e.MessageEN, e.cause)
}

func (e *Errno) Unwrap() error { return e.cause }

// Is matches any *Errno with the same code.
func (e *Errno) Is(target error) bool {
	t, ok := target.(*Errno)
	return ok && t.Code == e.Code
}

// Cause returns the wrapped error, if any.
func (e *Errno) Cause() error { return e.cause }

// WithCause returns a copy wrapping cause.
func (e *Errno) WithCause(cause error) *Errno {
	c := *e
	c.cause = cause
	return &c
}

// WithMessage returns a copy with a different English message.
func (e *Errno) WithMessage(msg string) *Errno {
	c := *e
	c.MessageEN = msg
	return &c
}

// WithMessagef is WithMessage with formatting.
func (e *Errno) WithMessagef(format string, args ...any) *Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Message returns the Chinese message for zh locales, English otherwise.
func (e *Errno) Message(lang string) string {
	if e.MessageZH != "" && (lang == "zh" || lang == "zh-CN" || lang == "zh_CN") {
		return e.MessageZH
	}
	return e.MessageEN
}

// Detail is the text shown to users: the English message, then the cause.
func (e *Errno) Detail() string {
	if e.cause == nil {
		return e.MessageEN
	}
	return e.MessageEN + ": " + e.cause.Error()
}

// HTTPStatus returns the mapped status, 500 when unset.
func (e *Errno) HTTPStatus() int {
	if e.HTTP == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTP
}

// FromError returns the first *Errno in err's chain, or err wrapped in
// ErrInternal. It returns nil for nil.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if stderrors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// GetCode returns the code carried by err, or -1.
func GetCode(err error) int {
	var e *Errno
	if stderrors.As(err, &e) {
		return e.Code
	}
	return -1
}

// IsCode reports whether err carries code.
func IsCode(err error, code int) bool {
	return err != nil && GetCode(err) == code
}
