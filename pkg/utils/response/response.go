// Package response 定义 finrouter HTTP 接口统一的 JSON 信封。
package response

import (
	"net/http"
	"time"

	"github.com/kart-io/finrouter/pkg/utils/errors"
)

// Response is the envelope. Code 0 means success; otherwise Code is an
// errno and Message its detail.
type Response struct {
	Code      int         `json:"code"`
	HTTPCode  int         `json:"http_code,omitempty"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

func envelope(code, status int, msg string, data interface{}) *Response {
	return &Response{
		Code:      code,
		HTTPCode:  status,
		Message:   msg,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Success wraps data in a 200 envelope.
func Success(data interface{}) *Response {
	return envelope(errors.OK.Code, http.StatusOK, "success", data)
}

// Err builds the envelope for e. A nil e is a success with no data.
func Err(e *errors.Errno) *Response {
	if e == nil {
		return Success(nil)
	}
	return envelope(e.Code, e.HTTPStatus(), e.Detail(), nil)
}

// FromError is Err(errors.FromError(err)).
func FromError(err error) *Response {
	return Err(errors.FromError(err))
}

// WithRequestID sets the request id and returns r.
func (r *Response) WithRequestID(id string) *Response {
	r.RequestID = id
	return r
}

// IsSuccess reports Code == 0.
func (r *Response) IsSuccess() bool {
	return r.Code == errors.OK.Code
}

// HTTPStatus returns HTTPCode, falling back to the registered errno status.
func (r *Response) HTTPStatus() int {
	switch {
	case r.HTTPCode != 0:
		return r.HTTPCode
	case r.IsSuccess():
		return http.StatusOK
	}
	if e, ok := errors.Lookup(r.Code); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
