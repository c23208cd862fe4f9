package response

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/finrouter/pkg/utils/errors"
	"github.com/kart-io/finrouter/pkg/utils/validator"
)

// ContextKeyRequestID is where the request-id middleware stores the id.
const ContextKeyRequestID = "request_id"

// Writer renders envelopes on a gin context, stamping the request id.
type Writer struct {
	c *gin.Context
}

func NewWriter(c *gin.Context) *Writer {
	return &Writer{c: c}
}

func (w *Writer) write(r *Response) {
	if id := w.c.GetString(ContextKeyRequestID); id != "" {
		r.RequestID = id
	}
	w.c.JSON(r.HTTPStatus(), r)
}

func (w *Writer) OK(data interface{}) { w.write(Success(data)) }

func (w *Writer) Fail(e *errors.Errno) { w.write(Err(e)) }

func (w *Writer) FailWithError(err error) { w.write(FromError(err)) }

// FailWithData writes e with data attached, e.g. per-dependency probe results.
func (w *Writer) FailWithData(e *errors.Errno, data interface{}) {
	r := Err(e)
	r.Data = data
	w.write(r)
}

// FailWithValidation answers 400 with the first message and every field error as data.
func (w *Writer) FailWithValidation(verr *validator.ValidationErrors) {
	w.write(envelope(errors.ErrValidationFailed.Code, http.StatusBadRequest, verr.First(), verr.Errors))
}

// FailWithBindOrValidation distinguishes a validation failure from a body
// that could not be decoded.
func (w *Writer) FailWithBindOrValidation(err error) {
	var verr *validator.ValidationErrors
	if stderrors.As(err, &verr) {
		w.FailWithValidation(verr)
		return
	}
	w.Fail(errors.ErrInvalidParam.WithMessage("invalid request body: " + err.Error()))
}

// Abort writes e and stops the handler chain.
func (w *Writer) Abort(e *errors.Errno) {
	w.Fail(e)
	w.c.Abort()
}

func OK(c *gin.Context, data interface{})                { NewWriter(c).OK(data) }
func Fail(c *gin.Context, e *errors.Errno)               { NewWriter(c).Fail(e) }
func FailWithError(c *gin.Context, err error)            { NewWriter(c).FailWithError(err) }
func FailWithBindOrValidation(c *gin.Context, err error) { NewWriter(c).FailWithBindOrValidation(err) }
