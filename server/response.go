package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/eventstream/errors"
)

// DataResponse is the standard success envelope.
type DataResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error *errors.AppError `json:"error"`
}

// RespondWithError inspects err: if it is an *errors.AppError the status and
// body are derived from it; otherwise a generic 500 is sent.
func RespondWithError(c *gin.Context, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		c.JSON(appErr.Status(), ErrorResponse{Error: appErr})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: errors.Internal(err)})
}

// RespondOK sends a 200 response wrapping data.
func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, DataResponse{Data: data})
}
