package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	resp "go-user-service/internal/transport/http/response"
)

// AErr is the handler-boundary error: a status code plus the message
// the client is allowed to see. Anything else that reaches writeErr
// becomes a bare 500; internal detail stays in the logs.
type AErr struct {
	Code int
	Msg  string
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "handler error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error { return &AErr{Code: http.StatusBadRequest, Msg: msg} }
func Forbidden(msg string) error  { return &AErr{Code: http.StatusForbidden, Msg: msg} }
func NotFound(msg string) error   { return &AErr{Code: http.StatusNotFound, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: http.StatusInternalServerError, Msg: msg, Err: err}
}

func writeErr(c *gin.Context, l *zap.Logger, err error) {
	var ae *AErr
	if errors.As(err, &ae) {
		if ae.Code == http.StatusInternalServerError {
			l.Error(ae.Msg, zap.Error(ae.Err), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(ae.Code, resp.Error(ae.Code, ""))
			return
		}
		c.AbortWithStatusJSON(ae.Code, resp.Error(ae.Code, ae.Msg))
		return
	}
	l.Error("unexpected failure", zap.Error(err), zap.String("path", c.FullPath()))
	c.AbortWithStatusJSON(http.StatusInternalServerError, resp.Error(resp.CodeServerError, ""))
}
