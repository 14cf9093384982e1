package response

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/socialgraph/internal/apperr"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

func BadRequest(c *gin.Context, msg string) { abort(c, http.StatusBadRequest, msg) }

func NotFound(c *gin.Context, msg string) { abort(c, http.StatusNotFound, msg) }

func Conflict(c *gin.Context, msg string) { abort(c, http.StatusConflict, msg) }

func Forbidden(c *gin.Context, msg string) { abort(c, http.StatusForbidden, msg) }

func TooManyRequests(c *gin.Context) { abort(c, http.StatusTooManyRequests, "too many requests") }

func ServiceUnavailable(c *gin.Context, err error) {
	capture(c, err)
	abort(c, http.StatusServiceUnavailable, err.Error())
}

func InternalError(c *gin.Context, err error) {
	capture(c, err)
	abort(c, http.StatusInternalServerError, err.Error())
}

// Error 按错误分类映射 HTTP 状态码
func Error(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		Conflict(c, err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		Forbidden(c, err.Error())
	case errors.Is(err, apperr.ErrBadRequest):
		BadRequest(c, err.Error())
	case errors.Is(err, apperr.ErrStoreUnavailable):
		ServiceUnavailable(c, err)
	default:
		InternalError(c, err)
	}
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: msg})
}

func capture(c *gin.Context, err error) {
	if hub := sentry.GetHubFromContext(c.Request.Context()); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}
