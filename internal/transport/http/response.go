package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"image-processor-go/internal/platform/errors"
)

// APIResponse 定义统一的接口返回结构体
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// RespondSuccess 返回成功响应
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	resp := APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondError 返回失败响应
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	resp := APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondErr maps err onto a status code and writes the error envelope.
// data is attached as-is, e.g. the session left behind by a failed action.
func RespondErr(c *gin.Context, err error, data interface{}) {
	status := StatusFor(err)
	_ = c.Error(err)
	RespondError(c, status, errors.MessageOf(err), data)
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindAcquisition:
		return http.StatusUnprocessableEntity
	case errors.KindModel:
		return http.StatusBadGateway
	case errors.KindDomain:
		return http.StatusConflict
	case errors.KindTransport:
		return http.StatusBadRequest
	case errors.KindConfig, errors.KindVision:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
