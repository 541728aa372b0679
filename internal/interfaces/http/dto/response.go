// Package dto HTTP 层请求与响应结构
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"z-script-ai-api/internal/domain/repository"
	"z-script-ai-api/pkg/errors"
)

// Response 成功响应信封
type Response[T any] struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    T         `json:"data,omitempty"`
	Meta    *PageMeta `json:"meta,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
}

// PageMeta 分页信息
type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// ErrorDetail 业务错误码与补充说明
type ErrorDetail struct {
	ErrorCode string `json:"error_code,omitempty"`
	Details   string `json:"details,omitempty"`
}

// ErrorResponse 错误响应信封
type ErrorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

func traceID(c *gin.Context) string {
	return c.GetString("trace_id")
}

func write[T any](c *gin.Context, status int, message string, data T, meta *PageMeta) {
	c.JSON(status, Response[T]{Code: status, Message: message, Data: data, Meta: meta, TraceID: traceID(c)})
}

// Success 200
func Success[T any](c *gin.Context, data T) {
	write(c, http.StatusOK, "success", data, nil)
}

// Created 201
func Created[T any](c *gin.Context, data T) {
	write(c, http.StatusCreated, "created", data, nil)
}

// Accepted 202，任务已进入队列
func Accepted[T any](c *gin.Context, data T) {
	write(c, http.StatusAccepted, "accepted", data, nil)
}

// Page 200，附带分页信息
func Page[T, U any](c *gin.Context, data U, page *repository.PagedResult[T]) {
	write(c, http.StatusOK, "success", data, &PageMeta{
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	})
}

// Fail 中止请求并写出错误信封；code 为空时不带业务错误码
func Fail(c *gin.Context, status int, code errors.ErrorCode, message, details string) {
	var detail *ErrorDetail
	if code != "" || details != "" {
		detail = &ErrorDetail{ErrorCode: string(code), Details: details}
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: status, Message: message, Error: detail, TraceID: traceID(c)})
}

// AppError 按 AppError 自带的 HTTP 状态与错误码返回
func AppError(c *gin.Context, appErr *errors.AppError) {
	Fail(c, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Detail)
}

// BadRequest 400
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, errors.CodeInvalidParam, message, "")
}

// InternalError 500
func InternalError(c *gin.Context, message string) {
	Fail(c, http.StatusInternalServerError, errors.CodeInternalError, message, "")
}

// TooManyRequests 429
func TooManyRequests(c *gin.Context) {
	Fail(c, http.StatusTooManyRequests, errors.CodeTooManyRequests, "rate limit exceeded", "")
}
