// Package errors 提供统一的错误处理框架
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 错误码
type Code string

const (
	// 通用错误码
	CodeUnknown      Code = "UNKNOWN"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeTimeout      Code = "TIMEOUT"
	CodeRateLimited  Code = "RATE_LIMITED"

	// 调度相关
	CodeNoCapacity       Code = "NO_CAPACITY"       // 前瞻窗口内无可用时段，换日期或转人工
	CodeScheduleConflict Code = "SCHEDULE_CONFLICT" // 提交时与最新已提交作业冲突，可重试
	CodeAlreadyExists    Code = "ALREADY_EXISTS"    // 预约已有分配，不重试
	CodeInvalidTimeRange Code = "INVALID_TIME_RANGE"

	// 数据相关
	CodeDatabaseError  Code = "DATABASE_ERROR"
	CodeValidationFail Code = "VALIDATION_FAILED"
	CodePartialData    Code = "PARTIAL_DATA" // 仅用于警告
)

// Category 错误类别，供调用方决定处理方式
type Category string

const (
	CategoryRetryOther  Category = "retry_other"  // 换日期/作业员
	CategoryFixRequest  Category = "fix_request"  // 修正请求
	CategoryDataProblem Category = "data_problem" // 下游数据完整性问题
	CategoryTransient   Category = "transient"    // 暂时性错误
	CategoryInternal    Category = "internal"
)

// AppError 应用错误
type AppError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Cause      error                  `json:"-"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, e.Details)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithField 添加字段
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// New 创建新错误
func New(code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// codeToHTTPStatus 错误码转HTTP状态码
func codeToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeValidationFail, CodeInvalidTimeRange:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeScheduleConflict, CodeAlreadyExists:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeNoCapacity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// CategoryOf 返回错误类别
func CategoryOf(err error) Category {
	switch GetCode(err) {
	case CodeNoCapacity:
		return CategoryRetryOther
	case CodeInvalidInput, CodeValidationFail, CodeInvalidTimeRange, CodeAlreadyExists:
		return CategoryFixRequest
	case CodePartialData, CodeDatabaseError:
		return CategoryDataProblem
	case CodeScheduleConflict, CodeTimeout, CodeRateLimited:
		return CategoryTransient
	default:
		return CategoryInternal
	}
}

// Is 检查错误是否为特定类型
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsInvalidInput 检查是否为请求参数问题
func IsInvalidInput(err error) bool {
	return CategoryOf(err) == CategoryFixRequest
}

// GetCode 获取错误码
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetHTTPStatus 获取HTTP状态码
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// As 是标准库 errors.As 的透传，避免调用方同时导入两个 errors 包
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// InvalidInput 创建输入无效错误
func InvalidInput(field, reason string) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf("字段 '%s' 无效: %s", field, reason)).WithField(field, reason)
}

// NotFound 创建资源不存在错误
func NotFound(resource, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s '%s' 不存在", resource, id))
}

// NoCapacity 创建无可用时段错误
func NoCapacity(bookingID, fromDate string, days int) *AppError {
	return New(CodeNoCapacity, fmt.Sprintf("预约 %s 自 %s 起 %d 天内无可用时段", bookingID, fromDate, days)).
		WithField("booking_id", bookingID).
		WithField("from_date", fromDate).
		WithField("lookahead_days", days)
}

// ScheduleConflict 创建排程冲突错误
func ScheduleConflict(workerID, date, details string) *AppError {
	e := New(CodeScheduleConflict, fmt.Sprintf("作业员 %s 在 %s 存在排程冲突", workerID, date))
	e.Details = details
	return e.WithField("worker_id", workerID).WithField("date", date)
}

// AlreadyExists 预约已提交过分配
func AlreadyExists(bookingID string) *AppError {
	return New(CodeAlreadyExists, fmt.Sprintf("预约 %s 已有分配", bookingID)).
		WithField("booking_id", bookingID)
}

// Timeout 创建超时错误
func Timeout(cause error) *AppError {
	return Wrap(cause, CodeTimeout, "调度超时或已取消")
}

// Warning 非致命警告，随结果返回，调用方应记录日志
type Warning struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// String 实现 fmt.Stringer
func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s", w.Code, w.Message)
}

// PartialData 创建上一站位置无法解析的警告
func PartialData(workerID, date, slotStart, reason string) Warning {
	return Warning{
		Code:    CodePartialData,
		Message: fmt.Sprintf("作业员 %s 在 %s %s 之前的位置无法解析: %s", workerID, date, slotStart, reason),
		Fields: map[string]interface{}{
			"worker_id":  workerID,
			"date":       date,
			"slot_start": slotStart,
		},
	}
}

// ValidationErrors 验证错误集合
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// ValidationError 单个验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "验证失败"
	}
	return fmt.Sprintf("验证失败: %s - %s", ve.Errors[0].Field, ve.Errors[0].Message)
}

// Add 添加验证错误
func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

// HasErrors 检查是否有错误
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError 转换为 AppError
func (ve *ValidationErrors) ToAppError() *AppError {
	err := New(CodeValidationFail, ve.Error())
	err.Fields = make(map[string]interface{})
	for _, e := range ve.Errors {
		err.Fields[e.Field] = e.Message
	}
	return err
}
