// Package handler 提供API处理器
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/paiban/visitsched/pkg/errors"
	"github.com/paiban/visitsched/pkg/logger"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 4 << 20

// Response 通用响应
type Response struct {
	Success bool             `json:"success"`
	Data    interface{}      `json:"data,omitempty"`
	Error   *errors.AppError `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

// writeError 按错误码映射状态码，非 AppError 一律视为内部错误
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("请求处理失败")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(Response{Success: false, Error: appErr})
}

func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return errors.Wrap(err, errors.CodeInternal, "服务器内部错误")
}

// decode 解析请求体
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "请求体格式错误: "+err.Error())
	}
	return nil
}

// allowMethod 校验请求方法
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   errors.New(errors.CodeInvalidInput, "不支持的请求方法 "+r.Method),
	})
	return false
}
