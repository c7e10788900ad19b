// Package logger 提供统一的日志框架
package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Level 日志级别
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"` // json/console
	Output     string `yaml:"output" json:"output"` // stdout/stderr/file
	FilePath   string `yaml:"file_path,omitempty" json:"file_path,omitempty"`
	TimeFormat string `yaml:"time_format,omitempty" json:"time_format,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// Init 初始化日志器
func Init(cfg Config) {
	once.Do(func() {
		level := parseLevel(cfg.Level)
		zerolog.SetGlobalLevel(level)

		var output io.Writer
		switch cfg.Output {
		case "stderr":
			output = os.Stderr
		case "file":
			if cfg.FilePath != "" {
				f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err == nil {
					output = f
				} else {
					output = os.Stdout
				}
			} else {
				output = os.Stdout
			}
		default:
			output = os.Stdout
		}

		if cfg.Format == "console" {
			output = zerolog.ConsoleWriter{
				Out:        output,
				TimeFormat: cfg.TimeFormat,
			}
		}

		logger = zerolog.New(output).With().Timestamp().Logger()
	})
}

// parseLevel 解析日志级别
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get 获取日志器
func Get() *zerolog.Logger {
	if logger.GetLevel() == zerolog.Disabled {
		Init(DefaultConfig())
	}
	return &logger
}

// contextKey 上下文键类型
type contextKey string

// RequestIDKey 请求ID在上下文中的键
const RequestIDKey contextKey = "request_id"

// WithRequestID 将请求ID写入上下文
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID 从上下文读取请求ID
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	reqID, _ := ctx.Value(RequestIDKey).(string)
	return reqID
}

// WithContext 从上下文创建日志器
func WithContext(ctx context.Context) *zerolog.Logger {
	l := Get().With().Logger()

	// 添加请求ID
	if reqID := RequestID(ctx); reqID != "" {
		l = l.With().Str("request_id", reqID).Logger()
	}

	return &l
}

// Info 记录信息日志
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn 记录警告日志
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error 记录错误日志
func Error() *zerolog.Event {
	return Get().Error()
}

// Fatal 记录致命错误日志
func Fatal() *zerolog.Event {
	return Get().Fatal()
}

// DispatchLogger 调度优化器专用日志器
type DispatchLogger struct {
	base *zerolog.Logger
}

// NewDispatchLogger 创建调度日志器
func NewDispatchLogger(ctx context.Context) *DispatchLogger {
	l := WithContext(ctx).With().Str("component", "optimizer").Logger()
	return &DispatchLogger{base: &l}
}

// StartOptimize 记录优化开始
func (l *DispatchLogger) StartOptimize(bookingID, targetDate string, workers, existingJobs int) {
	l.base.Info().
		Str("booking_id", bookingID).
		Str("target_date", targetDate).
		Int("workers", workers).
		Int("existing_jobs", existingJobs).
		Msg("开始调度优化")
}

// DayExhausted 记录某日无可用候选，顺延到下一日
func (l *DispatchLogger) DayExhausted(bookingID, date string) {
	l.base.Debug().
		Str("booking_id", bookingID).
		Str("date", date).
		Msg("当日无可用时段，顺延")
}

// PartialData 记录上一站位置无法解析
func (l *DispatchLogger) PartialData(workerID, date, slotStart, reason string, excluded bool) {
	l.base.Warn().
		Str("worker_id", workerID).
		Str("date", date).
		Str("slot_start", slotStart).
		Str("reason", reason).
		Bool("excluded", excluded).
		Msg("上一站位置无法解析")
}

// OptimizeComplete 记录优化完成
func (l *DispatchLogger) OptimizeComplete(bookingID, workerID, date string, duration time.Duration, score float64) {
	l.base.Info().
		Str("booking_id", bookingID).
		Str("worker_id", workerID).
		Str("date", date).
		Dur("duration", duration).
		Float64("score", score).
		Msg("调度优化完成")
}

// OptimizeFailed 记录优化失败
func (l *DispatchLogger) OptimizeFailed(bookingID string, err error) {
	l.base.Warn().
		Str("booking_id", bookingID).
		Err(err).
		Msg("调度优化失败")
}
