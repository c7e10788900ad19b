// Package metrics 提供Prometheus监控指标
package metrics

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry 专用注册表
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "visitsched_http_requests_total", Help: "HTTP请求总数"},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visitsched_http_request_duration_seconds",
			Help:    "HTTP请求延迟",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"method", "path"},
	)

	optimizeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "visitsched_optimize_total", Help: "调度优化次数"},
		[]string{"result"},
	)
	optimizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "visitsched_optimize_duration_seconds",
			Help:    "调度优化耗时",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)
	candidatesEvaluated = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "visitsched_candidates_evaluated",
			Help:    "单次调度评估的候选数",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	searchedDays = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "visitsched_searched_days",
			Help:    "找到可用时段前搜索的天数",
			Buckets: []float64{1, 2, 3, 5, 7, 14, 30},
		},
	)
	solutionScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "visitsched_solution_score",
			Help:    "最佳候选得分",
			Buckets: prometheus.LinearBuckets(100, 10, 13),
		},
	)
	partialDataWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "visitsched_partial_data_warnings_total", Help: "上一站位置无法解析的次数"},
	)
	commitConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "visitsched_commit_conflicts_total", Help: "提交时复核冲突次数"},
	)

	regOnce sync.Once
)

// Register 注册全部指标（幂等）
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(
			httpRequests, httpDuration,
			optimizeTotal, optimizeDuration, candidatesEvaluated, searchedDays, solutionScore,
			partialDataWarnings, commitConflicts,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// RegisterDBStats 导出连接池统计（go_sql_*），同名库重复注册时忽略
func RegisterDBStats(db *sql.DB, name string) error {
	err := Registry.Register(collectors.NewDBStatsCollector(db, name))
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return nil
	}
	return err
}

// Handler 返回Prometheus格式的指标HTTP处理器
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordRequestMetrics 记录请求指标
func RecordRequestMetrics(method, path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// OptimizeOutcome 单次调度的观测数据
type OptimizeOutcome struct {
	Result     string // success/no_capacity/invalid/timeout/error
	Duration   time.Duration
	Candidates int
	Days       int
	Score      float64
	Warnings   int
}

// RecordOptimize 记录调度优化指标
func RecordOptimize(o OptimizeOutcome) {
	optimizeTotal.WithLabelValues(o.Result).Inc()
	optimizeDuration.Observe(o.Duration.Seconds())
	if o.Result != "success" {
		return
	}
	candidatesEvaluated.Observe(float64(o.Candidates))
	searchedDays.Observe(float64(o.Days))
	solutionScore.Observe(o.Score)
	partialDataWarnings.Add(float64(o.Warnings))
}

// RecordCommitConflict 记录提交冲突
func RecordCommitConflict() {
	commitConflicts.Inc()
}
