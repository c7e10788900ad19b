// VisitSched 上门预约调度服务
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paiban/visitsched/internal/config"
	"github.com/paiban/visitsched/internal/database"
	"github.com/paiban/visitsched/internal/handler"
	"github.com/paiban/visitsched/internal/lock"
	"github.com/paiban/visitsched/internal/metrics"
	"github.com/paiban/visitsched/internal/middleware"
	"github.com/paiban/visitsched/internal/repository"
	"github.com/paiban/visitsched/internal/service"
	"github.com/paiban/visitsched/pkg/dispatcher"
	"github.com/paiban/visitsched/pkg/logger"
	"github.com/paiban/visitsched/pkg/urgency"
)

// 版本信息（编译时注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
	})

	fmt.Printf("VisitSched 预约调度服务 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)

	optimizer := dispatcher.NewOptimizer(&dispatcher.Config{
		BufferMinutes:    cfg.Optimizer.BufferMinutes,
		MaxLookaheadDays: cfg.Optimizer.MaxLookaheadDays,
		StrictLocations:  cfg.Optimizer.StrictLocations,
	})
	planner := service.NewPlanner(optimizer, cfg.Optimizer.Timeout)
	defaults := handler.Defaults{
		DurationMinutes: cfg.Optimizer.DefaultDuration,
		Classifier:      urgency.NewClassifier(),
	}

	mux := http.NewServeMux()

	// ========================================
	// 基础端点
	// ========================================

	var db *database.DB
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if db != nil {
			if err := db.Health(r.Context()); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status, "service": cfg.App.Name})
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	// ========================================
	// 无状态调度
	// ========================================

	schedulerHandler := handler.NewSchedulerHandler(planner, defaults)
	mux.HandleFunc("/api/internal/scheduler/optimize", schedulerHandler.Optimize)
	mux.HandleFunc("/api/v1/scheduler/batch", schedulerHandler.Batch)

	// ========================================
	// 有状态预约（需要数据库）
	// ========================================

	if cfg.Database.Enabled() {
		db, err = database.New(&cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("数据库连接失败")
		}
		defer db.Close()

		store := repository.NewStore(db)
		if err := metrics.RegisterDBStats(db.DB, cfg.Database.Name); err != nil {
			logger.Warn().Err(err).Msg("注册连接池指标失败")
		}

		svc := service.NewBookingService(planner, store.Workers, store.Bookings, store.Assignments, store, newLocker(cfg), service.BookingOptions{
			LookaheadDays: cfg.Optimizer.MaxLookaheadDays,
			CommitRetries: cfg.Optimizer.CommitRetries,
		})

		bookingHandler := handler.NewBookingHandler(svc, defaults)
		mux.HandleFunc("/api/v1/bookings", bookingHandler.Create)
		mux.HandleFunc("GET /api/v1/bookings/{id}", bookingHandler.Get)
		mux.HandleFunc("PUT /api/v1/workers/{id}", bookingHandler.SaveWorker)
		mux.HandleFunc("GET /api/v1/workers/{id}/schedule", bookingHandler.WorkerSchedule)
	} else {
		logger.Warn().Msg("未配置数据库，仅提供无状态调度接口")
	}

	// ========================================
	// 监控端点
	// ========================================

	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	// 中间件执行顺序：recover -> requestID -> rateLimit -> cors -> logging -> handler
	var mws []middleware.Middleware
	mws = append(mws, middleware.Recover, middleware.RequestID, middleware.RateLimit(cfg.API.RateLimit))
	if cfg.API.CORS.Enabled {
		mws = append(mws, middleware.CORS(cfg.API.CORS.Origins))
	}
	mws = append(mws, middleware.Logging)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.API.Timeout,
		WriteTimeout: cfg.API.Timeout + cfg.Optimizer.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	// 启动服务器（非阻塞）
	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("version", Version).
			Str("env", cfg.App.Env).
			Bool("stateful", cfg.Database.Enabled()).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("服务器启动失败")
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		return
	}

	logger.Info().Msg("服务器已关闭")
}

// newLocker 配置了 Redis 时使用分布式锁，否则退化为进程内锁
func newLocker(cfg *config.Config) lock.Locker {
	if !cfg.Redis.Enabled() {
		logger.Warn().Msg("未配置 Redis，提交锁仅在本进程内有效")
		return lock.NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr()).Msg("Redis 连接失败")
	}

	logger.Info().Str("addr", cfg.Redis.Addr()).Msg("使用 Redis 提交锁")
	return lock.NewRedisLocker(client, cfg.Redis.LockTTL)
}
