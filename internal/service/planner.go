// Package service 组织调度优化与持久化的业务流程
package service

import (
	"context"
	"time"

	"github.com/paiban/visitsched/internal/metrics"
	"github.com/paiban/visitsched/pkg/dispatcher"
	"github.com/paiban/visitsched/pkg/errors"
	"github.com/paiban/visitsched/pkg/model"
)

// Planner 无状态调度：快照由调用方提供
type Planner struct {
	optimizer *dispatcher.Optimizer
	timeout   time.Duration
}

// NewPlanner 创建无状态调度器，timeout<=0 表示不限时
func NewPlanner(optimizer *dispatcher.Optimizer, timeout time.Duration) *Planner {
	return &Planner{optimizer: optimizer, timeout: timeout}
}

// Optimizer 返回底层优化器
func (p *Planner) Optimizer() *dispatcher.Optimizer {
	return p.optimizer
}

// Optimize 在时间预算内执行一次调度并记录指标
func (p *Planner) Optimize(ctx context.Context, req *dispatcher.Request) (*dispatcher.Result, error) {
	ctx, cancel := p.withBudget(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.optimizer.Optimize(ctx, req)
	observe(res, err, time.Since(start))
	return res, err
}

// Batch 在时间预算内按顺序调度多个预约
func (p *Planner) Batch(ctx context.Context, bookings []*model.Booking, workers []*model.Worker, existing []model.Assignment) []*dispatcher.BatchItem {
	ctx, cancel := p.withBudget(ctx)
	defer cancel()

	start := time.Now()
	items := p.optimizer.BatchOptimize(ctx, bookings, workers, existing)
	per := time.Since(start)
	if len(items) > 0 {
		per /= time.Duration(len(items))
	}
	for _, it := range items {
		observe(it.Result, it.Err, per)
	}
	return items
}

func (p *Planner) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

// observe 记录单次调度指标
func observe(res *dispatcher.Result, err error, d time.Duration) {
	o := metrics.OptimizeOutcome{Result: outcome(err), Duration: d}
	if res != nil {
		o.Candidates = res.CandidatesEvaluated
		o.Days = res.SearchedDays
		o.Score = res.Score
		o.Warnings = len(res.Warnings)
	}
	metrics.RecordOptimize(o)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	switch errors.CategoryOf(err) {
	case errors.CategoryRetryOther:
		return "no_capacity"
	case errors.CategoryFixRequest:
		return "invalid"
	}
	if errors.Is(err, errors.CodeTimeout) {
		return "timeout"
	}
	return "error"
}
