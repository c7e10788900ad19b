// Package dispatcher 提供预约调度优化引擎
package dispatcher

import (
	"context"
	"sort"
	"time"

	"github.com/paiban/visitsched/pkg/dispatcher/matcher"
	"github.com/paiban/visitsched/pkg/dispatcher/scoring"
	"github.com/paiban/visitsched/pkg/dispatcher/slot"
	"github.com/paiban/visitsched/pkg/errors"
	"github.com/paiban/visitsched/pkg/logger"
	"github.com/paiban/visitsched/pkg/model"
)

// DefaultMaxLookaheadDays 默认最多向后顺延的天数（含目标日）
const DefaultMaxLookaheadDays = 30

// Config 优化器配置
type Config struct {
	BufferMinutes    int // <=0 时使用 30 分钟
	MaxLookaheadDays int // <=0 时使用 30 天
	// StrictLocations 为 true 时，上一站位置无法解析的候选直接排除，
	// 否则照常评分（路程项为 0）并附带警告
	StrictLocations bool
	Estimator       matcher.Estimator
	Components      []scoring.Component
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BufferMinutes:    slot.DefaultBufferMinutes,
		MaxLookaheadDays: DefaultMaxLookaheadDays,
	}
}

// Optimizer 调度优化器。无内部状态，可并发使用。
type Optimizer struct {
	finder       *slot.Finder
	scorer       *scoring.Scorer
	estimator    matcher.Estimator
	maxLookahead int
	strict       bool
}

// NewOptimizer 创建优化器，cfg 为 nil 时使用默认配置
func NewOptimizer(cfg *Config) *Optimizer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	estimator := cfg.Estimator
	if estimator == nil {
		estimator = matcher.NewHaversine()
	}
	components := cfg.Components
	if len(components) == 0 {
		components = scoring.DefaultComponents()
	}
	lookahead := cfg.MaxLookaheadDays
	if lookahead <= 0 {
		lookahead = DefaultMaxLookaheadDays
	}
	return &Optimizer{
		finder:       slot.NewFinder(cfg.BufferMinutes),
		scorer:       scoring.NewScorerWithComponents(estimator, components),
		estimator:    estimator,
		maxLookahead: lookahead,
		strict:       cfg.StrictLocations,
	}
}

// Buffer 返回作业间缓冲分钟数
func (o *Optimizer) Buffer() int {
	return o.finder.Buffer()
}

// Request 优化请求（快照只读）
type Request struct {
	Booking         *model.Booking
	TargetDate      string // 为空时使用 Booking.PreferredDate
	Workers         []*model.Worker
	ExistingJobs    []model.Assignment
	MaxAlternatives int
}

// ScoredCandidate 已评分的候选分配
type ScoredCandidate struct {
	Assignment model.Assignment  `json:"assignment"`
	Score      float64           `json:"score"`
	Breakdown  scoring.Breakdown `json:"breakdown"`
	Slot       slot.Slot         `json:"slot"`

	previous *model.GeoPoint
	reason   string // 上一站无法解析的原因
}

// Result 优化结果
type Result struct {
	Assignment          model.Assignment  `json:"assignment"`
	Score               float64           `json:"score"`
	Breakdown           scoring.Breakdown `json:"breakdown"`
	SearchedDays        int               `json:"searched_days"`
	CandidatesEvaluated int               `json:"candidates_evaluated"`
	Warnings            []errors.Warning  `json:"warnings,omitempty"`
	Alternatives        []ScoredCandidate `json:"alternatives,omitempty"`
}

// Optimize 为一个新预约在目标日期或之后找到唯一最佳分配
func (o *Optimizer) Optimize(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	if err := o.validate(req); err != nil {
		return nil, err
	}
	targetDate := req.TargetDate
	if targetDate == "" {
		targetDate = req.Booking.PreferredDate
	}

	lg := logger.NewDispatchLogger(ctx)
	lg.StartOptimize(req.Booking.ID, targetDate, len(req.Workers), len(req.ExistingJobs))

	evaluated := 0
	for day := 0; day < o.maxLookahead; day++ {
		if err := ctx.Err(); err != nil {
			appErr := errors.Timeout(err).WithField("booking_id", req.Booking.ID)
			lg.OptimizeFailed(req.Booking.ID, appErr)
			return nil, appErr
		}

		date, err := model.AddDays(targetDate, day)
		if err != nil {
			return nil, errors.InvalidInput("target_date", err.Error())
		}

		candidates := o.evaluateDate(req, date, lg)
		evaluated += len(candidates)
		if len(candidates) == 0 {
			lg.DayExhausted(req.Booking.ID, date)
			continue
		}

		best := pickBest(candidates)
		result := o.finalize(req, candidates, best, lg)
		result.SearchedDays = day + 1
		result.CandidatesEvaluated = evaluated

		lg.OptimizeComplete(req.Booking.ID, result.Assignment.WorkerID, date, time.Since(start), result.Score)
		return result, nil
	}

	appErr := errors.NoCapacity(req.Booking.ID, targetDate, o.maxLookahead)
	lg.OptimizeFailed(req.Booking.ID, appErr)
	return nil, appErr
}

// validate 快速失败校验，不做任何默认值填充
func (o *Optimizer) validate(req *Request) error {
	if req == nil || req.Booking == nil {
		return errors.InvalidInput("booking", "缺少预约")
	}
	if err := req.Booking.Validate(); err != nil {
		return err
	}
	if len(req.Workers) == 0 {
		return errors.InvalidInput("workers", "作业员列表为空")
	}

	seen := make(map[string]bool, len(req.Workers))
	for _, w := range req.Workers {
		if w == nil {
			return errors.InvalidInput("workers", "包含空作业员")
		}
		if err := w.Validate(); err != nil {
			return err
		}
		if seen[w.ID] {
			return errors.InvalidInput("workers", "作业员ID重复: "+w.ID)
		}
		seen[w.ID] = true
	}

	date := req.TargetDate
	if date == "" {
		date = req.Booking.PreferredDate
	}
	if date == "" {
		return errors.InvalidInput("target_date", "缺少目标日期")
	}
	if _, err := model.ParseDate(date); err != nil {
		return errors.InvalidInput("target_date", err.Error())
	}
	return nil
}

// evaluateDate 枚举某日所有作业员的所有空闲时段并评分。
// 枚举顺序固定为作业员输入顺序、时段顺序。
func (o *Optimizer) evaluateDate(req *Request, date string, lg *logger.DispatchLogger) []ScoredCandidate {
	booking := req.Booking
	var candidates []ScoredCandidate

	for _, w := range req.Workers {
		if !w.IsActive() {
			continue
		}

		dayJobs := model.JobsFor(req.ExistingJobs, w.ID, date)
		if len(dayJobs) >= w.MaxJobsPerDay {
			continue
		}

		for _, s := range o.finder.Find(w.WorkingHours(), dayJobs, booking.DurationMinutes) {
			prev, reason := previousStop(w, dayJobs, s.Start)
			if prev == nil && o.strict {
				lg.PartialData(w.ID, date, s.Start.String(), reason, true)
				continue
			}

			cand := &scoring.Candidate{
				Booking:      booking,
				Worker:       w,
				Date:         date,
				Start:        s.Start,
				PreviousStop: prev,
				ExistingJobs: len(dayJobs),
			}
			bd := o.scorer.Score(cand)

			candidates = append(candidates, ScoredCandidate{
				Assignment: model.Assignment{
					BookingID: booking.ID,
					WorkerID:  w.ID,
					Date:      date,
					Start:     s.Start,
					End:       s.Start.Add(booking.DurationMinutes),
				},
				Score:     bd.Total,
				Breakdown: bd,
				Slot:      s,
				previous:  prev,
				reason:    reason,
			})
		}
	}

	return candidates
}

// previousStop 解析候选时段开始前作业员所在位置：
// 当日在 start 之前结束的最晚一单的目的地，否则为作业员出发位置
func previousStop(w *model.Worker, dayJobs []model.Assignment, start model.ClockTime) (*model.GeoPoint, string) {
	var latest *model.Assignment
	for i := range dayJobs {
		j := &dayJobs[i]
		if j.End < start && (latest == nil || j.End > latest.End) {
			latest = j
		}
	}

	if latest != nil {
		if latest.Location == nil {
			return nil, "上一单 " + latest.BookingID + " 缺少目的地坐标"
		}
		return latest.Location, ""
	}
	if w.Home == nil {
		return nil, "作业员未登记出发位置"
	}
	return w.Home, ""
}

// pickBest 返回最高分候选的下标，同分取先出现者
func pickBest(candidates []ScoredCandidate) int {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score > candidates[best].Score {
			best = i
		}
	}
	return best
}

// finalize 计算最佳候选的实际路程并组装结果
func (o *Optimizer) finalize(req *Request, candidates []ScoredCandidate, best int, lg *logger.DispatchLogger) *Result {
	winner := candidates[best]
	booking := req.Booking

	assignment := winner.Assignment
	loc := booking.Location
	assignment.Location = &loc

	result := &Result{
		Score:     winner.Score,
		Breakdown: winner.Breakdown,
	}

	if winner.previous != nil {
		distance := o.estimator.DistanceKm(*winner.previous, booking.Location)
		assignment.TravelDistanceKm = matcher.RoundKm(distance)
		assignment.TravelMinutes = o.estimator.TravelMinutes(distance)
	} else {
		w := errors.PartialData(assignment.WorkerID, assignment.Date, assignment.Start.String(), winner.reason)
		result.Warnings = append(result.Warnings, w)
		lg.PartialData(assignment.WorkerID, assignment.Date, assignment.Start.String(), winner.reason, false)
	}
	result.Assignment = assignment

	if req.MaxAlternatives > 0 {
		result.Alternatives = alternatives(candidates, best, req.MaxAlternatives)
	}
	return result
}

// alternatives 返回除最佳外得分最高的若干候选
func alternatives(candidates []ScoredCandidate, best, max int) []ScoredCandidate {
	rest := make([]ScoredCandidate, 0, len(candidates)-1)
	for i, c := range candidates {
		if i != best {
			rest = append(rest, c)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].Score > rest[j].Score
	})
	if len(rest) > max {
		rest = rest[:max]
	}
	return rest
}

// BatchItem 批量调度单项结果
type BatchItem struct {
	BookingID string  `json:"booking_id"`
	Result    *Result `json:"result,omitempty"`
	Err       error   `json:"-"`
}

// BatchOptimize 按顺序为多个预约调度，每个成功结果都加入后续调度的快照
func (o *Optimizer) BatchOptimize(ctx context.Context, bookings []*model.Booking, workers []*model.Worker, existing []model.Assignment) []*BatchItem {
	items := make([]*BatchItem, len(bookings))

	snapshot := make([]model.Assignment, len(existing), len(existing)+len(bookings))
	copy(snapshot, existing)

	for i, b := range bookings {
		item := &BatchItem{}
		if b != nil {
			item.BookingID = b.ID
		}

		res, err := o.Optimize(ctx, &Request{
			Booking:      b,
			Workers:      workers,
			ExistingJobs: snapshot,
		})
		if err != nil {
			item.Err = err
		} else {
			item.Result = res
			snapshot = append(snapshot, res.Assignment)
		}
		items[i] = item
	}

	return items
}
