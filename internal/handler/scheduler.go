package handler

import (
	"net/http"

	"github.com/paiban/visitsched/internal/service"
	"github.com/paiban/visitsched/pkg/dispatcher"
	"github.com/paiban/visitsched/pkg/errors"
	"github.com/paiban/visitsched/pkg/model"
	"github.com/paiban/visitsched/pkg/stats"
)

// OptimizeRequest 单个预约调度请求（快照由调用方提供）
type OptimizeRequest struct {
	Booking         BookingInput       `json:"booking"`
	Date            string             `json:"date,omitempty"`
	Workers         []*model.Worker    `json:"workers"`
	ExistingJobs    []model.Assignment `json:"existing_jobs"`
	MaxAlternatives int                `json:"max_alternatives,omitempty"`
}

// OptimizeData 调度结果。OptimalSchedule 为快照中的已有作业加上新作业，Totals 据此汇总。
type OptimizeData struct {
	*dispatcher.Result
	EfficiencyScore float64            `json:"efficiency_score"`
	UrgencyRule     string             `json:"urgency_rule,omitempty"`
	OptimalSchedule []model.Assignment `json:"optimal_schedule"`
	Totals          *stats.Summary     `json:"totals"`
}

// BatchRequest 批量调度请求
type BatchRequest struct {
	Bookings     []BookingInput     `json:"bookings"`
	Workers      []*model.Worker    `json:"workers"`
	ExistingJobs []model.Assignment `json:"existing_jobs"`
}

// BatchEntry 批量调度单项
type BatchEntry struct {
	BookingID string             `json:"booking_id"`
	Success   bool               `json:"success"`
	Result    *dispatcher.Result `json:"result,omitempty"`
	Error     *errors.AppError   `json:"error,omitempty"`
}

// BatchData 批量调度结果
type BatchData struct {
	Items        []BatchEntry   `json:"items"`
	SuccessCount int            `json:"success_count"`
	FailCount    int            `json:"fail_count"`
	Totals       *stats.Summary `json:"totals"` // 本批新作业汇总
}

// SchedulerHandler 无状态调度接口
type SchedulerHandler struct {
	planner  *service.Planner
	defaults Defaults
}

// NewSchedulerHandler 创建调度处理器
func NewSchedulerHandler(planner *service.Planner, defaults Defaults) *SchedulerHandler {
	return &SchedulerHandler{planner: planner, defaults: defaults}
}

// Optimize POST /api/internal/scheduler/optimize
func (h *SchedulerHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req OptimizeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	booking, rule := h.defaults.resolve(&req.Booking)
	res, err := h.planner.Optimize(r.Context(), &dispatcher.Request{
		Booking:         booking,
		TargetDate:      req.Date,
		Workers:         req.Workers,
		ExistingJobs:    req.ExistingJobs,
		MaxAlternatives: req.MaxAlternatives,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newOptimizeData(res, rule, req.ExistingJobs))
}

// Batch POST /api/v1/scheduler/batch
func (h *SchedulerHandler) Batch(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req BatchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Bookings) == 0 {
		writeError(w, r, errors.InvalidInput("bookings", "预约列表为空"))
		return
	}

	bookings := make([]*model.Booking, len(req.Bookings))
	for i := range req.Bookings {
		bookings[i], _ = h.defaults.resolve(&req.Bookings[i])
	}

	items := h.planner.Batch(r.Context(), bookings, req.Workers, req.ExistingJobs)

	data := &BatchData{Items: make([]BatchEntry, 0, len(items))}
	var created []model.Assignment
	for _, it := range items {
		entry := BatchEntry{BookingID: it.BookingID, Result: it.Result}
		if it.Err != nil {
			entry.Error = toAppError(it.Err)
			data.FailCount++
		} else {
			entry.Success = true
			data.SuccessCount++
			created = append(created, it.Result.Assignment)
		}
		data.Items = append(data.Items, entry)
	}
	data.Totals = stats.Summarize(created)

	writeJSON(w, http.StatusOK, data)
}

func newOptimizeData(res *dispatcher.Result, rule string, existing []model.Assignment) *OptimizeData {
	schedule := make([]model.Assignment, 0, len(existing)+1)
	schedule = append(schedule, existing...)
	schedule = append(schedule, res.Assignment)
	return &OptimizeData{
		Result:          res,
		EfficiencyScore: stats.EfficiencyScore(res.Score),
		UrgencyRule:     rule,
		OptimalSchedule: schedule,
		Totals:          stats.Summarize(schedule),
	}
}
