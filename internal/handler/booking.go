package handler

import (
	"net/http"

	"github.com/paiban/visitsched/internal/service"
	"github.com/paiban/visitsched/pkg/errors"
	"github.com/paiban/visitsched/pkg/model"
)

// CreateBookingRequest 预约提交请求
type CreateBookingRequest struct {
	Booking BookingInput `json:"booking"`
	Date    string       `json:"date,omitempty"`
}

// BookingHandler 有状态预约接口
type BookingHandler struct {
	svc      *service.BookingService
	defaults Defaults
}

// NewBookingHandler 创建预约处理器
func NewBookingHandler(svc *service.BookingService, defaults Defaults) *BookingHandler {
	return &BookingHandler{svc: svc, defaults: defaults}
}

// Create POST /api/v1/bookings
// 返回的 optimal_schedule 为所选作业员当日提交后的排程
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req CreateBookingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	booking, rule := h.defaults.resolve(&req.Booking)
	placed, err := h.svc.Schedule(r.Context(), booking, req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newOptimizeData(placed.Result, rule, placed.DayJobs))
}

// Get GET /api/v1/bookings/{id}
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, r, errors.InvalidInput("id", "缺少预约ID"))
		return
	}

	view, err := h.svc.Booking(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SaveWorker PUT /api/v1/workers/{id}
func (h *BookingHandler) SaveWorker(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, r, errors.InvalidInput("id", "缺少作业员ID"))
		return
	}

	var worker model.Worker
	if err := decode(w, r, &worker); err != nil {
		writeError(w, r, err)
		return
	}
	if worker.ID != "" && worker.ID != id {
		writeError(w, r, errors.InvalidInput("worker_id", "与路径中的ID不一致"))
		return
	}
	worker.ID = id

	saved, err := h.svc.SaveWorker(r.Context(), &worker)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// WorkerSchedule GET /api/v1/workers/{id}/schedule?date=YYYY-MM-DD
func (h *BookingHandler) WorkerSchedule(w http.ResponseWriter, r *http.Request) {
	workerID := r.PathValue("id")
	if workerID == "" {
		writeError(w, r, errors.InvalidInput("id", "缺少作业员ID"))
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, r, errors.InvalidInput("date", "缺少日期"))
		return
	}

	day, err := h.svc.WorkerDay(r.Context(), workerID, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}
