package model

import (
	"github.com/paiban/visitsched/pkg/errors"
)

// Worker 外勤作业员（由外部名册服务维护，优化器只读）
type Worker struct {
	ID            string    `json:"worker_id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Home          *GeoPoint `json:"current_location,omitempty" db:"home_location"` // 每日出发位置
	AvailableFrom ClockTime `json:"available_from" db:"available_from"`
	AvailableTo   ClockTime `json:"available_to" db:"available_to"`
	MaxJobsPerDay int       `json:"max_jobs_per_day" db:"max_jobs_per_day"`
	Status        string    `json:"status,omitempty" db:"status"` // active/inactive，空值视为 active
}

// WorkingHours 返回每日工作时间窗口
func (w *Worker) WorkingHours() TimeWindow {
	return TimeWindow{Start: w.AvailableFrom, End: w.AvailableTo}
}

// IsActive 检查作业员是否在岗
func (w *Worker) IsActive() bool {
	return w.Status == "" || w.Status == "active"
}

// Validate 校验作业员数据
func (w *Worker) Validate() error {
	var ve errors.ValidationErrors
	if w.ID == "" {
		ve.Add("worker_id", "不能为空")
	}
	if !w.WorkingHours().Valid() {
		ve.Add("available_from", "必须早于 available_to")
	}
	if w.AvailableTo > MinutesPerDay {
		ve.Add("available_to", "不能晚于 24:00")
	}
	if w.MaxJobsPerDay <= 0 {
		ve.Add("max_jobs_per_day", "必须大于 0")
	}
	if ve.HasErrors() {
		return ve.ToAppError().WithField("worker", w.ID)
	}
	return nil
}
