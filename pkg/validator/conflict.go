// Package validator 提供分配提交前的冲突校验
package validator

import (
	"fmt"

	"github.com/paiban/visitsched/pkg/dispatcher/slot"
	"github.com/paiban/visitsched/pkg/model"
)

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictOverlap      ConflictType = "overlap"       // 含缓冲的时间重叠
	ConflictCapacity     ConflictType = "capacity"      // 超过每日最大作业数
	ConflictWorkingHours ConflictType = "working_hours" // 超出工作时间
	ConflictDuration     ConflictType = "duration"      // 时长与预约不一致
	ConflictWorker       ConflictType = "worker"        // 作业员不匹配或不在岗
)

// Conflict 冲突信息
type Conflict struct {
	Type     ConflictType `json:"type"`
	WorkerID string       `json:"worker_id"`
	Date     string       `json:"date"`
	Message  string       `json:"message"`
	With     string       `json:"with,omitempty"` // 冲突的已提交预约ID
}

// ConflictDetector 冲突检测器
type ConflictDetector struct {
	buffer int
}

// NewConflictDetector 创建冲突检测器，bufferMinutes<=0 时使用默认缓冲
func NewConflictDetector(bufferMinutes int) *ConflictDetector {
	if bufferMinutes <= 0 {
		bufferMinutes = slot.DefaultBufferMinutes
	}
	return &ConflictDetector{buffer: bufferMinutes}
}

// Check 校验拟提交的分配与该作业员最新已提交作业是否冲突。
// committed 可以包含其他作业员或其他日期的作业，会被过滤。
func (d *ConflictDetector) Check(proposed *model.Assignment, worker *model.Worker, committed []model.Assignment, durationMinutes int) []Conflict {
	var conflicts []Conflict
	add := func(t ConflictType, msg, with string) {
		conflicts = append(conflicts, Conflict{
			Type:     t,
			WorkerID: proposed.WorkerID,
			Date:     proposed.Date,
			Message:  msg,
			With:     with,
		})
	}

	if worker == nil || worker.ID != proposed.WorkerID || !worker.IsActive() {
		add(ConflictWorker, "作业员不存在或不在岗", "")
		return conflicts
	}

	if durationMinutes > 0 && proposed.DurationMinutes() != durationMinutes {
		add(ConflictDuration, fmt.Sprintf("时长 %d 分钟与预约 %d 分钟不一致", proposed.DurationMinutes(), durationMinutes), "")
	}

	if !worker.WorkingHours().Contains(proposed.Window()) {
		add(ConflictWorkingHours, fmt.Sprintf("%s-%s 超出工作时间 %s-%s",
			proposed.Start, proposed.End, worker.AvailableFrom, worker.AvailableTo), "")
	}

	day := model.JobsFor(committed, proposed.WorkerID, proposed.Date)
	count := 0
	for i := range day {
		existing := &day[i]
		if existing.BookingID == proposed.BookingID {
			continue
		}
		count++

		// 双方各加缓冲后不得重叠
		if proposed.Window().Expand(d.buffer).Overlaps(existing.Window()) {
			add(ConflictOverlap, fmt.Sprintf("与 %s-%s 的作业间隔不足 %d 分钟",
				existing.Start, existing.End, d.buffer), existing.BookingID)
		}
	}

	if count >= worker.MaxJobsPerDay {
		add(ConflictCapacity, fmt.Sprintf("当日已有 %d 单，上限 %d", count, worker.MaxJobsPerDay), "")
	}

	return conflicts
}

// DetectAll 检测一组已提交作业内部的冲突（用于巡检）
func (d *ConflictDetector) DetectAll(jobs []model.Assignment, workers map[string]*model.Worker) []Conflict {
	var conflicts []Conflict

	type key struct{ worker, date string }
	groups := make(map[key][]model.Assignment)
	var order []key
	for _, j := range jobs {
		k := key{j.WorkerID, j.Date}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], j)
	}

	for _, k := range order {
		day := groups[k]
		model.SortByStart(day)
		w := workers[k.worker]

		var prev *model.Assignment
		for i := range day {
			if w != nil && !w.WorkingHours().Contains(day[i].Window()) {
				conflicts = append(conflicts, Conflict{
					Type: ConflictWorkingHours, WorkerID: k.worker, Date: k.date,
					Message: "作业超出工作时间", With: day[i].BookingID,
				})
			}
			// prev 为此前结束最晚的作业
			if prev != nil && prev.End.Add(d.buffer) > day[i].Start {
				conflicts = append(conflicts, Conflict{
					Type: ConflictOverlap, WorkerID: k.worker, Date: k.date,
					Message: fmt.Sprintf("%s 与 %s 间隔不足 %d 分钟", prev.BookingID, day[i].BookingID, d.buffer),
					With:    day[i].BookingID,
				})
			}
			if prev == nil || day[i].End > prev.End {
				prev = &day[i]
			}
		}

		if w != nil && len(day) > w.MaxJobsPerDay {
			conflicts = append(conflicts, Conflict{
				Type: ConflictCapacity, WorkerID: k.worker, Date: k.date,
				Message: fmt.Sprintf("当日 %d 单，上限 %d", len(day), w.MaxJobsPerDay),
			})
		}
	}

	return conflicts
}
