// Package slot 提供作业员单日空闲时段查找
package slot

import (
	"github.com/paiban/visitsched/pkg/model"
)

// DefaultBufferMinutes 相邻作业之间的固定缓冲（路程/准备）
const DefaultBufferMinutes = 30

// Slot 候选空闲时段 [Start, End]，长度不小于所需时长
type Slot struct {
	Start model.ClockTime `json:"start"`
	End   model.ClockTime `json:"end"`
}

// Window 转为时间窗口
func (s Slot) Window() model.TimeWindow {
	return model.TimeWindow{Start: s.Start, End: s.End}
}

// Finder 空闲时段查找器
type Finder struct {
	buffer int
}

// NewFinder 创建查找器，bufferMinutes<=0 时使用默认缓冲。
// 作业间缓冲不可关闭，零值 Config 同样得到 30 分钟。
func NewFinder(bufferMinutes int) *Finder {
	if bufferMinutes <= 0 {
		bufferMinutes = DefaultBufferMinutes
	}
	return &Finder{buffer: bufferMinutes}
}

// Buffer 返回缓冲分钟数
func (f *Finder) Buffer() int {
	return f.buffer
}

// Find 在工作时间内为 duration 分钟的作业查找空闲时段。
// jobs 为该作业员当日已有作业，顺序任意；容量已满的作业员应由调用方先行过滤。
func (f *Finder) Find(hours model.TimeWindow, jobs []model.Assignment, duration int) []Slot {
	if duration <= 0 || !hours.Valid() {
		return nil
	}

	sorted := make([]model.Assignment, len(jobs))
	copy(sorted, jobs)
	model.SortByStart(sorted)

	var slots []Slot
	cursor := hours.Start

	for _, job := range sorted {
		// 作业前需留出缓冲
		if job.Start.Sub(cursor) >= duration+f.buffer {
			end := job.Start.Add(-f.buffer)
			if end > hours.End {
				// 工作时间外的作业（数据异常）不能把窗口撑出工作时间
				end = hours.End
			}
			if end.Sub(cursor) >= duration {
				slots = append(slots, Slot{Start: cursor, End: end})
			}
		}

		// 游标不回退
		if next := job.End.Add(f.buffer); next > cursor {
			cursor = next
		}
	}

	// 最后一单之后无需尾部缓冲
	if hours.End.Sub(cursor) >= duration {
		slots = append(slots, Slot{Start: cursor, End: hours.End})
	}

	return slots
}
