package model

import (
	"sort"
)

// Assignment 已排定的作业（预约的具体落地：作业员 + 日期 + 时间窗口）
type Assignment struct {
	BookingID        string    `json:"booking_id" db:"booking_id"`
	WorkerID         string    `json:"worker_id" db:"worker_id"`
	Date             string    `json:"scheduled_date" db:"scheduled_date"`
	Start            ClockTime `json:"scheduled_time_start" db:"start_time"`
	End              ClockTime `json:"scheduled_time_end" db:"end_time"`
	Location         *GeoPoint `json:"location,omitempty" db:"location"` // 作业目的地，用于解析下一单的上一站
	TravelDistanceKm float64   `json:"travel_distance_km" db:"travel_distance_km"`
	TravelMinutes    int       `json:"travel_time_minutes" db:"travel_time_minutes"`
}

// Window 作业时间窗口
func (a *Assignment) Window() TimeWindow {
	return TimeWindow{Start: a.Start, End: a.End}
}

// DurationMinutes 作业时长
func (a *Assignment) DurationMinutes() int {
	return a.End.Sub(a.Start)
}

// JobsFor 返回某作业员某日的作业，按开始时间升序
func JobsFor(jobs []Assignment, workerID, date string) []Assignment {
	var day []Assignment
	for _, j := range jobs {
		if j.WorkerID == workerID && j.Date == date {
			day = append(day, j)
		}
	}
	SortByStart(day)
	return day
}

// CountFor 统计某作业员某日的作业数
func CountFor(jobs []Assignment, workerID, date string) int {
	n := 0
	for _, j := range jobs {
		if j.WorkerID == workerID && j.Date == date {
			n++
		}
	}
	return n
}

// SortByStart 按开始时间升序排序（稳定）
func SortByStart(jobs []Assignment) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].Start < jobs[j].Start
	})
}
