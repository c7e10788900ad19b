// Package stats 提供作业员负荷统计
package stats

import (
	"math"
	"sort"

	"github.com/paiban/visitsched/pkg/model"
)

// WorkerDayStat 作业员单日统计
type WorkerDayStat struct {
	WorkerID         string  `json:"worker_id"`
	Date             string  `json:"date"`
	Jobs             int     `json:"jobs"`
	WorkMinutes      int     `json:"work_minutes"`
	TravelDistanceKm float64 `json:"travel_distance_km"`
	TravelMinutes    int     `json:"travel_time_minutes"`
}

// Summary 作业汇总
type Summary struct {
	TotalJobs             int             `json:"total_jobs"`
	TotalTravelDistanceKm float64         `json:"total_travel_distance_km"`
	TotalTravelMinutes    int             `json:"total_travel_time_minutes"`
	LoadGini              float64         `json:"load_gini"` // 各作业员作业数基尼系数（0=完全均衡）
	WorkerDays            []WorkerDayStat `json:"worker_days"`
}

// Summarize 汇总一组作业，按作业员、日期排序输出
func Summarize(jobs []model.Assignment) *Summary {
	type key struct{ worker, date string }
	byKey := make(map[key]*WorkerDayStat)
	jobsPerWorker := make(map[string]float64)

	s := &Summary{}
	for _, j := range jobs {
		k := key{j.WorkerID, j.Date}
		st, ok := byKey[k]
		if !ok {
			st = &WorkerDayStat{WorkerID: j.WorkerID, Date: j.Date}
			byKey[k] = st
		}
		st.Jobs++
		st.WorkMinutes += j.DurationMinutes()
		st.TravelDistanceKm += j.TravelDistanceKm
		st.TravelMinutes += j.TravelMinutes

		jobsPerWorker[j.WorkerID]++
		s.TotalJobs++
		s.TotalTravelDistanceKm += j.TravelDistanceKm
		s.TotalTravelMinutes += j.TravelMinutes
	}

	s.WorkerDays = make([]WorkerDayStat, 0, len(byKey))
	for _, st := range byKey {
		st.TravelDistanceKm = round2(st.TravelDistanceKm)
		s.WorkerDays = append(s.WorkerDays, *st)
	}
	sort.Slice(s.WorkerDays, func(i, j int) bool {
		if s.WorkerDays[i].WorkerID != s.WorkerDays[j].WorkerID {
			return s.WorkerDays[i].WorkerID < s.WorkerDays[j].WorkerID
		}
		return s.WorkerDays[i].Date < s.WorkerDays[j].Date
	})

	counts := make([]float64, 0, len(jobsPerWorker))
	for _, c := range jobsPerWorker {
		counts = append(counts, c)
	}
	s.LoadGini = round2(Gini(counts))
	s.TotalTravelDistanceKm = round2(s.TotalTravelDistanceKm)
	return s
}

// Gini 计算基尼系数，结果在 [0, 1]
func Gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	if sum == 0 {
		return 0
	}

	gini := 0.0
	for i, v := range sorted {
		gini += (2*float64(i+1) - float64(n) - 1) * v
	}

	gini = gini / (float64(n) * sum)
	return math.Max(0, math.Min(1, gini))
}

// EfficiencyScore 将优化得分折算为效率分（得分/100，两位小数）
func EfficiencyScore(score float64) float64 {
	return round2(score / 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
