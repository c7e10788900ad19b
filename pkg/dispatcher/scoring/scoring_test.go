package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paiban/visitsched/pkg/model"
)

// fixedEstimator 返回固定距离
type fixedEstimator struct{ km float64 }

func (f fixedEstimator) DistanceKm(a, b model.GeoPoint) float64 { return f.km }
func (f fixedEstimator) TravelMinutes(km float64) int           { return int(km * 2) }

func clockPtr(h, m int) *model.ClockTime {
	c := model.Clock(h, m)
	return &c
}

func newCandidate(pref *model.ClockTime, start model.ClockTime, existing int, urgency model.Urgency) *Candidate {
	return &Candidate{
		Booking: &model.Booking{
			ID:              "b1",
			DurationMinutes: 60,
			PreferredTime:   pref,
			Urgency:         urgency,
		},
		Worker:       &model.Worker{ID: "w1"},
		Date:         "2026-03-02",
		Start:        start,
		PreviousStop: &model.GeoPoint{},
		ExistingJobs: existing,
	}
}

func TestTravelCost(t *testing.T) {
	c := NewTravelCost()

	tests := []struct {
		name     string
		km       float64
		resolved bool
		want     float64
	}{
		{"零距离", 0, true, 50},
		{"10公里内满分", 9.9, true, 50},
		{"恰好10公里", 10, true, 50},
		{"15公里", 15, true, 40},
		{"35公里归零", 35, true, 0},
		{"超远不为负", 100, true, 0},
		{"上一站无法解析", 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Score(&Input{Candidate: &Candidate{}, DistanceKm: tt.km, Resolved: tt.resolved})
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestPreferredTime(t *testing.T) {
	c := NewPreferredTime()

	tests := []struct {
		name  string
		pref  *model.ClockTime
		start model.ClockTime
		want  float64
	}{
		{"无希望时间", nil, model.Clock(9, 0), 0},
		{"完全一致", clockPtr(10, 0), model.Clock(10, 0), 30},
		{"早一小时", clockPtr(10, 0), model.Clock(9, 0), 20},
		{"晚一个半小时", clockPtr(10, 0), model.Clock(11, 30), 15},
		{"偏差三小时归零", clockPtr(9, 0), model.Clock(12, 0), 0},
		{"偏差很大不为负", clockPtr(9, 0), model.Clock(17, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &Input{Candidate: newCandidate(tt.pref, tt.start, 0, model.UrgencyLow)}
			if got := c.Score(in); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestLoadBalanceAndUrgency(t *testing.T) {
	lb := NewLoadBalance()
	for n, want := range []float64{20, 15, 10, 5, 0, 0} {
		in := &Input{Candidate: newCandidate(nil, 0, n, model.UrgencyLow)}
		if got := lb.Score(in); got != want {
			t.Errorf("LoadBalance(%d) = %v, expected %v", n, got, want)
		}
	}

	ub := NewUrgencyBonus()
	for u, want := range map[model.Urgency]float64{
		model.UrgencyHigh:   20,
		model.UrgencyMedium: 0,
		model.UrgencyLow:    0,
	} {
		in := &Input{Candidate: newCandidate(nil, 0, 0, u)}
		if got := ub.Score(in); got != want {
			t.Errorf("UrgencyBonus(%s) = %v, expected %v", u, got, want)
		}
	}
}

func TestScorer_Score(t *testing.T) {
	s := NewScorer(fixedEstimator{km: 15})

	bd := s.Score(newCandidate(clockPtr(10, 0), model.Clock(9, 0), 1, model.UrgencyHigh))

	// 100 + 40 + 20 + 15 + 20
	if bd.Total != 195 {
		t.Errorf("Total = %v, expected 195", bd.Total)
	}
	if bd.Baseline != Baseline {
		t.Errorf("Baseline = %v", bd.Baseline)
	}
	if bd.DistanceKm != 15 {
		t.Errorf("DistanceKm = %v, expected 15", bd.DistanceKm)
	}

	want := map[string]float64{
		"travel_cost":    40,
		"preferred_time": 20,
		"load_balance":   15,
		"urgency_bonus":  20,
	}
	if len(bd.Parts) != len(want) {
		t.Fatalf("Parts = %+v", bd.Parts)
	}
	for name, v := range want {
		if got := bd.Part(name); got != v {
			t.Errorf("Part(%s) = %v, expected %v", name, got, v)
		}
	}
}

func TestScorer_UnresolvedPreviousStop(t *testing.T) {
	s := NewScorer(fixedEstimator{km: 0})
	c := newCandidate(nil, model.Clock(9, 0), 0, model.UrgencyLow)
	c.PreviousStop = nil

	bd := s.Score(c)
	if bd.Part("travel_cost") != 0 {
		t.Errorf("无法解析上一站时路程项应为 0, got %v", bd.Part("travel_cost"))
	}
	if bd.Total != 120 {
		t.Errorf("Total = %v, expected 120", bd.Total)
	}
}

func TestScorer_Bounds(t *testing.T) {
	s := NewScorer(fixedEstimator{km: 0})

	hi := s.Score(newCandidate(clockPtr(9, 0), model.Clock(9, 0), 0, model.UrgencyHigh))
	if hi.Total != 220 {
		t.Errorf("最高分 = %v, expected 220", hi.Total)
	}

	far := NewScorer(fixedEstimator{km: 1000})
	lo := far.Score(newCandidate(clockPtr(0, 0), model.Clock(23, 0), 10, model.UrgencyLow))
	if lo.Total != Baseline {
		t.Errorf("最低分 = %v, expected %v", lo.Total, Baseline)
	}
}

// 距离、偏差、已有作业数增大时总分不增
func TestScorer_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 1000; i++ {
		d1 := rng.Float64() * 60
		d2 := d1 + rng.Float64()*20
		a := NewScorer(fixedEstimator{km: d1}).Score(newCandidate(nil, model.Clock(9, 0), 0, model.UrgencyLow))
		b := NewScorer(fixedEstimator{km: d2}).Score(newCandidate(nil, model.Clock(9, 0), 0, model.UrgencyLow))
		if b.Total > a.Total {
			t.Fatalf("距离 %.2f→%.2f 得分上升 %v→%v", d1, d2, a.Total, b.Total)
		}

		s := NewScorer(fixedEstimator{km: 5})
		pref := clockPtr(12, 0)
		dev1 := rng.Intn(600)
		dev2 := dev1 + rng.Intn(120)
		sign := 1
		if rng.Intn(2) == 0 {
			sign = -1
		}
		pa := s.Score(newCandidate(pref, pref.Add(sign*dev1), 0, model.UrgencyLow))
		pb := s.Score(newCandidate(pref, pref.Add(sign*dev2), 0, model.UrgencyLow))
		if pb.Total > pa.Total {
			t.Fatalf("偏差 %d→%d 分钟得分上升 %v→%v", dev1, dev2, pa.Total, pb.Total)
		}

		n1 := rng.Intn(10)
		n2 := n1 + rng.Intn(3)
		la := s.Score(newCandidate(nil, model.Clock(9, 0), n1, model.UrgencyLow))
		lb := s.Score(newCandidate(nil, model.Clock(9, 0), n2, model.UrgencyLow))
		if lb.Total > la.Total {
			t.Fatalf("已有作业 %d→%d 得分上升 %v→%v", n1, n2, la.Total, lb.Total)
		}
	}
}

// scaledComponent 测试自定义评分项
type scaledComponent struct{}

func (scaledComponent) Name() string            { return "flat" }
func (scaledComponent) Cap() float64            { return 7 }
func (scaledComponent) Score(in *Input) float64 { return 7 }

func TestScorer_CustomComponents(t *testing.T) {
	s := NewScorerWithComponents(nil, []Component{scaledComponent{}})
	bd := s.Score(newCandidate(nil, model.Clock(9, 0), 0, model.UrgencyHigh))
	if bd.Total != 107 || bd.Part("flat") != 7 {
		t.Errorf("Breakdown = %+v", bd)
	}
	if s.Estimator() == nil {
		t.Error("未指定估算器时应使用默认估算器")
	}
}

// rawComponent 返回固定原始分，用于验证上限截断
type rawComponent struct {
	name string
	raw  float64
}

func (c rawComponent) Name() string            { return c.name }
func (c rawComponent) Cap() float64            { return 10 }
func (c rawComponent) Score(in *Input) float64 { return c.raw }

func TestScorer_ClampsToCap(t *testing.T) {
	s := NewScorerWithComponents(nil, []Component{
		rawComponent{name: "over", raw: 45},
		rawComponent{name: "under", raw: -8},
		rawComponent{name: "inside", raw: 4},
	})
	bd := s.Score(newCandidate(nil, model.Clock(9, 0), 0, model.UrgencyLow))

	tests := []struct {
		name string
		want float64
	}{
		{"over", 10},
		{"under", 0},
		{"inside", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bd.Part(tt.name); got != tt.want {
				t.Errorf("Part(%s) = %v, expected %v", tt.name, got, tt.want)
			}
		})
	}
	if bd.Total != 114 {
		t.Errorf("Total = %v, expected 114", bd.Total)
	}
}
