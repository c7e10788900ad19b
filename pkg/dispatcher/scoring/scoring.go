// Package scoring 提供候选分配的多因素评分
package scoring

import (
	"math"

	"github.com/paiban/visitsched/pkg/dispatcher/matcher"
	"github.com/paiban/visitsched/pkg/model"
)

// Baseline 基础分
const Baseline = 100.0

// Candidate 候选分配（作业员 + 日期 + 开始时间 + 预约）
type Candidate struct {
	Booking      *model.Booking
	Worker       *model.Worker
	Date         string
	Start        model.ClockTime
	PreviousStop *model.GeoPoint // 上一站位置，nil 表示无法解析
	ExistingJobs int             // 该作业员当日已有作业数（不含本单）
}

// Input 评分输入，距离由 Scorer 预先计算
type Input struct {
	*Candidate
	DistanceKm float64
	Resolved   bool // 上一站位置是否可解析
}

// Component 评分项，Score 的结果会被限制在 [0, Cap()]
type Component interface {
	Name() string
	Cap() float64
	Score(in *Input) float64
}

// Part 单项得分
type Part struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Breakdown 评分明细
type Breakdown struct {
	Total      float64 `json:"total"`
	Baseline   float64 `json:"baseline"`
	Parts      []Part  `json:"parts"`
	DistanceKm float64 `json:"distance_km"`
}

// Part 按名称查找单项得分
func (b Breakdown) Part(name string) float64 {
	for _, p := range b.Parts {
		if p.Name == name {
			return p.Score
		}
	}
	return 0
}

// baseComponent 评分项公共字段
type baseComponent struct {
	name string
	cap  float64
}

func (b *baseComponent) Name() string { return b.name }
func (b *baseComponent) Cap() float64 { return b.cap }

// =========================================
// 1. TravelCost 路程成本
// =========================================

// TravelCost 10km 以内满分，之后每公里扣 2 分，最低 0
type TravelCost struct {
	baseComponent
	FreeKm    float64
	PerKmCost float64
}

// NewTravelCost 创建路程成本评分项
func NewTravelCost() *TravelCost {
	return &TravelCost{
		baseComponent: baseComponent{name: "travel_cost", cap: 50},
		FreeKm:        10,
		PerKmCost:     2,
	}
}

func (c *TravelCost) Score(in *Input) float64 {
	if !in.Resolved {
		return 0
	}
	return clamp(c.cap-(in.DistanceKm-c.FreeKm)*c.PerKmCost, c.cap)
}

// =========================================
// 2. PreferredTime 希望时间
// =========================================

// PreferredTime 与希望时间一致得满分，每偏差 1 小时扣 10 分
type PreferredTime struct {
	baseComponent
	PerHourCost float64
}

// NewPreferredTime 创建希望时间评分项
func NewPreferredTime() *PreferredTime {
	return &PreferredTime{
		baseComponent: baseComponent{name: "preferred_time", cap: 30},
		PerHourCost:   10,
	}
}

func (c *PreferredTime) Score(in *Input) float64 {
	if in.Booking == nil || in.Booking.PreferredTime == nil {
		return 0
	}
	diffHours := math.Abs(float64(in.Start.Sub(*in.Booking.PreferredTime))) / 60
	return clamp(c.cap-diffHours*c.PerHourCost, c.cap)
}

// =========================================
// 3. LoadBalance 负荷均衡
// =========================================

// LoadBalance 当日已有作业越少得分越高，每单扣 5 分
type LoadBalance struct {
	baseComponent
	PerJobCost float64
}

// NewLoadBalance 创建负荷均衡评分项
func NewLoadBalance() *LoadBalance {
	return &LoadBalance{
		baseComponent: baseComponent{name: "load_balance", cap: 20},
		PerJobCost:    5,
	}
}

func (c *LoadBalance) Score(in *Input) float64 {
	return clamp(c.cap-float64(in.ExistingJobs)*c.PerJobCost, c.cap)
}

// =========================================
// 4. UrgencyBonus 紧急度加分
// =========================================

// UrgencyBonus 高紧急度固定加分
type UrgencyBonus struct {
	baseComponent
}

// NewUrgencyBonus 创建紧急度加分项
func NewUrgencyBonus() *UrgencyBonus {
	return &UrgencyBonus{baseComponent: baseComponent{name: "urgency_bonus", cap: 20}}
}

func (c *UrgencyBonus) Score(in *Input) float64 {
	if in.Booking != nil && in.Booking.IsHighUrgency() {
		return c.cap
	}
	return 0
}

// DefaultComponents 返回默认评分项（顺序固定）
func DefaultComponents() []Component {
	return []Component{
		NewTravelCost(),
		NewPreferredTime(),
		NewLoadBalance(),
		NewUrgencyBonus(),
	}
}

// Scorer 评分器
type Scorer struct {
	estimator  matcher.Estimator
	components []Component
}

// NewScorer 创建默认评分器
func NewScorer(estimator matcher.Estimator) *Scorer {
	return NewScorerWithComponents(estimator, DefaultComponents())
}

// NewScorerWithComponents 创建带自定义评分项的评分器
func NewScorerWithComponents(estimator matcher.Estimator, components []Component) *Scorer {
	if estimator == nil {
		estimator = matcher.NewHaversine()
	}
	return &Scorer{estimator: estimator, components: components}
}

// Estimator 返回距离估算器
func (s *Scorer) Estimator() matcher.Estimator {
	return s.estimator
}

// Score 计算候选分配得分，分数越高越好，仅用于排序
func (s *Scorer) Score(c *Candidate) Breakdown {
	in := &Input{Candidate: c}
	if c.PreviousStop != nil && c.Booking != nil {
		in.Resolved = true
		in.DistanceKm = s.estimator.DistanceKm(*c.PreviousStop, c.Booking.Location)
	}

	b := Breakdown{
		Total:      Baseline,
		Baseline:   Baseline,
		Parts:      make([]Part, 0, len(s.components)),
		DistanceKm: in.DistanceKm,
	}
	for _, comp := range s.components {
		v := clamp(comp.Score(in), comp.Cap())
		b.Parts = append(b.Parts, Part{Name: comp.Name(), Score: v})
		b.Total += v
	}
	return b
}

// clamp 限制在 [0, cap]
func clamp(v, limit float64) float64 {
	return math.Max(0, math.Min(limit, v))
}
