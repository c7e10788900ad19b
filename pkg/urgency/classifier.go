// Package urgency 提供基于规则的紧急度判定
package urgency

import (
	"github.com/paiban/visitsched/pkg/model"
)

// Symptoms 客户描述的症状（全部可选）
type Symptoms struct {
	NoiseType           string `json:"noise_type,omitempty"`
	TimeOfDay           string `json:"time_of_day,omitempty"` // day/evening/night
	DurationWeeks       *int   `json:"duration_weeks,omitempty"`
	Frequency           string `json:"frequency,omitempty"` // daily/weekly/occasional
	SourceLocation      string `json:"source_location,omitempty"`
	ImpactLevel         string `json:"impact_level,omitempty"` // mild/moderate/severe
	ContactedManagement *bool  `json:"contacted_management,omitempty"`
}

// weeksOver 持续周数大于 n；未知视为不满足
func (s Symptoms) weeksOver(n int) bool {
	return s.DurationWeeks != nil && *s.DurationWeeks > n
}

// Rule 命名规则：谓词命中即判定为对应紧急度。谓词必须是纯函数且对任意输入有定义。
type Rule struct {
	Name  string
	Tier  model.Urgency
	Match func(Symptoms) bool
}

// Classifier 紧急度判定器，按顺序评估规则，首个命中者生效
type Classifier struct {
	rules    []Rule
	fallback model.Urgency
}

// NewClassifier 创建默认判定器
func NewClassifier() *Classifier {
	return NewClassifierWithRules(DefaultRules(), model.UrgencyLow)
}

// NewClassifierWithRules 创建带自定义规则的判定器
func NewClassifierWithRules(rules []Rule, fallback model.Urgency) *Classifier {
	return &Classifier{rules: rules, fallback: fallback}
}

// Classify 返回紧急度和命中的规则名（未命中时为空）
func (c *Classifier) Classify(s Symptoms) (model.Urgency, string) {
	for _, r := range c.rules {
		if r.Match != nil && r.Match(s) {
			return r.Tier, r.Name
		}
	}
	return c.fallback, ""
}

// Rules 返回规则列表副本
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// DefaultRules 默认规则，高紧急度在前
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "night_persistent",
			Tier:  model.UrgencyHigh,
			Match: func(s Symptoms) bool { return s.TimeOfDay == "night" && s.weeksOver(2) },
		},
		{
			Name:  "severe_impact",
			Tier:  model.UrgencyHigh,
			Match: func(s Symptoms) bool { return s.ImpactLevel == "severe" },
		},
		{
			Name:  "night_construction",
			Tier:  model.UrgencyHigh,
			Match: func(s Symptoms) bool { return s.NoiseType == "construction" && s.TimeOfDay == "night" },
		},
		{
			Name:  "daily_night",
			Tier:  model.UrgencyHigh,
			Match: func(s Symptoms) bool { return s.Frequency == "daily" && s.TimeOfDay == "night" },
		},
		{
			Name:  "over_one_week",
			Tier:  model.UrgencyMedium,
			Match: func(s Symptoms) bool { return s.weeksOver(1) },
		},
		{
			Name:  "daily",
			Tier:  model.UrgencyMedium,
			Match: func(s Symptoms) bool { return s.Frequency == "daily" },
		},
		{
			Name: "living_noise",
			Tier: model.UrgencyMedium,
			Match: func(s Symptoms) bool {
				switch s.NoiseType {
				case "footsteps", "music", "voice":
					return true
				}
				return false
			},
		},
	}
}
