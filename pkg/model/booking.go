package model

import (
	"fmt"

	"github.com/paiban/visitsched/pkg/errors"
)

// Urgency 紧急度
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ParseUrgency 解析紧急度，未知值返回错误
func ParseUrgency(s string) (Urgency, error) {
	switch u := Urgency(s); u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return u, nil
	}
	return "", fmt.Errorf("未知紧急度 %q", s)
}

// Booking 预约（提交给优化器后不可变）
type Booking struct {
	ID              string     `json:"booking_id" db:"id"`
	CustomerID      string     `json:"customer_id,omitempty" db:"customer_id"`
	CustomerName    string     `json:"customer_name" db:"customer_name"`
	Location        GeoPoint   `json:"location" db:"location"`
	PreferredDate   string     `json:"preferred_date" db:"preferred_date"`           // YYYY-MM-DD
	PreferredTime   *ClockTime `json:"preferred_time,omitempty" db:"preferred_time"` // HH:MM
	DurationMinutes int        `json:"estimated_duration_minutes" db:"duration_minutes"`
	Urgency         Urgency    `json:"urgency" db:"urgency"`
}

// IsHighUrgency 是否高紧急度
func (b *Booking) IsHighUrgency() bool {
	return b.Urgency == UrgencyHigh
}

// Validate 校验预约数据
func (b *Booking) Validate() error {
	var ve errors.ValidationErrors
	if b.ID == "" {
		ve.Add("booking_id", "不能为空")
	}
	if b.DurationMinutes <= 0 {
		ve.Add("estimated_duration_minutes", "必须大于 0")
	}
	if b.DurationMinutes > MinutesPerDay {
		ve.Add("estimated_duration_minutes", "不能超过一天")
	}
	if b.PreferredDate != "" {
		if _, err := ParseDate(b.PreferredDate); err != nil {
			ve.Add("preferred_date", err.Error())
		}
	}
	if b.PreferredTime != nil && (*b.PreferredTime < 0 || *b.PreferredTime > MinutesPerDay) {
		ve.Add("preferred_time", "超出范围")
	}
	if _, err := ParseUrgency(string(b.Urgency)); err != nil {
		ve.Add("urgency", err.Error())
	}
	if ve.HasErrors() {
		return ve.ToAppError().WithField("booking", b.ID)
	}
	return nil
}
