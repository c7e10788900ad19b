// Package model 定义预约调度引擎的核心数据模型
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout 日期格式（单一隐式时区）
const DateLayout = "2006-01-02"

// MinutesPerDay 一天的分钟数
const MinutesPerDay = 24 * 60

// GeoPoint 地理位置（值类型，不可变）
type GeoPoint struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ClockTime 一天内的挂钟时间，精度为分钟（距 00:00 的分钟数）
type ClockTime int

// Clock 由小时和分钟构造
func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClock 解析 HH:MM 格式的时间，允许 24:00 表示当日结束
func ParseClock(s string) (ClockTime, error) {
	if len(s) != 5 || s[2] != ':' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return 0, fmt.Errorf("时间格式无效 %q，应为 HH:MM", s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 24 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("时间超出范围 %q", s)
	}
	return Clock(h, m), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String 返回 HH:MM
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add 增加分钟数
func (c ClockTime) Add(minutes int) ClockTime {
	return c + ClockTime(minutes)
}

// Sub 返回两个时间相差的分钟数
func (c ClockTime) Sub(other ClockTime) int {
	return int(c - other)
}

// Hours 以小时表示
func (c ClockTime) Hours() float64 {
	return float64(c) / 60
}

// MarshalJSON 序列化为 "HH:MM"
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON 从 "HH:MM" 反序列化
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeWindow 时间窗口 [Start, End]
type TimeWindow struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

// Minutes 窗口长度（分钟）
func (w TimeWindow) Minutes() int {
	return w.End.Sub(w.Start)
}

// Valid 检查 Start < End
func (w TimeWindow) Valid() bool {
	return w.Start < w.End
}

// Contains 检查另一窗口是否完全落在本窗口内
func (w TimeWindow) Contains(other TimeWindow) bool {
	return other.Start >= w.Start && other.End <= w.End
}

// Overlaps 检查两个窗口是否重叠（端点相接不算重叠）
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start < other.End && other.Start < w.End
}

// Expand 两侧各扩展指定分钟数
func (w TimeWindow) Expand(minutes int) TimeWindow {
	return TimeWindow{Start: w.Start.Add(-minutes), End: w.End.Add(minutes)}
}

// ParseDate 解析 YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式无效 %q，应为 YYYY-MM-DD", s)
	}
	return d, nil
}

// AddDays 返回 date 之后 n 天的日期
func AddDays(date string, n int) (string, error) {
	d, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, n).Format(DateLayout), nil
}
