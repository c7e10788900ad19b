// Package matcher 提供距离与路程时间估算
package matcher

import (
	"math"

	"github.com/paiban/visitsched/pkg/model"
)

const (
	// EarthRadiusKm 地球半径（公里）
	EarthRadiusKm = 6371.0
	// AverageSpeedKmh 市区平均车速
	AverageSpeedKmh = 30.0
	// CongestionFactor 信号灯、拥堵等余量
	CongestionFactor = 1.2
)

// Estimator 距离与路程时间估算器
type Estimator interface {
	DistanceKm(a, b model.GeoPoint) float64
	TravelMinutes(distanceKm float64) int
}

// Haversine 直线距离估算器，不接入地图或路况服务
type Haversine struct{}

// NewHaversine 创建直线距离估算器
func NewHaversine() Haversine {
	return Haversine{}
}

// DistanceKm 使用 Haversine 公式计算两点间大圆距离（公里）
// 不校验经纬度范围
func (Haversine) DistanceKm(a, b model.GeoPoint) float64 {
	lat1Rad := a.Latitude * math.Pi / 180
	lat2Rad := b.Latitude * math.Pi / 180
	deltaLat := (b.Latitude - a.Latitude) * math.Pi / 180
	deltaLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	// 浮点误差可能让 h 略超出 [0,1]
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// TravelMinutes 由距离估算路程时间（分钟，截断取整）
func (Haversine) TravelMinutes(distanceKm float64) int {
	if distanceKm <= 0 {
		return 0
	}
	base := distanceKm / AverageSpeedKmh * 60
	return int(base * CongestionFactor)
}

// RoundKm 保留两位小数
func RoundKm(km float64) float64 {
	return math.Round(km*100) / 100
}
