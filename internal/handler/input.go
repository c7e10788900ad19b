package handler

import (
	"github.com/google/uuid"

	"github.com/paiban/visitsched/pkg/model"
	"github.com/paiban/visitsched/pkg/urgency"
)

// BookingInput 请求中的预约，可省略ID、时长、紧急度；紧急度缺省时可由症状判定
type BookingInput struct {
	model.Booking
	Symptoms *urgency.Symptoms `json:"symptoms,omitempty"`
}

// Defaults 请求边界的默认值，核心优化器不做任何默认填充
type Defaults struct {
	DurationMinutes int
	Classifier      *urgency.Classifier
}

// resolve 填充默认值，返回预约与命中的紧急度规则名
func (d Defaults) resolve(in *BookingInput) (*model.Booking, string) {
	b := in.Booking
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.DurationMinutes == 0 {
		b.DurationMinutes = d.DurationMinutes
	}

	rule := ""
	if b.Urgency == "" {
		switch {
		case in.Symptoms != nil && d.Classifier != nil:
			b.Urgency, rule = d.Classifier.Classify(*in.Symptoms)
		default:
			b.Urgency = model.UrgencyMedium
		}
	}
	return &b, rule
}
