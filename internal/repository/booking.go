package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/paiban/visitsched/pkg/errors"
	"github.com/paiban/visitsched/pkg/model"
)

// BookingRepository 预约仓储
type BookingRepository struct {
	db DB
}

// NewBookingRepository 创建预约仓储
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *BookingRepository) WithTx(tx DB) *BookingRepository {
	return &BookingRepository{db: tx}
}

// Create 保存预约，已存在时以本次内容为准
func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) error {
	loc, err := marshalPoint(&b.Location)
	if err != nil {
		return err
	}
	var prefDate, prefTime interface{}
	if b.PreferredDate != "" {
		prefDate = b.PreferredDate
	}
	if b.PreferredTime != nil {
		prefTime = int(*b.PreferredTime)
	}

	query := `
		INSERT INTO bookings (
			id, customer_id, customer_name, location, preferred_date,
			preferred_time, duration_minutes, urgency
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			customer_name = EXCLUDED.customer_name,
			location = EXCLUDED.location,
			preferred_date = EXCLUDED.preferred_date,
			preferred_time = EXCLUDED.preferred_time,
			duration_minutes = EXCLUDED.duration_minutes,
			urgency = EXCLUDED.urgency
	`
	_, err = r.db.ExecContext(ctx, query,
		b.ID, b.CustomerID, b.CustomerName, loc, prefDate,
		prefTime, b.DurationMinutes, string(b.Urgency),
	)
	if err != nil {
		return fmt.Errorf("保存预约失败: %w", err)
	}
	return nil
}

// GetByID 根据ID获取预约
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	query := `
		SELECT id, customer_id, customer_name, location, preferred_date,
			preferred_time, duration_minutes, urgency
		FROM bookings WHERE id = $1
	`
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("预约", id)
	}
	return b, err
}

func scanBooking(s Scanner) (*model.Booking, error) {
	var (
		b        model.Booking
		custID   sql.NullString
		loc      []byte
		prefDate sql.NullTime
		prefTime sql.NullInt64
		urgency  string
	)
	if err := s.Scan(&b.ID, &custID, &b.CustomerName, &loc, &prefDate,
		&prefTime, &b.DurationMinutes, &urgency); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("查询预约失败: %w", err)
	}

	p, err := unmarshalPoint(loc)
	if err != nil {
		return nil, err
	}
	if p != nil {
		b.Location = *p
	}
	b.CustomerID = custID.String
	if prefDate.Valid {
		b.PreferredDate = formatDate(prefDate.Time)
	}
	if prefTime.Valid {
		t := model.ClockTime(prefTime.Int64)
		b.PreferredTime = &t
	}
	b.Urgency = model.Urgency(urgency)
	return &b, nil
}
