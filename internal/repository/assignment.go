package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/paiban/visitsched/pkg/errors"
	"github.com/paiban/visitsched/pkg/model"
)

// AssignmentRepository 已排定作业仓储
type AssignmentRepository struct {
	db DB
}

// NewAssignmentRepository 创建作业仓储
func NewAssignmentRepository(db DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *AssignmentRepository) WithTx(tx DB) *AssignmentRepository {
	return &AssignmentRepository{db: tx}
}

const assignmentColumns = `booking_id, worker_id, scheduled_date, start_time, end_time,
	location, travel_distance_km, travel_time_minutes`

// Create 保存作业
func (r *AssignmentRepository) Create(ctx context.Context, a *model.Assignment, score float64) error {
	loc, err := marshalPoint(a.Location)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO assignments (` + assignmentColumns + `, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		a.BookingID, a.WorkerID, a.Date, int(a.Start), int(a.End),
		loc, a.TravelDistanceKm, a.TravelMinutes, score,
	)
	if err != nil {
		return fmt.Errorf("保存作业失败: %w", err)
	}
	return nil
}

// ListRange 查询 [from, from+days) 日期范围内的全部作业
func (r *AssignmentRepository) ListRange(ctx context.Context, from string, days int) ([]model.Assignment, error) {
	to, err := model.AddDays(from, days)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE scheduled_date >= $1 AND scheduled_date < $2
		ORDER BY worker_id, scheduled_date, start_time
	`
	return r.query(ctx, query, from, to)
}

// GetByBooking 查询预约的作业，不存在时返回 NOT_FOUND
func (r *AssignmentRepository) GetByBooking(ctx context.Context, bookingID string) (*model.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE booking_id = $1`

	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("作业", bookingID)
	}
	return a, err
}

// ListByWorkerDate 查询某作业员某日的作业
func (r *AssignmentRepository) ListByWorkerDate(ctx context.Context, workerID, date string) ([]model.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE worker_id = $1 AND scheduled_date = $2
		ORDER BY start_time
	`
	return r.query(ctx, query, workerID, date)
}

func (r *AssignmentRepository) query(ctx context.Context, query string, args ...interface{}) ([]model.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询作业失败: %w", err)
	}
	defer rows.Close()

	var jobs []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *a)
	}
	return jobs, rows.Err()
}

func scanAssignment(s Scanner) (*model.Assignment, error) {
	var (
		a          model.Assignment
		date       time.Time
		start, end int
		loc        []byte
	)
	if err := s.Scan(&a.BookingID, &a.WorkerID, &date, &start, &end,
		&loc, &a.TravelDistanceKm, &a.TravelMinutes); err != nil {
		return nil, fmt.Errorf("扫描作业失败: %w", err)
	}
	p, err := unmarshalPoint(loc)
	if err != nil {
		return nil, err
	}
	a.Date = formatDate(date)
	a.Start = model.ClockTime(start)
	a.End = model.ClockTime(end)
	a.Location = p
	return &a, nil
}
