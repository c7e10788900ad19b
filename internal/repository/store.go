package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/paiban/visitsched/internal/database"
	"github.com/paiban/visitsched/pkg/errors"
	"github.com/paiban/visitsched/pkg/model"
)

// uniqueViolation PostgreSQL 唯一约束冲突
const uniqueViolation = "23505"

// Store 聚合各仓储并提供事务写入
type Store struct {
	db          *database.DB
	Workers     *WorkerRepository
	Bookings    *BookingRepository
	Assignments *AssignmentRepository
}

// NewStore 创建存储
func NewStore(db *database.DB) *Store {
	return &Store{
		db:          db,
		Workers:     NewWorkerRepository(db),
		Bookings:    NewBookingRepository(db),
		Assignments: NewAssignmentRepository(db),
	}
}

// Commit 在一个事务内写入预约与作业。预约已有作业时返回 ALREADY_EXISTS，不触发重试。
func (s *Store) Commit(ctx context.Context, b *model.Booking, a *model.Assignment, score float64) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := s.Bookings.WithTx(tx).Create(ctx, b); err != nil {
			return err
		}
		if err := s.Assignments.WithTx(tx).Create(ctx, a, score); err != nil {
			return assignmentError(b.ID, err)
		}
		return nil
	})
}

// assignmentError assignments 主键为 booking_id，唯一冲突即重复提交
func assignmentError(bookingID string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return errors.AlreadyExists(bookingID)
	}
	return err
}
