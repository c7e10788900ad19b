package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/paiban/visitsched/pkg/errors"
	"github.com/paiban/visitsched/pkg/model"
)

// WorkerRepository 作业员仓储
type WorkerRepository struct {
	db DB
}

// NewWorkerRepository 创建作业员仓储
func NewWorkerRepository(db DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

const workerColumns = `id, name, home_location, available_from, available_to, max_jobs_per_day, status`

// Upsert 创建或更新作业员
func (r *WorkerRepository) Upsert(ctx context.Context, w *model.Worker) error {
	home, err := marshalPoint(w.Home)
	if err != nil {
		return err
	}
	status := w.Status
	if status == "" {
		status = "active"
	}

	query := `
		INSERT INTO workers (` + workerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			home_location = EXCLUDED.home_location,
			available_from = EXCLUDED.available_from,
			available_to = EXCLUDED.available_to,
			max_jobs_per_day = EXCLUDED.max_jobs_per_day,
			status = EXCLUDED.status,
			updated_at = now()
	`
	_, err = r.db.ExecContext(ctx, query,
		w.ID, w.Name, home, int(w.AvailableFrom), int(w.AvailableTo), w.MaxJobsPerDay, status,
	)
	if err != nil {
		return fmt.Errorf("保存作业员失败: %w", err)
	}
	return nil
}

// GetByID 根据ID获取作业员
func (r *WorkerRepository) GetByID(ctx context.Context, id string) (*model.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers WHERE id = $1`

	w, err := scanWorker(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("作业员", id)
	}
	return w, err
}

// ListActive 按ID顺序列出在岗作业员（顺序固定，保证调度结果可复现）
func (r *WorkerRepository) ListActive(ctx context.Context) ([]*model.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers WHERE status = 'active' ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询作业员失败: %w", err)
	}
	defer rows.Close()

	var workers []*model.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

func scanWorker(s Scanner) (*model.Worker, error) {
	var (
		w        model.Worker
		home     []byte
		from, to int
	)
	if err := s.Scan(&w.ID, &w.Name, &home, &from, &to, &w.MaxJobsPerDay, &w.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("扫描作业员失败: %w", err)
	}
	loc, err := unmarshalPoint(home)
	if err != nil {
		return nil, err
	}
	w.Home = loc
	w.AvailableFrom = model.ClockTime(from)
	w.AvailableTo = model.ClockTime(to)
	return &w, nil
}
