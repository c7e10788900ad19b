package service

import (
	"context"
	"time"

	"github.com/paiban/visitsched/internal/lock"
	"github.com/paiban/visitsched/internal/metrics"
	"github.com/paiban/visitsched/pkg/dispatcher"
	"github.com/paiban/visitsched/pkg/errors"
	"github.com/paiban/visitsched/pkg/logger"
	"github.com/paiban/visitsched/pkg/model"
	"github.com/paiban/visitsched/pkg/stats"
	"github.com/paiban/visitsched/pkg/validator"
)

// WorkerStore 作业员名册
type WorkerStore interface {
	ListActive(ctx context.Context) ([]*model.Worker, error)
	GetByID(ctx context.Context, id string) (*model.Worker, error)
	Upsert(ctx context.Context, w *model.Worker) error
}

// BookingStore 预约读取
type BookingStore interface {
	GetByID(ctx context.Context, id string) (*model.Booking, error)
}

// AssignmentStore 已提交作业读取，GetByBooking 不存在时返回 NOT_FOUND
type AssignmentStore interface {
	ListRange(ctx context.Context, from string, days int) ([]model.Assignment, error)
	ListByWorkerDate(ctx context.Context, workerID, date string) ([]model.Assignment, error)
	GetByBooking(ctx context.Context, bookingID string) (*model.Assignment, error)
}

// Committer 在一个事务内写入预约与作业
type Committer interface {
	Commit(ctx context.Context, booking *model.Booking, a *model.Assignment, score float64) error
}

// BookingOptions 预约服务参数
type BookingOptions struct {
	LookaheadDays int
	CommitRetries int
}

// BookingService 有状态调度：读取快照 → 优化 → 加锁 → 复核 → 提交，冲突时重试
type BookingService struct {
	planner   *Planner
	workers   WorkerStore
	bookings  BookingStore
	jobs      AssignmentStore
	committer Committer
	locker    lock.Locker
	detector  *validator.ConflictDetector
	opts      BookingOptions
}

// NewBookingService 创建预约服务
func NewBookingService(planner *Planner, workers WorkerStore, bookings BookingStore, jobs AssignmentStore, committer Committer, locker lock.Locker, opts BookingOptions) *BookingService {
	if opts.LookaheadDays <= 0 {
		opts.LookaheadDays = dispatcher.DefaultMaxLookaheadDays
	}
	if opts.CommitRetries <= 0 {
		opts.CommitRetries = 3
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &BookingService{
		planner:   planner,
		workers:   workers,
		bookings:  bookings,
		jobs:      jobs,
		committer: committer,
		locker:    locker,
		detector:  validator.NewConflictDetector(planner.Optimizer().Buffer()),
		opts:      opts,
	}
}

// Placement 已提交的分配，DayJobs 为提交前该作业员当日的已有作业
type Placement struct {
	*dispatcher.Result
	DayJobs []model.Assignment `json:"-"`
}

// Schedule 为预约选定并提交分配。预约已有分配时直接返回 ALREADY_EXISTS。
func (s *BookingService) Schedule(ctx context.Context, booking *model.Booking, targetDate string) (*Placement, error) {
	if booking == nil {
		return nil, errors.InvalidInput("booking", "缺少预约")
	}
	if targetDate == "" {
		targetDate = booking.PreferredDate
	}
	if _, err := model.ParseDate(targetDate); err != nil {
		return nil, errors.InvalidInput("target_date", err.Error())
	}

	prior, err := s.jobs.GetByBooking(ctx, booking.ID)
	switch {
	case err == nil:
		return nil, errors.AlreadyExists(booking.ID).
			WithField("worker_id", prior.WorkerID).
			WithField("date", prior.Date)
	case !errors.Is(err, errors.CodeNotFound):
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "读取预约分配失败")
	}

	log := logger.WithContext(ctx)

	for attempt := 1; attempt <= s.opts.CommitRetries; attempt++ {
		workers, err := s.workers.ListActive(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "读取作业员失败")
		}
		jobs, err := s.jobs.ListRange(ctx, targetDate, s.opts.LookaheadDays)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "读取已提交作业失败")
		}

		res, err := s.planner.Optimize(ctx, &dispatcher.Request{
			Booking:      booking,
			TargetDate:   targetDate,
			Workers:      workers,
			ExistingJobs: jobs,
		})
		if err != nil {
			return nil, err
		}

		dayJobs, err := s.commit(ctx, booking, res, workers)
		if err == nil {
			log.Info().
				Str("booking_id", booking.ID).
				Str("worker_id", res.Assignment.WorkerID).
				Str("date", res.Assignment.Date).
				Str("start", res.Assignment.Start.String()).
				Int("attempt", attempt).
				Msg("预约已提交")
			return &Placement{Result: res, DayJobs: dayJobs}, nil
		}
		if !errors.Is(err, errors.CodeScheduleConflict) {
			return nil, err
		}

		metrics.RecordCommitConflict()
		log.Warn().
			Err(err).
			Str("booking_id", booking.ID).
			Int("attempt", attempt).
			Msg("提交复核冲突，重新调度")
	}

	return nil, errors.New(errors.CodeScheduleConflict, "多次重试后仍存在提交冲突").
		WithField("booking_id", booking.ID).
		WithField("attempts", s.opts.CommitRetries)
}

// commit 在作业员+日期锁内复核并写入，返回复核时读到的当日作业
func (s *BookingService) commit(ctx context.Context, booking *model.Booking, res *dispatcher.Result, workers []*model.Worker) ([]model.Assignment, error) {
	a := res.Assignment

	unlock, err := s.locker.Acquire(ctx, lock.Key(a.WorkerID, a.Date))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTimeout, "等待提交锁超时")
	}
	defer func() {
		// 原 ctx 可能已取消，释放使用独立的短超时
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := unlock(releaseCtx); err != nil {
			logger.WithContext(ctx).Warn().Err(err).Msg("释放提交锁失败")
		}
	}()

	latest, err := s.jobs.ListByWorkerDate(ctx, a.WorkerID, a.Date)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "复核读取作业失败")
	}

	var worker *model.Worker
	for _, w := range workers {
		if w.ID == a.WorkerID {
			worker = w
			break
		}
	}

	if conflicts := s.detector.Check(&a, worker, latest, booking.DurationMinutes); len(conflicts) > 0 {
		return nil, errors.ScheduleConflict(a.WorkerID, a.Date, conflicts[0].Message).
			WithField("conflicts", conflicts)
	}

	if err := s.committer.Commit(ctx, booking, &a, res.Score); err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "写入作业失败")
	}
	return latest, nil
}

// BookingView 预约及其分配
type BookingView struct {
	Booking    *model.Booking    `json:"booking"`
	Assignment *model.Assignment `json:"assignment,omitempty"`
}

// Booking 查询已提交的预约
func (s *BookingService) Booking(ctx context.Context, id string) (*BookingView, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "读取预约失败")
	}
	view := &BookingView{Booking: b}

	a, err := s.jobs.GetByBooking(ctx, id)
	switch {
	case err == nil:
		view.Assignment = a
	case !errors.Is(err, errors.CodeNotFound):
		return nil, storeError(err, "读取预约分配失败")
	}
	return view, nil
}

// SaveWorker 校验并登记作业员，返回存储后的数据
func (s *BookingService) SaveWorker(ctx context.Context, w *model.Worker) (*model.Worker, error) {
	if w == nil {
		return nil, errors.InvalidInput("worker", "缺少作业员")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := s.workers.Upsert(ctx, w); err != nil {
		return nil, storeError(err, "保存作业员失败")
	}
	saved, err := s.workers.GetByID(ctx, w.ID)
	if err != nil {
		return nil, storeError(err, "读取作业员失败")
	}
	logger.WithContext(ctx).Info().Str("worker_id", saved.ID).Str("status", saved.Status).Msg("作业员已登记")
	return saved, nil
}

// storeError 存储层的 AppError 原样返回，其余包装为数据库错误
func storeError(err error, message string) error {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return errors.Wrap(err, errors.CodeDatabaseError, message)
}

// DaySchedule 作业员某日排程
type DaySchedule struct {
	WorkerID    string               `json:"worker_id"`
	Date        string               `json:"date"`
	Assignments []model.Assignment   `json:"assignments"`
	Summary     *stats.Summary       `json:"summary"`
	Conflicts   []validator.Conflict `json:"conflicts,omitempty"` // 巡检发现的已提交作业冲突
}

// WorkerDay 返回作业员某日已提交的排程，作业员不存在时返回 NOT_FOUND
func (s *BookingService) WorkerDay(ctx context.Context, workerID, date string) (*DaySchedule, error) {
	if _, err := model.ParseDate(date); err != nil {
		return nil, errors.InvalidInput("date", err.Error())
	}
	jobs, err := s.jobs.ListByWorkerDate(ctx, workerID, date)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "读取作业失败")
	}
	if jobs == nil {
		jobs = []model.Assignment{}
	}

	worker, err := s.workers.GetByID(ctx, workerID)
	if err != nil {
		return nil, storeError(err, "读取作业员失败")
	}
	byID := map[string]*model.Worker{worker.ID: worker}

	return &DaySchedule{
		WorkerID:    workerID,
		Date:        date,
		Assignments: jobs,
		Summary:     stats.Summarize(jobs),
		Conflicts:   s.detector.DetectAll(jobs, byID),
	}, nil
}
