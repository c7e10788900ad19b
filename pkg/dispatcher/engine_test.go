package dispatcher

import (
	"context"
	"net/http"
	"reflect"
	"testing"

	"github.com/paiban/visitsched/pkg/dispatcher/matcher"
	"github.com/paiban/visitsched/pkg/errors"
	"github.com/paiban/visitsched/pkg/model"
)

const day1 = "2026-03-02"

var (
	office   = model.GeoPoint{Address: "営業所", Latitude: 35.6812, Longitude: 139.7671}
	customer = model.GeoPoint{Address: "顧客宅", Latitude: 35.6896, Longitude: 139.7006}
)

func newWorker(id string) *model.Worker {
	home := office
	return &model.Worker{
		ID:            id,
		Name:          "作业员" + id,
		Home:          &home,
		AvailableFrom: model.Clock(9, 0),
		AvailableTo:   model.Clock(18, 0),
		MaxJobsPerDay: 4,
	}
}

func newBooking(id string, duration int) *model.Booking {
	return &model.Booking{
		ID:              id,
		CustomerName:    "顧客" + id,
		Location:        customer,
		PreferredDate:   day1,
		DurationMinutes: duration,
		Urgency:         model.UrgencyMedium,
	}
}

func existing(bookingID, workerID, date string, start, end model.ClockTime, loc *model.GeoPoint) model.Assignment {
	return model.Assignment{
		BookingID: bookingID,
		WorkerID:  workerID,
		Date:      date,
		Start:     start,
		End:       end,
		Location:  loc,
	}
}

func TestOptimize_EmptyDayStartsAtOpening(t *testing.T) {
	opt := NewOptimizer(nil)
	booking := newBooking("b1", 120)

	res, err := opt.Optimize(context.Background(), &Request{
		Booking: booking,
		Workers: []*model.Worker{newWorker("w1")},
	})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	a := res.Assignment
	if a.WorkerID != "w1" || a.Date != day1 {
		t.Errorf("分配 = %s/%s", a.WorkerID, a.Date)
	}
	if a.Start != model.Clock(9, 0) || a.End != model.Clock(11, 0) {
		t.Errorf("时间 = %v-%v, expected 09:00-11:00", a.Start, a.End)
	}

	h := matcher.NewHaversine()
	d := h.DistanceKm(office, customer)
	if a.TravelDistanceKm != matcher.RoundKm(d) {
		t.Errorf("TravelDistanceKm = %v, expected %v", a.TravelDistanceKm, matcher.RoundKm(d))
	}
	if a.TravelMinutes != h.TravelMinutes(d) {
		t.Errorf("TravelMinutes = %d, expected %d", a.TravelMinutes, h.TravelMinutes(d))
	}
	if a.Location == nil || *a.Location != customer {
		t.Errorf("Location = %+v, expected 预约目的地", a.Location)
	}
	if res.SearchedDays != 1 || len(res.Warnings) != 0 {
		t.Errorf("SearchedDays = %d, Warnings = %v", res.SearchedDays, res.Warnings)
	}
	// 100 + 路程50 + 负荷20
	if res.Score != 170 {
		t.Errorf("Score = %v, expected 170", res.Score)
	}
}

func TestOptimize_SkipsGapTooShortForBuffer(t *testing.T) {
	opt := NewOptimizer(nil)
	loc := office

	res, err := opt.Optimize(context.Background(), &Request{
		Booking:      newBooking("b2", 90),
		Workers:      []*model.Worker{newWorker("w1")},
		ExistingJobs: []model.Assignment{existing("b1", "w1", day1, model.Clock(10, 0), model.Clock(11, 0), &loc)},
	})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if res.Assignment.Start != model.Clock(11, 30) {
		t.Errorf("Start = %v, expected 11:30", res.Assignment.Start)
	}
	if res.CandidatesEvaluated != 1 {
		t.Errorf("CandidatesEvaluated = %d, expected 1", res.CandidatesEvaluated)
	}
}

// 只给出部分配置时缓冲仍为 30 分钟，上一单目的地作为出发点
func TestOptimize_PartialConfigKeepsBuffer(t *testing.T) {
	opt := NewOptimizer(&Config{MaxLookaheadDays: 7})
	if opt.Buffer() != 30 {
		t.Fatalf("Buffer() = %d, expected 30", opt.Buffer())
	}

	site := customer
	res, err := opt.Optimize(context.Background(), &Request{
		Booking:      newBooking("b2", 60),
		Workers:      []*model.Worker{newWorker("w1")},
		ExistingJobs: []model.Assignment{existing("b1", "w1", day1, model.Clock(9, 0), model.Clock(10, 0), &site)},
	})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	a := res.Assignment
	if a.Start != model.Clock(10, 30) || a.End != model.Clock(11, 30) {
		t.Errorf("时间 = %v-%v, expected 10:30-11:30", a.Start, a.End)
	}
	if a.TravelDistanceKm != 0 || a.TravelMinutes != 0 {
		t.Errorf("应从上一单目的地出发: %v km, %d min", a.TravelDistanceKm, a.TravelMinutes)
	}
}

func TestOptimize_FullWorkerAdvancesToNextDay(t *testing.T) {
	opt := NewOptimizer(nil)
	w := newWorker("w1")
	w.MaxJobsPerDay = 2
	loc := office

	res, err := opt.Optimize(context.Background(), &Request{
		Booking: newBooking("b3", 60),
		Workers: []*model.Worker{w},
		ExistingJobs: []model.Assignment{
			existing("b1", "w1", day1, model.Clock(9, 0), model.Clock(10, 0), &loc),
			existing("b2", "w1", day1, model.Clock(11, 0), model.Clock(12, 0), &loc),
		},
	})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if res.Assignment.Date != "2026-03-03" {
		t.Errorf("Date = %s, expected 2026-03-03", res.Assignment.Date)
	}
	if res.SearchedDays != 2 {
		t.Errorf("SearchedDays = %d, expected 2", res.SearchedDays)
	}
	if res.Assignment.Start != model.Clock(9, 0) {
		t.Errorf("Start = %v, expected 09:00", res.Assignment.Start)
	}
}

func TestOptimize_LoadBalanceBreaksUrgentTie(t *testing.T) {
	opt := NewOptimizer(nil)
	booking := newBooking("b9", 60)
	booking.Urgency = model.UrgencyHigh
	loc := office

	res, err := opt.Optimize(context.Background(), &Request{
		Booking: booking,
		Workers: []*model.Worker{newWorker("busy"), newWorker("idle")},
		ExistingJobs: []model.Assignment{
			existing("b1", "busy", day1, model.Clock(15, 0), model.Clock(16, 0), &loc),
		},
	})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if res.Assignment.WorkerID != "idle" {
		t.Errorf("WorkerID = %s, expected idle", res.Assignment.WorkerID)
	}
	if res.Breakdown.Part("urgency_bonus") != 20 {
		t.Errorf("urgency_bonus = %v, expected 20", res.Breakdown.Part("urgency_bonus"))
	}
	if res.Breakdown.Part("load_balance") != 20 {
		t.Errorf("load_balance = %v, expected 20", res.Breakdown.Part("load_balance"))
	}
}

func TestOptimize_TieKeepsInputOrder(t *testing.T) {
	opt := NewOptimizer(nil)
	for _, order := range [][]string{{"a", "b"}, {"b", "a"}} {
		workers := []*model.Worker{newWorker(order[0]), newWorker(order[1])}
		res, err := opt.Optimize(context.Background(), &Request{Booking: newBooking("b1", 60), Workers: workers})
		if err != nil {
			t.Fatalf("Optimize failed: %v", err)
		}
		if res.Assignment.WorkerID != order[0] {
			t.Errorf("同分时应选先出现的 %s, got %s", order[0], res.Assignment.WorkerID)
		}
	}
}

func TestOptimize_Idempotent(t *testing.T) {
	opt := NewOptimizer(nil)
	loc := customer
	req := &Request{
		Booking: newBooking("b5", 60),
		Workers: []*model.Worker{newWorker("w1"), newWorker("w2"), newWorker("w3")},
		ExistingJobs: []model.Assignment{
			existing("b1", "w1", day1, model.Clock(9, 0), model.Clock(10, 0), &loc),
			existing("b2", "w2", day1, model.Clock(13, 0), model.Clock(15, 0), &loc),
		},
		MaxAlternatives: 3,
	}

	first, err := opt.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	second, err := opt.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if !reflect.DeepEqual(first.Assignment, second.Assignment) || first.Score != second.Score {
		t.Errorf("两次结果不一致: %+v vs %+v", first.Assignment, second.Assignment)
	}
}

func TestOptimize_PreferredTimePicksClosestSlot(t *testing.T) {
	opt := NewOptimizer(nil)
	booking := newBooking("b6", 60)
	pref := model.Clock(14, 0)
	booking.PreferredTime = &pref
	loc := office

	res, err := opt.Optimize(context.Background(), &Request{
		Booking:      booking,
		Workers:      []*model.Worker{newWorker("w1")},
		ExistingJobs: []model.Assignment{existing("b1", "w1", day1, model.Clock(12, 0), model.Clock(13, 0), &loc)},
	})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if res.Assignment.Start != model.Clock(13, 30) {
		t.Errorf("Start = %v, expected 13:30", res.Assignment.Start)
	}
	if got := res.Breakdown.Part("preferred_time"); got != 25 {
		t.Errorf("preferred_time = %v, expected 25", got)
	}
}

func TestOptimize_TargetDateOverridesPreferred(t *testing.T) {
	opt := NewOptimizer(nil)
	res, err := opt.Optimize(context.Background(), &Request{
		Booking:    newBooking("b1", 60),
		TargetDate: "2026-03-10",
		Workers:    []*model.Worker{newWorker("w1")},
	})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if res.Assignment.Date != "2026-03-10" {
		t.Errorf("Date = %s, expected 2026-03-10", res.Assignment.Date)
	}
}

func TestOptimize_InactiveWorkerIgnored(t *testing.T) {
	opt := NewOptimizer(nil)
	off := newWorker("off")
	off.Status = "inactive"

	res, err := opt.Optimize(context.Background(), &Request{
		Booking: newBooking("b1", 60),
		Workers: []*model.Worker{off, newWorker("on")},
	})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if res.Assignment.WorkerID != "on" {
		t.Errorf("WorkerID = %s, expected on", res.Assignment.WorkerID)
	}
}

func TestOptimize_NoCapacity(t *testing.T) {
	opt := NewOptimizer(&Config{BufferMinutes: 30, MaxLookaheadDays: 5})

	_, err := opt.Optimize(context.Background(), &Request{
		Booking: newBooking("long", 600),
		Workers: []*model.Worker{newWorker("w1")},
	})
	if !errors.Is(err, errors.CodeNoCapacity) {
		t.Fatalf("err = %v, expected NO_CAPACITY", err)
	}
	if errors.GetHTTPStatus(err) != http.StatusUnprocessableEntity {
		t.Errorf("HTTP status = %d", errors.GetHTTPStatus(err))
	}
	if errors.CategoryOf(err) != errors.CategoryRetryOther {
		t.Errorf("Category = %s", errors.CategoryOf(err))
	}
}

func TestOptimize_CanceledContext(t *testing.T) {
	opt := NewOptimizer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := opt.Optimize(ctx, &Request{
		Booking: newBooking("b1", 60),
		Workers: []*model.Worker{newWorker("w1")},
	})
	if !errors.Is(err, errors.CodeTimeout) {
		t.Fatalf("err = %v, expected TIMEOUT", err)
	}
	if !errors.As(err, new(*errors.AppError)) {
		t.Error("应返回 AppError")
	}
}

func TestOptimize_UnresolvedPreviousStop(t *testing.T) {
	jobs := []model.Assignment{existing("b1", "w1", day1, model.Clock(9, 0), model.Clock(10, 0), nil)}

	t.Run("默认附带警告", func(t *testing.T) {
		opt := NewOptimizer(nil)
		res, err := opt.Optimize(context.Background(), &Request{
			Booking:      newBooking("b2", 60),
			Workers:      []*model.Worker{newWorker("w1")},
			ExistingJobs: jobs,
		})
		if err != nil {
			t.Fatalf("Optimize failed: %v", err)
		}
		if res.Assignment.Start != model.Clock(10, 30) {
			t.Errorf("Start = %v, expected 10:30", res.Assignment.Start)
		}
		if len(res.Warnings) != 1 || res.Warnings[0].Code != errors.CodePartialData {
			t.Fatalf("Warnings = %v, expected PARTIAL_DATA", res.Warnings)
		}
		if res.Assignment.TravelDistanceKm != 0 || res.Assignment.TravelMinutes != 0 {
			t.Errorf("路程应为 0, got %v/%d", res.Assignment.TravelDistanceKm, res.Assignment.TravelMinutes)
		}
		if res.Breakdown.Part("travel_cost") != 0 {
			t.Errorf("travel_cost = %v, expected 0", res.Breakdown.Part("travel_cost"))
		}
	})

	t.Run("严格模式排除候选", func(t *testing.T) {
		opt := NewOptimizer(&Config{BufferMinutes: 30, MaxLookaheadDays: 30, StrictLocations: true})
		res, err := opt.Optimize(context.Background(), &Request{
			Booking:      newBooking("b2", 60),
			Workers:      []*model.Worker{newWorker("w1")},
			ExistingJobs: jobs,
		})
		if err != nil {
			t.Fatalf("Optimize failed: %v", err)
		}
		if res.Assignment.Date != "2026-03-03" {
			t.Errorf("Date = %s, expected 2026-03-03", res.Assignment.Date)
		}
		if len(res.Warnings) != 0 {
			t.Errorf("Warnings = %v", res.Warnings)
		}
	})

	t.Run("作业员无出发位置", func(t *testing.T) {
		opt := NewOptimizer(nil)
		w := newWorker("w1")
		w.Home = nil
		res, err := opt.Optimize(context.Background(), &Request{
			Booking: newBooking("b2", 60),
			Workers: []*model.Worker{w},
		})
		if err != nil {
			t.Fatalf("Optimize failed: %v", err)
		}
		if len(res.Warnings) != 1 {
			t.Errorf("Warnings = %v, expected 1", res.Warnings)
		}
	})
}

func TestOptimize_Alternatives(t *testing.T) {
	opt := NewOptimizer(nil)
	loc := office

	res, err := opt.Optimize(context.Background(), &Request{
		Booking: newBooking("b1", 60),
		Workers: []*model.Worker{newWorker("w1"), newWorker("w2")},
		ExistingJobs: []model.Assignment{
			existing("x1", "w2", day1, model.Clock(12, 0), model.Clock(13, 0), &loc),
		},
		MaxAlternatives: 5,
	})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	// w1 一个时段，w2 两个时段
	if len(res.Alternatives) != 2 {
		t.Fatalf("Alternatives = %d, expected 2", len(res.Alternatives))
	}
	for i, alt := range res.Alternatives {
		if alt.Score > res.Score {
			t.Errorf("备选 %d 得分 %v 高于最佳 %v", i, alt.Score, res.Score)
		}
		if i > 0 && alt.Score > res.Alternatives[i-1].Score {
			t.Errorf("备选未按得分降序")
		}
	}
	if res.CandidatesEvaluated != 3 {
		t.Errorf("CandidatesEvaluated = %d, expected 3", res.CandidatesEvaluated)
	}
}

func TestOptimize_InvalidInput(t *testing.T) {
	opt := NewOptimizer(nil)
	dup := newWorker("w1")
	badHours := newWorker("w2")
	badHours.AvailableTo = model.Clock(8, 0)
	noDate := newBooking("b1", 60)
	noDate.PreferredDate = ""

	tests := []struct {
		name string
		req  *Request
	}{
		{"空请求", nil},
		{"缺少预约", &Request{Workers: []*model.Worker{newWorker("w1")}}},
		{"时长为零", &Request{Booking: newBooking("b1", 0), Workers: []*model.Worker{newWorker("w1")}}},
		{"无作业员", &Request{Booking: newBooking("b1", 60)}},
		{"作业员ID重复", &Request{Booking: newBooking("b1", 60), Workers: []*model.Worker{dup, newWorker("w1")}}},
		{"作业员工作时间无效", &Request{Booking: newBooking("b1", 60), Workers: []*model.Worker{badHours}}},
		{"空作业员", &Request{Booking: newBooking("b1", 60), Workers: []*model.Worker{nil}}},
		{"缺少日期", &Request{Booking: noDate, Workers: []*model.Worker{newWorker("w1")}}},
		{"日期格式错误", &Request{Booking: newBooking("b1", 60), TargetDate: "03/02/2026", Workers: []*model.Worker{newWorker("w1")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := opt.Optimize(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsInvalidInput(err) {
				t.Errorf("err = %v, expected fix_request", err)
			}
		})
	}
}

func TestBatchOptimize_NoDoubleBooking(t *testing.T) {
	opt := NewOptimizer(nil)
	w := newWorker("w1")
	w.MaxJobsPerDay = 3

	bookings := []*model.Booking{
		newBooking("b1", 120),
		newBooking("b2", 120),
		newBooking("bad", 0),
		newBooking("b3", 120),
		newBooking("b4", 120),
	}

	items := opt.BatchOptimize(context.Background(), bookings, []*model.Worker{w}, nil)
	if len(items) != len(bookings) {
		t.Fatalf("items = %d", len(items))
	}
	if items[2].Err == nil || !errors.IsInvalidInput(items[2].Err) {
		t.Errorf("无效预约应失败: %v", items[2].Err)
	}

	var placed []model.Assignment
	for i, it := range items {
		if i == 2 {
			continue
		}
		if it.Err != nil {
			t.Fatalf("%s 失败: %v", it.BookingID, it.Err)
		}
		placed = append(placed, it.Result.Assignment)
	}

	// 同一作业员同一天内任意两单之间至少间隔缓冲
	for i := range placed {
		for j := i + 1; j < len(placed); j++ {
			a, b := placed[i], placed[j]
			if a.WorkerID == b.WorkerID && a.Date == b.Date &&
				a.Window().Expand(opt.Buffer()).Overlaps(b.Window()) {
				t.Errorf("%s 与 %s 重叠", a.BookingID, b.BookingID)
			}
		}
	}

	// 容量为 3，第四单顺延到次日
	if placed[3].Date != "2026-03-03" {
		t.Errorf("b4 Date = %s, expected 2026-03-03", placed[3].Date)
	}
	if model.CountFor(placed, "w1", day1) != 3 {
		t.Errorf("首日作业数 = %d, expected 3", model.CountFor(placed, "w1", day1))
	}
}
