package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/chevastian666/sistrau-sub000/internal/compliance"
	"github.com/chevastian666/sistrau-sub000/internal/domain"
)

func newLedger() *Ledger {
	return New(compliance.Default(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func at(h, m int) time.Time {
	return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
}

func closed(driverID string, typ domain.ActivityType, start, end time.Time) domain.DriverActivity {
	return domain.DriverActivity{
		DriverID:  driverID,
		Type:      typ,
		StartTime: start,
		EndTime:   &end,
	}
}

func record(t *testing.T, l *Ledger, act domain.DriverActivity) *domain.DailyRecord {
	t.Helper()
	rec, err := l.RecordActivity(context.Background(), act)
	if err != nil {
		t.Fatalf("record %s at %s: %v", act.Type, act.StartTime, err)
	}
	return rec
}

func TestShiftScenario(t *testing.T) {
	// driving 06:00-09:30, break 09:30-10:15, driving 10:15-14:00:
	// totalDriving 7.25h, continuous after second segment 3.75h, compliant.
	l := newLedger()

	record(t, l, closed("drv-1", domain.ActivityDriving, at(6, 0), at(9, 30)))
	rec := record(t, l, closed("drv-1", domain.ActivityBreak, at(9, 30), at(10, 15)))
	if rec.ContinuousDriving != 0 {
		t.Fatalf("break must reset continuous driving, got %v", rec.ContinuousDriving)
	}

	rec = record(t, l, closed("drv-1", domain.ActivityDriving, at(10, 15), at(14, 0)))
	if want := 7*time.Hour + 15*time.Minute; rec.TotalDriving != want {
		t.Fatalf("totalDriving = %v, want %v", rec.TotalDriving, want)
	}
	if want := 3*time.Hour + 45*time.Minute; rec.ContinuousDriving != want {
		t.Fatalf("continuous = %v, want %v", rec.ContinuousDriving, want)
	}
	if rec.TotalBreak != 45*time.Minute {
		t.Fatalf("totalBreak = %v", rec.TotalBreak)
	}
	if rec.Compliance.Status != domain.StatusCompliant {
		t.Fatalf("expected compliant, got %v", rec.Compliance.Violations)
	}
}

func TestWorkIncludesDrivingOnce(t *testing.T) {
	l := newLedger()

	record(t, l, closed("drv-1", domain.ActivityDriving, at(6, 0), at(8, 0)))
	rec := record(t, l, closed("drv-1", domain.ActivityOtherWork, at(8, 0), at(9, 0)))
	if rec.TotalDriving != 2*time.Hour {
		t.Fatalf("totalDriving = %v", rec.TotalDriving)
	}
	if rec.TotalWork != 3*time.Hour {
		t.Fatalf("totalWork must include driving exactly once, got %v", rec.TotalWork)
	}
}

func TestContinuousResetsOnlyOnBreakOrRest(t *testing.T) {
	l := newLedger()

	record(t, l, closed("drv-1", domain.ActivityDriving, at(6, 0), at(8, 0)))

	// other_work does not reset the counter.
	rec := record(t, l, closed("drv-1", domain.ActivityOtherWork, at(8, 0), at(8, 30)))
	if rec.ContinuousDriving != 2*time.Hour {
		t.Fatalf("other_work must not reset continuous, got %v", rec.ContinuousDriving)
	}

	rec = record(t, l, closed("drv-1", domain.ActivityDriving, at(8, 30), at(10, 0)))
	if rec.ContinuousDriving != 3*time.Hour+30*time.Minute {
		t.Fatalf("continuous should accumulate across other_work, got %v", rec.ContinuousDriving)
	}

	rec = record(t, l, closed("drv-1", domain.ActivityDailyRest, at(10, 0), at(21, 0)))
	if rec.ContinuousDriving != 0 {
		t.Fatalf("daily_rest must reset continuous, got %v", rec.ContinuousDriving)
	}

	acc, until := l.ContinuousDriving("drv-1")
	if acc != 0 || until != compliance.Default().MaxContinuousDriving.D() {
		t.Fatalf("unexpected counter state: %v / %v", acc, until)
	}
}

func TestExceededDailyDrivingScenario(t *testing.T) {
	// 9.5h of driving with no breaks: EXCEEDED_DAILY_DRIVING, status violation.
	l := newLedger()
	rec, err := l.RecordActivity(context.Background(),
		closed("drv-1", domain.ActivityDriving, at(5, 0), at(14, 30)))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Compliance.Status != domain.StatusViolation {
		t.Fatal("expected violation status")
	}
	found := false
	for _, v := range rec.Compliance.Violations {
		if v.Type == domain.ExceededDailyDriving {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected EXCEEDED_DAILY_DRIVING, got %v", rec.Compliance.Violations)
	}
}

func TestOpenThenCloseActivity(t *testing.T) {
	l := newLedger()
	ctx := context.Background()

	rec, err := l.RecordActivity(ctx, domain.DriverActivity{
		DriverID: "drv-1", Type: domain.ActivityDriving, StartTime: at(6, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.TotalDriving != 0 {
		t.Fatalf("open activity must not count toward totals, got %v", rec.TotalDriving)
	}
	if len(rec.Activities) != 1 || rec.Activities[0].Closed() {
		t.Fatalf("expected one open activity, got %+v", rec.Activities)
	}

	rec, err = l.RecordActivity(ctx, closed("drv-1", domain.ActivityDriving, at(6, 0), at(8, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if rec.TotalDriving != 2*time.Hour {
		t.Fatalf("closing must add the duration, got %v", rec.TotalDriving)
	}
	if len(rec.Activities) != 1 || !rec.Activities[0].Closed() {
		t.Fatalf("open entry should be replaced by the closed one, got %+v", rec.Activities)
	}
}

func TestOpeningNewActivityClosesPrevious(t *testing.T) {
	l := newLedger()

	record(t, l, domain.DriverActivity{
		DriverID: "drv-1", Type: domain.ActivityDriving, StartTime: at(6, 0),
	})
	rec := record(t, l, domain.DriverActivity{
		DriverID: "drv-1", Type: domain.ActivityBreak, StartTime: at(9, 0),
	})
	if rec.TotalDriving != 3*time.Hour {
		t.Fatalf("transition must close the driving segment, got %v", rec.TotalDriving)
	}
	if rec.ContinuousDriving != 3*time.Hour {
		t.Fatalf("break is still open, continuous should stand at %v", rec.ContinuousDriving)
	}
}

func TestRecordActivityValidation(t *testing.T) {
	l := newLedger()
	ctx := context.Background()
	end := at(5, 0)

	cases := []struct {
		name string
		act  domain.DriverActivity
	}{
		{"no driver", domain.DriverActivity{Type: domain.ActivityDriving, StartTime: at(6, 0)}},
		{"bad type", domain.DriverActivity{DriverID: "drv-1", Type: "napping", StartTime: at(6, 0)}},
		{"no start", domain.DriverActivity{DriverID: "drv-1", Type: domain.ActivityDriving}},
		{"end before start", domain.DriverActivity{DriverID: "drv-1", Type: domain.ActivityDriving, StartTime: at(6, 0), EndTime: &end}},
	}
	for _, tc := range cases {
		if _, err := l.RecordActivity(ctx, tc.act); err == nil {
			t.Errorf("%s: expected rejection", tc.name)
		}
	}
}

func TestDailySummaryAbsence(t *testing.T) {
	l := newLedger()
	if _, err := l.DailySummary(context.Background(), "drv-1", "2025-03-10"); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord, got %v", err)
	}
}

type memDayStore struct {
	mu    sync.Mutex
	saved []*domain.DailyRecord
}

func (s *memDayStore) SaveDailyRecord(_ context.Context, rec *domain.DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rec)
	return nil
}

func TestDayFinalizesWhenDateElapses(t *testing.T) {
	clock := clockz.NewFakeClock()
	store := &memDayStore{}
	l := New(compliance.Default(), store, slog.New(slog.NewTextHandler(io.Discard, nil))).WithClock(clock)
	ctx := context.Background()

	// FakeClock starts at a fixed instant; anchor the activity to its day.
	today := clock.Now().UTC()
	start := time.Date(today.Year(), today.Month(), today.Day(), 6, 0, 0, 0, time.UTC)
	record(t, l, closed("drv-1", domain.ActivityDriving, start, start.Add(2*time.Hour)))

	rec, err := l.DailySummary(ctx, "drv-1", dayKey(start))
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != domain.DayInProgress {
		t.Fatalf("expected in_progress, got %s", rec.State)
	}

	clock.Advance(48 * time.Hour)

	rec, err = l.DailySummary(ctx, "drv-1", dayKey(start))
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != domain.DayFinalized {
		t.Fatalf("expected finalized after date elapsed, got %s", rec.State)
	}

	// No rest was logged, so the finalized day carries the rest violation.
	found := false
	for _, v := range rec.Compliance.Violations {
		if v.Type == domain.InsufficientDailyRest {
			found = true
		}
	}
	if !found {
		t.Fatalf("finalized day should fail rest check, got %v", rec.Compliance.Violations)
	}

	store.mu.Lock()
	saved := len(store.saved)
	store.mu.Unlock()
	if saved != 1 {
		t.Fatalf("finalized day should be handed to the day store once, got %d", saved)
	}

	// Closing into a finalized day is rejected.
	_, err = l.RecordActivity(ctx, closed("drv-1", domain.ActivityBreak, start.Add(3*time.Hour), start.Add(4*time.Hour)))
	if !errors.Is(err, ErrDayFinalized) {
		t.Fatalf("expected ErrDayFinalized, got %v", err)
	}
}

func TestBackfillsHistoricalDays(t *testing.T) {
	// Tachograph downloads arrive days after the fact. Appending segments to
	// an elapsed calendar day must keep working until a later-dated activity
	// proves the day's log complete.
	store := &memDayStore{}
	l := New(compliance.Default(), store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	record(t, l, closed("drv-1", domain.ActivityDriving, at(6, 0), at(9, 30)))
	record(t, l, closed("drv-1", domain.ActivityBreak, at(9, 30), at(10, 15)))
	rec := record(t, l, closed("drv-1", domain.ActivityDriving, at(10, 15), at(14, 0)))
	if rec.State != domain.DayInProgress {
		t.Fatalf("day under backfill must stay open, got %s", rec.State)
	}

	// The first segment of the next day freezes the previous one.
	next := at(6, 0).AddDate(0, 0, 1)
	record(t, l, closed("drv-1", domain.ActivityDriving, next, next.Add(2*time.Hour)))

	store.mu.Lock()
	saved := append([]*domain.DailyRecord(nil), store.saved...)
	store.mu.Unlock()
	if len(saved) != 1 || saved[0].Date != "2025-03-10" {
		t.Fatalf("expected 2025-03-10 handed to the day store, got %+v", saved)
	}
	if saved[0].State != domain.DayFinalized {
		t.Fatalf("stored record should be finalized, got %s", saved[0].State)
	}

	_, err := l.RecordActivity(context.Background(),
		closed("drv-1", domain.ActivityBreak, at(14, 0), at(15, 0)))
	if !errors.Is(err, ErrDayFinalized) {
		t.Fatalf("writes after finalization must conflict, got %v", err)
	}
}

func TestOvernightRestCountsTowardStartDay(t *testing.T) {
	clock := clockz.NewFakeClock()
	store := &memDayStore{}
	l := New(compliance.Default(), store, slog.New(slog.NewTextHandler(io.Discard, nil))).WithClock(clock)
	ctx := context.Background()

	today := clock.Now().UTC()
	restStart := time.Date(today.Year(), today.Month(), today.Day(), 21, 0, 0, 0, time.UTC)
	record(t, l, domain.DriverActivity{
		DriverID: "drv-1", Type: domain.ActivityDailyRest, StartTime: restStart,
	})

	// Well past midnight the rest is still open: even though the calendar
	// date has elapsed, the day must not be judged before the rest closes.
	clock.Advance(48 * time.Hour)
	rec, err := l.DailySummary(ctx, "drv-1", dayKey(restStart))
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != domain.DayInProgress {
		t.Fatalf("day with an open rest must stay in progress, got %s", rec.State)
	}

	// The next driving segment closes the rest into the day it started in.
	record(t, l, domain.DriverActivity{
		DriverID: "drv-1", Type: domain.ActivityDriving, StartTime: restStart.Add(11 * time.Hour),
	})

	rec, err = l.DailySummary(ctx, "drv-1", dayKey(restStart))
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != domain.DayFinalized {
		t.Fatalf("expected finalized after the rest closed, got %s", rec.State)
	}
	if rec.TotalRest != 11*time.Hour {
		t.Fatalf("overnight rest = %v, want 11h", rec.TotalRest)
	}
	for _, v := range rec.Compliance.Violations {
		if v.Type == domain.InsufficientDailyRest {
			t.Fatalf("11h rest satisfies the daily minimum, got %v", rec.Compliance.Violations)
		}
	}

	// The persisted record carries the rest, not a pre-close snapshot.
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.saved) != 1 || store.saved[0].TotalRest != 11*time.Hour {
		t.Fatalf("day store got %+v", store.saved)
	}
}

func TestWeeklySummaryAggregates(t *testing.T) {
	l := newLedger()
	ctx := context.Background()

	// 2025-03-10 is a Monday.
	for day := 0; day < 5; day++ {
		start := time.Date(2025, 3, 10+day, 6, 0, 0, 0, time.UTC)
		record(t, l, closed("drv-1", domain.ActivityDriving, start, start.Add(8*time.Hour)))
		record(t, l, closed("drv-1", domain.ActivityBreak, start.Add(8*time.Hour), start.Add(9*time.Hour)))
	}

	week, err := l.WeeklySummary(ctx, "drv-1", "2025-03-10")
	if err != nil {
		t.Fatal(err)
	}
	if week.TotalDriving != 40*time.Hour {
		t.Fatalf("weekly driving = %v, want 40h", week.TotalDriving)
	}
	if len(week.Days) != 5 {
		t.Fatalf("expected 5 contributing days, got %d", len(week.Days))
	}

	if _, err := l.WeeklySummary(ctx, "drv-1", "2024-01-01"); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("empty week should be ErrNoRecord, got %v", err)
	}
}

func TestDriversAreIndependent(t *testing.T) {
	l := newLedger()
	ctx := context.Background()
	var wg sync.WaitGroup
	drivers := []string{"drv-1", "drv-2", "drv-3", "drv-4"}

	for _, id := range drivers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				start := at(6, 0).Add(time.Duration(i) * 10 * time.Minute)
				if _, err := l.RecordActivity(ctx, closed(id, domain.ActivityDriving, start, start.Add(10*time.Minute))); err != nil {
					t.Errorf("%s: %v", id, err)
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range drivers {
		rec, err := l.DailySummary(ctx, id, "2025-03-10")
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if rec.TotalDriving != 200*time.Minute {
			t.Fatalf("%s: totalDriving = %v", id, rec.TotalDriving)
		}
	}
}
