// Package ledger keeps the per-driver working-time state: one append-only
// activity log per driver, rolled up into daily records with running totals
// and a continuous-driving counter.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/chevastian666/sistrau-sub000/internal/compliance"
	"github.com/chevastian666/sistrau-sub000/internal/domain"
	"github.com/chevastian666/sistrau-sub000/internal/metrics"
)

// ErrNoRecord is the "no data" answer for a day or week without activity.
var ErrNoRecord = errors.New("no record for driver/date")

// ErrDayFinalized rejects writes into a day whose compliance has become
// immutable: a later-dated activity arrived for the driver, or the calendar
// date had already elapsed when the day was read.
var ErrDayFinalized = errors.New("day already finalized")

// DayStore receives finalized daily records, append-only. Nil disables
// persistence (tests, ephemeral deployments).
type DayStore interface {
	SaveDailyRecord(ctx context.Context, rec *domain.DailyRecord) error
}

type Ledger struct {
	mu      sync.Mutex
	drivers map[string]*driverState

	thresholds compliance.Thresholds
	days       DayStore
	clock      clockz.Clock
	log        *slog.Logger
}

// driverState serializes one driver's updates; different drivers are
// independent.
type driverState struct {
	mu         sync.Mutex
	days       map[string]*domain.DailyRecord
	open       *domain.DriverActivity
	continuous time.Duration
}

func New(thresholds compliance.Thresholds, days DayStore, log *slog.Logger) *Ledger {
	return &Ledger{
		drivers:    make(map[string]*driverState),
		thresholds: thresholds,
		days:       days,
		clock:      clockz.RealClock,
		log:        log,
	}
}

func (l *Ledger) WithClock(clock clockz.Clock) *Ledger {
	l.clock = clock
	return l
}

func (l *Ledger) driver(driverID string) *driverState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.drivers[driverID]
	if !ok {
		st = &driverState{days: make(map[string]*domain.DailyRecord)}
		l.drivers[driverID] = st
	}
	return st
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RecordActivity opens or closes one activity segment and returns the
// updated daily record for the activity's calendar day.
//
// A call without an end time opens a new segment, implicitly closing any
// segment still open at the new start (activity transitions on a tachograph
// work the same way). A call with an end time closes the matching open
// segment, or records a complete segment directly.
func (l *Ledger) RecordActivity(ctx context.Context, act domain.DriverActivity) (*domain.DailyRecord, error) {
	if act.DriverID == "" {
		metrics.ActivitiesRejected.Add(1)
		return nil, fmt.Errorf("missing driver id")
	}
	if !act.Type.Valid() {
		metrics.ActivitiesRejected.Add(1)
		return nil, fmt.Errorf("unknown activity type %q", act.Type)
	}
	if act.StartTime.IsZero() {
		metrics.ActivitiesRejected.Add(1)
		return nil, fmt.Errorf("missing start time")
	}
	if act.EndTime != nil && !act.EndTime.After(act.StartTime) {
		metrics.ActivitiesRejected.Add(1)
		return nil, fmt.Errorf("end time must be after start time")
	}

	st := l.driver(act.DriverID)
	st.mu.Lock()
	defer st.mu.Unlock()

	// Recording is driven by the activity stream, not the wall clock: an
	// activity dated after day D is what proves D's log is complete. Backfill
	// of historical days stays possible until a later-dated activity arrives.
	l.finalizeDaysBefore(ctx, act.DriverID, st, dayKey(act.StartTime))

	key := dayKey(act.StartTime)
	rec := st.days[key]
	if rec != nil && rec.State == domain.DayFinalized {
		metrics.ActivitiesRejected.Add(1)
		return nil, ErrDayFinalized
	}

	if act.EndTime == nil {
		return l.openActivity(ctx, st, act)
	}
	return l.closeActivity(st, act)
}

func (l *Ledger) openActivity(ctx context.Context, st *driverState, act domain.DriverActivity) (*domain.DailyRecord, error) {
	if st.open != nil {
		if !act.StartTime.After(st.open.StartTime) {
			metrics.ActivitiesRejected.Add(1)
			return nil, fmt.Errorf("new activity overlaps open %s segment", st.open.Type)
		}
		closed := *st.open
		end := act.StartTime
		closed.EndTime = &end
		st.open = nil
		if _, err := l.closeActivity(st, closed); err != nil {
			return nil, err
		}
	}

	opened := act
	st.open = &opened

	rec := l.day(st, act.DriverID, dayKey(act.StartTime))
	rec.Activities = append(rec.Activities, opened)
	rec.State = domain.DayInProgress
	metrics.ActivitiesRecorded.Add(1)
	return l.snapshot(rec), nil
}

func (l *Ledger) closeActivity(st *driverState, act domain.DriverActivity) (*domain.DailyRecord, error) {
	// Closing the segment opened earlier replaces the open entry in the
	// day's log; a directly recorded closed segment is simply appended.
	rec := l.day(st, act.DriverID, dayKey(act.StartTime))
	if rec.State == domain.DayFinalized {
		metrics.ActivitiesRejected.Add(1)
		return nil, ErrDayFinalized
	}
	if st.open != nil && st.open.Type == act.Type && st.open.StartTime.Equal(act.StartTime) {
		st.open = nil
		for i := len(rec.Activities) - 1; i >= 0; i-- {
			if rec.Activities[i].EndTime == nil && rec.Activities[i].Type == act.Type {
				rec.Activities = append(rec.Activities[:i], rec.Activities[i+1:]...)
				break
			}
		}
	}
	rec.Activities = append(rec.Activities, act)

	d := act.Duration()
	switch act.Type {
	case domain.ActivityDriving:
		rec.TotalDriving += d
		rec.TotalWork += d // work includes driving, counted once
		st.continuous += d
	case domain.ActivityOtherWork:
		rec.TotalWork += d
	case domain.ActivityBreak:
		rec.TotalBreak += d
		st.continuous = 0
	case domain.ActivityDailyRest:
		rec.TotalRest += d
		st.continuous = 0
	}

	rec.State = domain.DayInProgress
	rec.ContinuousDriving = st.continuous
	rec.Compliance = compliance.ClassifyDay(rec, l.thresholds)
	metrics.ActivitiesRecorded.Add(1)
	return l.snapshot(rec), nil
}

func (l *Ledger) day(st *driverState, driverID, key string) *domain.DailyRecord {
	rec, ok := st.days[key]
	if !ok {
		rec = &domain.DailyRecord{
			DriverID: driverID,
			Date:     key,
			State:    domain.DayNoData,
		}
		st.days[key] = rec
	}
	return rec
}

// finalizeDaysBefore transitions every day strictly before cutoff
// (YYYY-MM-DD) to finalized, freezing its compliance and handing it to the
// day store. A day whose open segment has not been closed yet is left in
// progress: a rest spanning midnight still belongs to the day it started
// in, and must be counted before that day is judged.
func (l *Ledger) finalizeDaysBefore(ctx context.Context, driverID string, st *driverState, cutoff string) {
	for key, rec := range st.days {
		if key >= cutoff || rec.State == domain.DayFinalized {
			continue
		}
		if st.open != nil && dayKey(st.open.StartTime) == key {
			continue
		}
		rec.State = domain.DayFinalized
		rec.Compliance = compliance.ClassifyDay(rec, l.thresholds)
		if l.days != nil {
			if err := l.days.SaveDailyRecord(ctx, rec); err != nil {
				l.log.Error("daily record save failed",
					"driver_id", driverID, "date", key, "error", err)
			}
		}
	}
}

func (l *Ledger) snapshot(rec *domain.DailyRecord) *domain.DailyRecord {
	out := *rec
	out.Activities = append([]domain.DriverActivity(nil), rec.Activities...)
	return &out
}

// ContinuousDriving reports the driver's accumulated driving since the last
// qualifying break or rest, and the margin left before the mandatory break.
func (l *Ledger) ContinuousDriving(driverID string) (accumulated, untilBreak time.Duration) {
	st := l.driver(driverID)
	st.mu.Lock()
	defer st.mu.Unlock()
	accumulated = st.continuous
	max := l.thresholds.MaxContinuousDriving.D()
	if accumulated < max {
		untilBreak = max - accumulated
	}
	return accumulated, untilBreak
}

// DailySummary returns the record for one calendar day. Absence is a valid
// state reported as ErrNoRecord, never a failure.
func (l *Ledger) DailySummary(ctx context.Context, driverID, date string) (*domain.DailyRecord, error) {
	st := l.driver(driverID)
	st.mu.Lock()
	defer st.mu.Unlock()

	l.finalizeDaysBefore(ctx, driverID, st, dayKey(l.clock.Now()))

	rec, ok := st.days[date]
	if !ok {
		return nil, ErrNoRecord
	}
	return l.snapshot(rec), nil
}

// WeeklySummary aggregates the seven days starting at weekStart
// (YYYY-MM-DD). The weekly compliance check is the daily pattern over a
// wider window.
func (l *Ledger) WeeklySummary(ctx context.Context, driverID, weekStart string) (*domain.WeeklySummary, error) {
	start, err := time.ParseInLocation("2006-01-02", weekStart, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid week start %q: %w", weekStart, err)
	}

	st := l.driver(driverID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := l.clock.Now()
	l.finalizeDaysBefore(ctx, driverID, st, dayKey(now))

	week := &domain.WeeklySummary{DriverID: driverID, WeekStart: weekStart}
	found := false
	for i := 0; i < 7; i++ {
		key := dayKey(start.AddDate(0, 0, i))
		rec, ok := st.days[key]
		if !ok {
			continue
		}
		found = true
		week.TotalDriving += rec.TotalDriving
		week.TotalWork += rec.TotalWork
		week.TotalRest += rec.TotalRest
		week.Days = append(week.Days, *l.snapshot(rec))
	}
	if !found {
		return nil, ErrNoRecord
	}

	complete := dayKey(now) > dayKey(start.AddDate(0, 0, 6))
	week.Compliance = compliance.ClassifyWeek(week, l.thresholds, complete)
	return week, nil
}

// BiweeklyDriving sums driving over the week starting at weekStart and the
// one before it, classified against the two-week cap.
func (l *Ledger) BiweeklyDriving(ctx context.Context, driverID, weekStart string) (time.Duration, domain.ComplianceResult, error) {
	start, err := time.ParseInLocation("2006-01-02", weekStart, time.UTC)
	if err != nil {
		return 0, domain.ComplianceResult{}, fmt.Errorf("invalid week start %q: %w", weekStart, err)
	}

	st := l.driver(driverID)
	st.mu.Lock()
	defer st.mu.Unlock()

	var total time.Duration
	for i := -7; i < 7; i++ {
		if rec, ok := st.days[dayKey(start.AddDate(0, 0, i))]; ok {
			total += rec.TotalDriving
		}
	}
	return total, compliance.ClassifyBiweek(total, l.thresholds), nil
}
