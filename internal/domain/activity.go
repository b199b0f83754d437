package domain

import "time"

type ActivityType string

const (
	ActivityDriving   ActivityType = "driving"
	ActivityOtherWork ActivityType = "other_work"
	ActivityBreak     ActivityType = "break"
	ActivityDailyRest ActivityType = "daily_rest"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityDriving, ActivityOtherWork, ActivityBreak, ActivityDailyRest:
		return true
	}
	return false
}

// DriverActivity is one tachograph-style activity segment. A nil EndTime
// means the activity is still open; closing it is the only mutation and
// triggers ledger recomputation.
type DriverActivity struct {
	ID        string
	DriverID  string
	Type      ActivityType
	StartTime time.Time
	EndTime   *time.Time
	VehicleID string
}

func (a DriverActivity) Closed() bool {
	return a.EndTime != nil
}

func (a DriverActivity) Duration() time.Duration {
	if a.EndTime == nil {
		return 0
	}
	return a.EndTime.Sub(a.StartTime)
}

type ComplianceStatus string

const (
	StatusCompliant ComplianceStatus = "compliant"
	StatusViolation ComplianceStatus = "violation"
)

type ViolationType string

const (
	ExceededDailyDriving      ViolationType = "EXCEEDED_DAILY_DRIVING"
	ExceededContinuousDriving ViolationType = "EXCEEDED_CONTINUOUS_DRIVING"
	ExceededDailyWork         ViolationType = "EXCEEDED_DAILY_WORK"
	InsufficientDailyRest     ViolationType = "INSUFFICIENT_DAILY_REST"
	ExceededWeeklyDriving     ViolationType = "EXCEEDED_WEEKLY_DRIVING"
	ExceededBiweeklyDriving   ViolationType = "EXCEEDED_BIWEEKLY_DRIVING"
	ExceededWeeklyWork        ViolationType = "EXCEEDED_WEEKLY_WORK"
	InsufficientWeeklyRest    ViolationType = "INSUFFICIENT_WEEKLY_REST"
)

type Violation struct {
	Type     ViolationType
	Severity AlertSeverity
	Message  string
}

type ComplianceResult struct {
	Status     ComplianceStatus
	Violations []Violation
}

type DayState string

const (
	DayNoData     DayState = "no_data"
	DayInProgress DayState = "in_progress"
	DayFinalized  DayState = "finalized"
)

// DailyRecord is the derived per-driver, per-calendar-day ledger view.
// TotalWork includes TotalDriving; driving time is never counted twice.
type DailyRecord struct {
	DriverID string
	Date     string // YYYY-MM-DD, UTC calendar day

	TotalDriving time.Duration
	TotalWork    time.Duration
	TotalRest    time.Duration
	TotalBreak   time.Duration

	// ContinuousDriving is accumulated driving since the last closed
	// break or daily rest.
	ContinuousDriving time.Duration

	Activities []DriverActivity
	State      DayState
	Compliance ComplianceResult
}

// WeeklySummary aggregates the contributing days' totals over one
// Monday-anchored week.
type WeeklySummary struct {
	DriverID  string
	WeekStart string // YYYY-MM-DD

	TotalDriving time.Duration
	TotalWork    time.Duration
	TotalRest    time.Duration

	Days       []DailyRecord
	Compliance ComplianceResult
}
