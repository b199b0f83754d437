package compliance

import (
	"fmt"
	"time"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
)

// exceedSeverity tiers an over-threshold violation: more than an hour over
// is critical.
func exceedSeverity(over time.Duration) domain.AlertSeverity {
	if over > time.Hour {
		return domain.SeverityCritical
	}
	return domain.SeverityHigh
}

func shortfallSeverity(short time.Duration) domain.AlertSeverity {
	if short > 2*time.Hour {
		return domain.SeverityCritical
	}
	return domain.SeverityHigh
}

// ClassifyDay evaluates one day's totals. Rest checks only apply once the
// calendar day has fully elapsed: an in-progress day has simply not had its
// rest yet.
func ClassifyDay(rec *domain.DailyRecord, th Thresholds) domain.ComplianceResult {
	var violations []domain.Violation

	if rec.TotalDriving > th.MaxDailyDriving.D() {
		over := rec.TotalDriving - th.MaxDailyDriving.D()
		violations = append(violations, domain.Violation{
			Type:     domain.ExceededDailyDriving,
			Severity: exceedSeverity(over),
			Message: fmt.Sprintf("daily driving %s exceeds maximum %s",
				rec.TotalDriving, th.MaxDailyDriving.D()),
		})
	}

	if rec.ContinuousDriving > th.MaxContinuousDriving.D() {
		violations = append(violations, domain.Violation{
			Type:     domain.ExceededContinuousDriving,
			Severity: domain.SeverityHigh,
			Message: fmt.Sprintf("continuous driving %s exceeds maximum %s without a %s break",
				rec.ContinuousDriving, th.MaxContinuousDriving.D(), th.MinBreak.D()),
		})
	}

	if rec.TotalWork > th.MaxDailyWork.D() {
		over := rec.TotalWork - th.MaxDailyWork.D()
		violations = append(violations, domain.Violation{
			Type:     domain.ExceededDailyWork,
			Severity: exceedSeverity(over),
			Message: fmt.Sprintf("daily work %s exceeds maximum %s",
				rec.TotalWork, th.MaxDailyWork.D()),
		})
	}

	if rec.State == domain.DayFinalized && rec.TotalRest < th.MinDailyRest.D() {
		short := th.MinDailyRest.D() - rec.TotalRest
		violations = append(violations, domain.Violation{
			Type:     domain.InsufficientDailyRest,
			Severity: shortfallSeverity(short),
			Message: fmt.Sprintf("daily rest %s below required %s",
				rec.TotalRest, th.MinDailyRest.D()),
		})
	}

	return result(violations)
}

// ClassifyWeek applies the same pattern over a wider window: the weekly
// aggregates are the sum of the contributing days' totals. complete is true
// once all seven days have elapsed; rest checks wait for that.
func ClassifyWeek(week *domain.WeeklySummary, th Thresholds, complete bool) domain.ComplianceResult {
	var violations []domain.Violation

	if week.TotalDriving > th.MaxWeeklyDriving.D() {
		over := week.TotalDriving - th.MaxWeeklyDriving.D()
		violations = append(violations, domain.Violation{
			Type:     domain.ExceededWeeklyDriving,
			Severity: exceedSeverity(over),
			Message: fmt.Sprintf("weekly driving %s exceeds maximum %s",
				week.TotalDriving, th.MaxWeeklyDriving.D()),
		})
	}

	if week.TotalWork > th.MaxWeeklyWork.D() {
		over := week.TotalWork - th.MaxWeeklyWork.D()
		violations = append(violations, domain.Violation{
			Type:     domain.ExceededWeeklyWork,
			Severity: exceedSeverity(over),
			Message: fmt.Sprintf("weekly work %s exceeds maximum %s",
				week.TotalWork, th.MaxWeeklyWork.D()),
		})
	}

	if complete && week.TotalRest < th.MinWeeklyRest.D() {
		short := th.MinWeeklyRest.D() - week.TotalRest
		violations = append(violations, domain.Violation{
			Type:     domain.InsufficientWeeklyRest,
			Severity: shortfallSeverity(short),
			Message: fmt.Sprintf("weekly rest %s below required %s",
				week.TotalRest, th.MinWeeklyRest.D()),
		})
	}

	return result(violations)
}

// ClassifyBiweek checks the two-week driving cap over a pair of
// consecutive weeks.
func ClassifyBiweek(driving time.Duration, th Thresholds) domain.ComplianceResult {
	var violations []domain.Violation
	if driving > th.MaxBiweeklyDriving.D() {
		over := driving - th.MaxBiweeklyDriving.D()
		violations = append(violations, domain.Violation{
			Type:     domain.ExceededBiweeklyDriving,
			Severity: exceedSeverity(over),
			Message: fmt.Sprintf("biweekly driving %s exceeds maximum %s",
				driving, th.MaxBiweeklyDriving.D()),
		})
	}
	return result(violations)
}

func result(violations []domain.Violation) domain.ComplianceResult {
	status := domain.StatusCompliant
	if len(violations) > 0 {
		status = domain.StatusViolation
	}
	return domain.ComplianceResult{Status: status, Violations: violations}
}
