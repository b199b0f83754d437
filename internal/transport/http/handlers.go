// Package http exposes the engine's narrow contracts: fix ingestion,
// activity recording and the read-only position and ledger queries.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
	"github.com/chevastian666/sistrau-sub000/internal/ledger"
	"github.com/chevastian666/sistrau-sub000/internal/pipeline"
	"github.com/chevastian666/sistrau-sub000/internal/position"
)

// ActivitySink receives every accepted activity segment, append-only.
type ActivitySink interface {
	InsertActivity(ctx context.Context, act *domain.DriverActivity) error
}

type Handlers struct {
	ingestor   *pipeline.Ingestor
	ledger     *ledger.Ledger
	positions  position.Store
	activities ActivitySink // nil disables persistence
	log        *slog.Logger
}

func NewHandlers(ing *pipeline.Ingestor, led *ledger.Ledger, positions position.Store, log *slog.Logger) *Handlers {
	return &Handlers{ingestor: ing, ledger: led, positions: positions, log: log}
}

func (h *Handlers) WithActivitySink(sink ActivitySink) *Handlers {
	h.activities = sink
	return h
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /telemetry", h.submitFix)
	mux.HandleFunc("POST /activities", h.recordActivity)
	mux.HandleFunc("GET /vehicles/{id}/position", h.latestPosition)
	mux.HandleFunc("GET /drivers/{id}/days/{date}", h.dailySummary)
	mux.HandleFunc("GET /drivers/{id}/weeks/{start}", h.weeklySummary)
	mux.HandleFunc("GET /drivers/{id}/biweeks/{start}", h.biweeklyDriving)
	mux.HandleFunc("GET /drivers/{id}/continuous", h.continuousDriving)
}

type fixRequest struct {
	DeviceID   string    `json:"device_id"`
	Timestamp  time.Time `json:"timestamp"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKmh   float64   `json:"speed_kmh"`
	HeadingDeg float64   `json:"heading_deg"`
	AltitudeM  float64   `json:"altitude_m"`
	Satellites int       `json:"satellites"`
	HDOP       float64   `json:"hdop"`
}

func (h *Handlers) submitFix(w http.ResponseWriter, r *http.Request) {
	var req fixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	fix := &domain.GPSFix{
		Timestamp:  req.Timestamp,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		SpeedKmh:   req.SpeedKmh,
		HeadingDeg: req.HeadingDeg,
		AltitudeM:  req.AltitudeM,
		Satellites: req.Satellites,
		HDOP:       req.HDOP,
	}
	if err := h.ingestor.SubmitFix(r.Context(), req.DeviceID, fix); err != nil {
		// Surfaced for logging only; the device cannot retry meaningfully.
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type activityRequest struct {
	DriverID  string     `json:"driver_id"`
	Type      string     `json:"type"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	VehicleID string     `json:"vehicle_id,omitempty"`
}

func (h *Handlers) recordActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	act := domain.DriverActivity{
		ID:        uuid.New().String(),
		DriverID:  req.DriverID,
		Type:      domain.ActivityType(req.Type),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		VehicleID: req.VehicleID,
	}

	rec, err := h.ledger.RecordActivity(r.Context(), act)
	if err != nil {
		if errors.Is(err, ledger.ErrDayFinalized) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.activities != nil {
		if err := h.activities.InsertActivity(r.Context(), &act); err != nil {
			h.log.Error("activity persist failed", "driver_id", act.DriverID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, dailyRecordDTO(rec))
}

func (h *Handlers) latestPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.positions.Latest(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, position.ErrNoPosition) {
			writeError(w, http.StatusNotFound, "no recent position")
			return
		}
		h.log.Error("position query failed", "vehicle_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "position store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicle_id": pos.VehicleID,
		"lat":        pos.Latitude,
		"lng":        pos.Longitude,
		"speed_kmh":  pos.SpeedKmh,
		"timestamp":  pos.Timestamp.UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) dailySummary(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ledger.DailySummary(r.Context(), r.PathValue("id"), r.PathValue("date"))
	if err != nil {
		if errors.Is(err, ledger.ErrNoRecord) {
			writeError(w, http.StatusNotFound, "no record for day")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dailyRecordDTO(rec))
}

func (h *Handlers) weeklySummary(w http.ResponseWriter, r *http.Request) {
	week, err := h.ledger.WeeklySummary(r.Context(), r.PathValue("id"), r.PathValue("start"))
	if err != nil {
		if errors.Is(err, ledger.ErrNoRecord) {
			writeError(w, http.StatusNotFound, "no records for week")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	days := make([]map[string]any, 0, len(week.Days))
	for i := range week.Days {
		days = append(days, dailyRecordDTO(&week.Days[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"driver_id":         week.DriverID,
		"week_start":        week.WeekStart,
		"total_driving_sec": int64(week.TotalDriving.Seconds()),
		"total_work_sec":    int64(week.TotalWork.Seconds()),
		"total_rest_sec":    int64(week.TotalRest.Seconds()),
		"compliance":        complianceDTO(week.Compliance),
		"days":              days,
	})
}

// biweeklyDriving reports driving summed over the week starting at {start}
// and the week before it, against the two-week cap.
func (h *Handlers) biweeklyDriving(w http.ResponseWriter, r *http.Request) {
	total, compliance, err := h.ledger.BiweeklyDriving(r.Context(), r.PathValue("id"), r.PathValue("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"driver_id":         r.PathValue("id"),
		"week_start":        r.PathValue("start"),
		"total_driving_sec": int64(total.Seconds()),
		"compliance":        complianceDTO(compliance),
	})
}

// continuousDriving reports the live counter behind the mandatory-break
// rule: driving accumulated since the last qualifying break or rest, and
// how much margin remains.
func (h *Handlers) continuousDriving(w http.ResponseWriter, r *http.Request) {
	accumulated, untilBreak := h.ledger.ContinuousDriving(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"driver_id":              r.PathValue("id"),
		"continuous_driving_sec": int64(accumulated.Seconds()),
		"until_break_sec":        int64(untilBreak.Seconds()),
	})
}

func dailyRecordDTO(rec *domain.DailyRecord) map[string]any {
	return map[string]any{
		"driver_id":              rec.DriverID,
		"date":                   rec.Date,
		"state":                  string(rec.State),
		"total_driving_sec":      int64(rec.TotalDriving.Seconds()),
		"total_work_sec":         int64(rec.TotalWork.Seconds()),
		"total_rest_sec":         int64(rec.TotalRest.Seconds()),
		"total_break_sec":        int64(rec.TotalBreak.Seconds()),
		"continuous_driving_sec": int64(rec.ContinuousDriving.Seconds()),
		"activities":             len(rec.Activities),
		"compliance":             complianceDTO(rec.Compliance),
	}
}

func complianceDTO(c domain.ComplianceResult) map[string]any {
	violations := make([]map[string]string, 0, len(c.Violations))
	for _, v := range c.Violations {
		violations = append(violations, map[string]string{
			"type":     string(v.Type),
			"severity": string(v.Severity),
			"message":  v.Message,
		})
	}
	return map[string]any{
		"status":     string(c.Status),
		"violations": violations,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
