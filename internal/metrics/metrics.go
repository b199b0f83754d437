package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	FixesReceived   atomic.Int64
	FixesRejected   atomic.Int64
	ResolutionMiss  atomic.Int64
	TripAnomalies   atomic.Int64
	QueueDrops      atomic.Int64
	RuleFailures    atomic.Int64
	AlertsEmitted   atomic.Int64
	AlertsSuppress  atomic.Int64
	PublishFailures atomic.Int64

	ActivitiesRecorded atomic.Int64
	ActivitiesRejected atomic.Int64

	AuthRejections atomic.Int64

	ArchiveWriteSuccess  atomic.Int64
	ArchiveWriteFailures atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "engine_fixes_received_total %d\n", FixesReceived.Load())
	fmt.Fprintf(w, "engine_fixes_rejected_total %d\n", FixesRejected.Load())
	fmt.Fprintf(w, "engine_resolution_miss_total %d\n", ResolutionMiss.Load())
	fmt.Fprintf(w, "engine_trip_anomalies_total %d\n", TripAnomalies.Load())
	fmt.Fprintf(w, "engine_queue_drops_total %d\n", QueueDrops.Load())
	fmt.Fprintf(w, "engine_rule_failures_total %d\n", RuleFailures.Load())
	fmt.Fprintf(w, "engine_alerts_emitted_total %d\n", AlertsEmitted.Load())
	fmt.Fprintf(w, "engine_alerts_suppressed_total %d\n", AlertsSuppress.Load())
	fmt.Fprintf(w, "engine_publish_failures_total %d\n", PublishFailures.Load())
	fmt.Fprintf(w, "engine_activities_recorded_total %d\n", ActivitiesRecorded.Load())
	fmt.Fprintf(w, "engine_activities_rejected_total %d\n", ActivitiesRejected.Load())
	fmt.Fprintf(w, "engine_auth_rejections_total %d\n", AuthRejections.Load())
	fmt.Fprintf(w, "engine_archive_write_success_total %d\n", ArchiveWriteSuccess.Load())
	fmt.Fprintf(w, "engine_archive_write_failures_total %d\n", ArchiveWriteFailures.Load())
}
