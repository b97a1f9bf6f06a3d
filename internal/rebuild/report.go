package rebuild

import (
	"encoding/json"
	"log/slog"
	"time"

	"addr-hierarchy/internal/metrics"
)

// Report：一次重建的统计
type Report struct {
	RunID           string         `json:"run_id"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	PlacesTotal     int            `json:"places_total"`
	PlacesProcessed int            `json:"places_processed"`
	PlacesSkipped   int            `json:"places_skipped"`
	SkipReasons     map[string]int `json:"skip_reasons,omitempty"`
	Segments        int            `json:"segments"`
	GapSegments     int            `json:"gap_segments"`
	EdgesTotal      int            `json:"edges_total"`
	EdgesCleaned    int            `json:"edges_cleaned"`
	EdgesDuplicate  int            `json:"edges_duplicate"`
	EdgesRejected   map[string]int `json:"edges_rejected,omitempty"`
	RowsWritten     int64          `json:"rows_written"`
	Failure         string         `json:"failure,omitempty"`
	FailedPlace     int64          `json:"failed_place,omitempty"`
}

func (r *Report) Elapsed() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Log：输出一行汇总
func (r *Report) Log(l *slog.Logger) {
	l.Info("rebuild_done",
		"places", r.PlacesTotal,
		"processed", r.PlacesProcessed,
		"skipped", r.PlacesSkipped,
		"segments", r.Segments,
		"gap_segments", r.GapSegments,
		"edges", r.EdgesTotal,
		"edges_cleaned", r.EdgesCleaned,
		"rows", r.RowsWritten,
		"elapsed", r.Elapsed().String(),
	)
}

func (r *Report) JSON() ([]byte, error) { return json.Marshal(r) }

// Snapshot：转换为指标快照
func (r *Report) Snapshot() metrics.Snapshot {
	return metrics.Snapshot{
		Processed:   r.PlacesProcessed,
		Skipped:     r.PlacesSkipped,
		SkipReasons: r.SkipReasons,
		Segments:    r.Segments,
		Partial:     r.GapSegments,
		Edges:       r.EdgesTotal,
		Rejected:    r.EdgesRejected,
		Rows:        r.RowsWritten,
		Elapsed:     r.Elapsed(),
		FinishedAt:  r.FinishedAt,
		FailedStage: r.Failure,
	}
}
