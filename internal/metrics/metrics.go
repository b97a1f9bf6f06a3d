package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry：重建任务专用注册表；批处理进程结束前整体推送到 Pushgateway
var Registry = prometheus.NewRegistry()

var (
	PlacesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "addr_rebuild_places",
		Help: "Places seen by the last rebuild, by outcome (processed, skipped)",
	}, []string{"outcome"})
	SkippedPlaces = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "addr_rebuild_skipped_places",
		Help: "Places skipped by the last rebuild, by reason",
	}, []string{"reason"})
	Segments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "addr_rebuild_segments",
		Help: "Time segments emitted by the last rebuild",
	})
	PartialSegments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "addr_rebuild_partial_segments",
		Help: "Segments whose chain stops before level 5 in the last rebuild",
	})
	EdgesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "addr_rebuild_edges",
		Help: "Raw containment edges read by the last rebuild",
	})
	EdgesRejected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "addr_rebuild_edges_rejected",
		Help: "Containment edges rejected by the last rebuild, by reason",
	}, []string{"reason"})
	RowsWritten = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "addr_rebuild_rows_written",
		Help: "Rows written to ADDRESSES by the last successful rebuild",
	})
	Duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "addr_rebuild_duration_seconds",
		Help:    "Rebuild wall time in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})
	Failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "addr_rebuild_failures_total",
		Help: "Failed rebuilds by stage",
	}, []string{"stage"})
	LastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "addr_rebuild_last_success_timestamp_seconds",
		Help: "Unix time of the last successful rebuild",
	})
)

func init() {
	Registry.MustRegister(PlacesTotal)
	Registry.MustRegister(SkippedPlaces)
	Registry.MustRegister(Segments)
	Registry.MustRegister(PartialSegments)
	Registry.MustRegister(EdgesTotal)
	Registry.MustRegister(EdgesRejected)
	Registry.MustRegister(RowsWritten)
	Registry.MustRegister(Duration)
	Registry.MustRegister(Failures)
	Registry.MustRegister(LastSuccess)
}

// Snapshot：一次重建的计数，由 rebuild 包填充
type Snapshot struct {
	Processed, Skipped int
	SkipReasons        map[string]int
	Segments, Partial  int
	Edges              int
	Rejected           map[string]int
	Rows               int64
	Elapsed            time.Duration
	FinishedAt         time.Time
	FailedStage        string
}

// Observe：写入一次重建的结果；失败的重建只累计失败次数与耗时
func Observe(s Snapshot) {
	Duration.Observe(s.Elapsed.Seconds())
	if s.FailedStage != "" {
		Failures.WithLabelValues(s.FailedStage).Inc()
		return
	}
	PlacesTotal.WithLabelValues("processed").Set(float64(s.Processed))
	PlacesTotal.WithLabelValues("skipped").Set(float64(s.Skipped))
	SkippedPlaces.Reset()
	for reason, n := range s.SkipReasons {
		SkippedPlaces.WithLabelValues(reason).Set(float64(n))
	}
	Segments.Set(float64(s.Segments))
	PartialSegments.Set(float64(s.Partial))
	EdgesTotal.Set(float64(s.Edges))
	EdgesRejected.Reset()
	for reason, n := range s.Rejected {
		EdgesRejected.WithLabelValues(reason).Set(float64(n))
	}
	RowsWritten.Set(float64(s.Rows))
	LastSuccess.Set(float64(s.FinishedAt.Unix()))
}

// Push：推送到 Pushgateway；url 为空时不做任何事
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(Registry).PushContext(ctx)
}

// Handler：调度进程常驻时供 Prometheus 直接抓取
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
