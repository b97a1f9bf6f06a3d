package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve_Success(t *testing.T) {
	Observe(Snapshot{
		Processed:   10,
		Skipped:     2,
		SkipReasons: map[string]int{"span_inverted": 2},
		Segments:    31,
		Partial:     30,
		Edges:       50,
		Rejected:    map[string]int{"parent_missing": 4},
		Rows:        31,
		Elapsed:     2 * time.Second,
		FinishedAt:  time.Unix(1700000000, 0),
	})

	assert.Equal(t, float64(10), testutil.ToFloat64(PlacesTotal.WithLabelValues("processed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(SkippedPlaces.WithLabelValues("span_inverted")))
	assert.Equal(t, float64(4), testutil.ToFloat64(EdgesRejected.WithLabelValues("parent_missing")))
	assert.Equal(t, float64(31), testutil.ToFloat64(RowsWritten))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(LastSuccess))
}

func TestObserve_FailureOnlyCountsStage(t *testing.T) {
	before := testutil.ToFloat64(Failures.WithLabelValues("sink"))
	rows := testutil.ToFloat64(RowsWritten)

	Observe(Snapshot{FailedStage: "sink", Rows: 999})

	assert.Equal(t, before+1, testutil.ToFloat64(Failures.WithLabelValues("sink")))
	assert.Equal(t, rows, testutil.ToFloat64(RowsWritten))
}

func TestPush(t *testing.T) {
	require.NoError(t, Push(context.Background(), "", "job"))

	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, Push(context.Background(), srv.URL, "addr_rebuild"))
	assert.Equal(t, "/metrics/job/addr_rebuild", path)
	assert.NotEmpty(t, body)
}
