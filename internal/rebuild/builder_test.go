package rebuild

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"addr-hierarchy/internal/config"
	"addr-hierarchy/internal/hierarchy"
	"addr-hierarchy/internal/logger"
	"addr-hierarchy/internal/migrate"
	"addr-hierarchy/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func yr(v int) *int      { return &v }
func id(v int64) *int64 { return &v }

type memSource struct {
	places []hierarchy.Place
	edges  []hierarchy.Edge
	err    error
}

func (m *memSource) LoadPlaces(context.Context) ([]hierarchy.Place, error) {
	return append([]hierarchy.Place(nil), m.places...), m.err
}

func (m *memSource) LoadEdges(context.Context) ([]hierarchy.Edge, error) { return m.edges, nil }

type memSink struct {
	rows    []hierarchy.AddressView
	calls   int
	err     error
	partial int64
}

func (m *memSink) Replace(_ context.Context, rows []hierarchy.AddressView) (int64, error) {
	m.calls++
	if m.err != nil {
		return m.partial, m.err
	}
	m.rows = rows
	return int64(len(rows)), nil
}

// 將樂縣 → 南劍州 (960-1300) → 福建路; 1301 以后隶属未知
func fujian() *memSource {
	return &memSource{
		places: []hierarchy.Place{
			{ID: 30, Name: "Fujian Lu", NameChn: "福建路", FirstYear: yr(900), LastYear: yr(1400)},
			{ID: 1, Name: "Jiangle", NameChn: "將樂", FirstYear: yr(960), LastYear: yr(1911)},
			{ID: 2, Name: "Nanjian", NameChn: "南劍州", FirstYear: yr(900), LastYear: yr(1300)},
			{ID: 40, Name: "No span", NameChn: "無年"},
			{ID: 41, Name: "Inverted", FirstYear: yr(1500), LastYear: yr(1400)},
		},
		edges: []hierarchy.Edge{
			{ChildID: 1, ParentID: id(2), FirstYear: yr(960), LastYear: yr(1300)},
			{ChildID: 2, ParentID: id(30), FirstYear: yr(900), LastYear: yr(1400)},
			{ChildID: 1, ParentID: id(0)},
			{ChildID: 1, ParentID: id(99)},
		},
	}
}

func TestRun_Report(t *testing.T) {
	sink := &memSink{}
	b := &Builder{Source: fujian(), Sink: sink, Log: logger.Discard(), Explain: []int64{1, 40, 77}}

	rep, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 5, rep.PlacesTotal)
	assert.Equal(t, 3, rep.PlacesProcessed)
	assert.Equal(t, 2, rep.PlacesSkipped)
	assert.Equal(t, map[string]int{"span_missing": 1, "span_inverted": 1}, rep.SkipReasons)
	assert.Equal(t, 4, rep.EdgesTotal)
	assert.Equal(t, 2, rep.EdgesCleaned)
	assert.Equal(t, 1, rep.EdgesRejected[string(hierarchy.RejectParentUnresolved)])
	assert.Equal(t, 1, rep.EdgesRejected[string(hierarchy.RejectParentMissing)])
	assert.Equal(t, int64(len(sink.rows)), rep.RowsWritten)
	assert.Equal(t, rep.Segments, len(sink.rows))
	assert.Equal(t, rep.Segments, rep.GapSegments)
	assert.Empty(t, rep.Failure)
	assert.False(t, rep.FinishedAt.Before(rep.StartedAt))

	// 1: [960,1300] 南劍州 > 福建路, [1301,1911] 未知; 2: [900,1300] 福建路; 30: [900,1400] 未知
	require.Len(t, sink.rows, 4)
	assert.Equal(t, int64(1), sink.rows[0].PlaceID)
	assert.Equal(t, 960, sink.rows[0].BelongsFirst)
	assert.Equal(t, "南劍州", *sink.rows[0].Belongs[0].NameChn)
	assert.Equal(t, "福建路", *sink.rows[0].Belongs[1].NameChn)
	assert.Equal(t, 1301, sink.rows[1].BelongsFirst)
	assert.Nil(t, sink.rows[1].Belongs[0].ID)
	assert.Equal(t, int64(2), sink.rows[2].PlaceID)
	assert.Equal(t, int64(30), sink.rows[3].PlaceID)
}

func TestRun_SourceFailure(t *testing.T) {
	src := fujian()
	src.err = errors.New("no such table: ADDR_CODES")
	sink := &memSink{}

	rep, err := (&Builder{Source: src, Sink: sink, Log: logger.Discard()}).Run(context.Background())

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageSource, se.Stage)
	assert.Equal(t, StageSource, rep.Failure)
	assert.Zero(t, sink.calls)
}

func TestRun_SinkFailure(t *testing.T) {
	sink := &memSink{err: errors.New("disk full"), partial: 3}

	rep, err := (&Builder{Source: fujian(), Sink: sink, Log: logger.Discard()}).Run(context.Background())

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageSink, se.Stage)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, StageSink, rep.Failure)
	assert.Equal(t, 1, sink.calls)
	assert.Zero(t, rep.RowsWritten, "rolled back rows are not reported as written")
}

// brokenAt：对 bad 返回覆盖缺口，其余地址整段输出
func brokenAt(bad int64) func(hierarchy.Place) ([]hierarchy.Segment, error) {
	return func(p hierarchy.Place) ([]hierarchy.Segment, error) {
		span, ok := p.Span()
		if !ok {
			return nil, hierarchy.ErrInvalidSpan
		}
		segs := []hierarchy.Segment{{PlaceID: p.ID, Interval: span}}
		if p.ID == bad {
			segs[0].End--
		}
		if err := hierarchy.Verify(p.ID, span, segs); err != nil {
			return nil, err
		}
		return segs, nil
	}
}

func TestRun_InvariantViolationLeavesSinkUntouched(t *testing.T) {
	for _, workers := range []int{1, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			sink := &memSink{}
			b := &Builder{Source: dense(200), Sink: sink, Workers: workers, Log: logger.Discard(), Segment: brokenAt(137)}

			rep, err := b.Run(context.Background())

			var ie *hierarchy.InvariantError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, int64(137), ie.PlaceID)
			assert.Zero(t, sink.calls)
			require.NotNil(t, rep)
			assert.Equal(t, StageSegment, rep.Failure)
			assert.Equal(t, int64(137), rep.FailedPlace)
			assert.Zero(t, rep.RowsWritten)
		})
	}
}

func TestRun_CustomSegmentStep(t *testing.T) {
	sink := &memSink{}
	rep, err := (&Builder{Source: dense(50), Sink: sink, Workers: 4, Log: logger.Discard(), Segment: brokenAt(-1)}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, rep.Segments)
	assert.Len(t, sink.rows, 50)
}

func TestRun_CancelledBeforeSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &memSink{}

	_, err := (&Builder{Source: fujian(), Sink: sink, Log: logger.Discard()}).Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sink.calls)
}

// dense：每个地址在多个年份区间内有多个上级，层级之间交错
func dense(n int) *memSource {
	src := &memSource{}
	for i := 1; i <= n; i++ {
		src.places = append(src.places, hierarchy.Place{
			ID: int64(i), NameChn: fmt.Sprintf("地%d", i), FirstYear: yr(900 + i%50), LastYear: yr(1400 + i%70),
		})
	}
	for i := 1; i <= n; i++ {
		for k := 1; k <= 3; k++ {
			parent := int64((i*7+k*13)%n + 1)
			start := 900 + (i*k*31)%400
			src.edges = append(src.edges, hierarchy.Edge{
				ChildID: int64(i), ParentID: id(parent), FirstYear: yr(start), LastYear: yr(start + 40 + (i+k)%150),
			})
		}
	}
	return src
}

func TestRun_WorkersDeterministic(t *testing.T) {
	seq := &memSink{}
	_, err := (&Builder{Source: dense(300), Sink: seq, Workers: 1, Log: logger.Discard()}).Run(context.Background())
	require.NoError(t, err)

	par := &memSink{}
	rep, err := (&Builder{Source: dense(300), Sink: par, Workers: 8, Log: logger.Discard()}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 300, rep.PlacesProcessed)
	require.Equal(t, len(seq.rows), len(par.rows))
	assert.Equal(t, seq.rows, par.rows)
	for i := 1; i < len(par.rows); i++ {
		prev, cur := par.rows[i-1], par.rows[i]
		if prev.PlaceID == cur.PlaceID {
			assert.Equal(t, prev.BelongsLast+1, cur.BelongsFirst, "place %d", cur.PlaceID)
		} else {
			assert.Less(t, prev.PlaceID, cur.PlaceID)
		}
	}
}

func TestRun_EndToEndSQLite(t *testing.T) {
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()
	ctx := context.Background()
	require.NoError(t, migrate.EnsureSchema(ctx, db, config.DriverSQLite))

	src := fujian()
	for _, p := range src.places {
		db.MustExec(`INSERT INTO ADDR_CODES (c_addr_id, c_name, c_name_chn, c_firstyear, c_lastyear) VALUES (?,?,?,?,?)`,
			p.ID, p.Name, p.NameChn, p.FirstYear, p.LastYear)
	}
	for _, e := range src.edges {
		db.MustExec(`INSERT INTO ADDR_BELONGS_DATA VALUES (?,?,?,?)`, e.ChildID, e.ParentID, e.FirstYear, e.LastYear)
	}

	st := store.AttachDB(db, config.DriverSQLite)
	rep, err := (&Builder{Source: st, Sink: st, Workers: 2, Log: logger.Discard()}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rep.RowsWritten)

	rows, err := st.PlaceRows(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 960, rows[0].BelongsFirst)
	assert.Equal(t, 1300, rows[0].BelongsLast)
	assert.Equal(t, int64(30), *rows[0].Belongs[1].ID)
	assert.Nil(t, rows[0].Belongs[2].ID)
	assert.Equal(t, 1301, rows[1].BelongsFirst)
	assert.Equal(t, 1911, rows[1].BelongsLast)

	count, err := st.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestChainText(t *testing.T) {
	index := hierarchy.NewPlaceIndex([]hierarchy.Place{{ID: 2, NameChn: "南劍州"}})
	var c hierarchy.Chain
	assert.Equal(t, "-", chainText(c, index))
	c = c.With(hierarchy.Slot{Level: 1, AncestorID: 2})
	c = c.With(hierarchy.Slot{Level: 2, AncestorID: 30})
	assert.Equal(t, "1:南劍州 > 2:30", chainText(c, index))
}
