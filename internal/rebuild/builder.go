// 包 rebuild：一次完整重建的编排（清洗 → 切分 → 展开 → 整表替换），以及周期调度与分布式锁
package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"addr-hierarchy/internal/hierarchy"
	"addr-hierarchy/internal/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Source：地址与隶属声明的读取端
type Source interface {
	LoadPlaces(ctx context.Context) ([]hierarchy.Place, error)
	LoadEdges(ctx context.Context) ([]hierarchy.Edge, error)
}

// Sink：ADDRESSES 的写入端；Replace 必须整体成功或整体回滚
type Sink interface {
	Replace(ctx context.Context, rows []hierarchy.AddressView) (int64, error)
}

const (
	StageSource  = "source"
	StageSegment = "segment"
	StageSink    = "sink"
	StageLock    = "lock"
)

// StageError：标明失败发生的阶段（读取、切分、写入、加锁），供命令行映射退出码
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Builder：重建编排器
// 约束：Workers <= 1 时顺序切分；大于 1 时以 errgroup 限流并发，结果按地址下标回填，输出顺序与顺序执行一致。
type Builder struct {
	Source  Source
	Sink    Sink
	Workers int
	Log     *slog.Logger
	// Explain 中的地址在切分完成后逐段打印，用于人工核对
	Explain []int64
	// Segment 为空时使用按清洗结果构建的 hierarchy.Segmenter
	Segment func(hierarchy.Place) ([]hierarchy.Segment, error)
}

// Run：执行一次完整重建
// 背景：任何地址切分违反不变量时立即中止，目标表保持上一次的完整结果；跨度无效的地址跳过并计入报告。
// 返回：失败时同时返回已填充的报告（Failure 字段说明阶段）与错误
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	l := b.Log
	if l == nil {
		l = logger.L()
	}
	rep := &Report{
		RunID:         uuid.NewString(),
		StartedAt:     time.Now(),
		SkipReasons:   map[string]int{},
		EdgesRejected: map[string]int{},
	}
	l = l.With("run_id", rep.RunID)
	l.Info("rebuild_start", "workers", b.workers())

	fail := func(stage string, err error) (*Report, error) {
		rep.FinishedAt = time.Now()
		rep.Failure = stage
		var ie *hierarchy.InvariantError
		if errors.As(err, &ie) {
			rep.FailedPlace = ie.PlaceID
			l.Error("rebuild_invariant_violation", "place", ie.PlaceID, "detail", ie.Detail)
			return rep, err
		}
		l.Error("rebuild_failed", "stage", stage, "err", err)
		return rep, &StageError{Stage: stage, Err: err}
	}

	places, err := b.Source.LoadPlaces(ctx)
	if err != nil {
		return fail(StageSource, errors.Wrap(err, "load places"))
	}
	edges, err := b.Source.LoadEdges(ctx)
	if err != nil {
		return fail(StageSource, errors.Wrap(err, "load edges"))
	}
	sort.SliceStable(places, func(i, j int) bool { return places[i].ID < places[j].ID })
	rep.PlacesTotal = len(places)
	rep.EdgesTotal = len(edges)

	index := hierarchy.NewPlaceIndex(places)
	cleaned := hierarchy.Clean(index, edges, l)
	rep.EdgesCleaned = cleaned.Edges.Len()
	rep.EdgesDuplicate = cleaned.Duplicates
	for reason, n := range cleaned.RejectCounts() {
		rep.EdgesRejected[string(reason)] = n
		l.Info("edges_rejected", "reason", reason, "count", n)
	}

	segment := b.Segment
	if segment == nil {
		segment = hierarchy.NewSegmenter(cleaned.Edges).Segment
	}
	results, err := b.segmentAll(ctx, segment, places)
	if err != nil {
		return fail(StageSegment, err)
	}

	var rows []hierarchy.AddressView
	for i, segs := range results {
		if segs == nil {
			reason := skipReason(places[i])
			rep.PlacesSkipped++
			rep.SkipReasons[reason]++
			l.Warn("place_skipped", "place", places[i].ID, "reason", reason)
			continue
		}
		rep.PlacesProcessed++
		for _, s := range segs {
			rep.Segments++
			if s.Gap() {
				rep.GapSegments++
			}
		}
		rows = append(rows, hierarchy.MaterializeAll(segs, index)...)
	}
	b.explain(l, index, places, results)

	if err := ctx.Err(); err != nil {
		return fail(StageSegment, err)
	}
	n, err := b.Sink.Replace(ctx, rows)
	if err != nil {
		return fail(StageSink, err)
	}
	rep.RowsWritten = n
	rep.FinishedAt = time.Now()
	rep.Log(l)
	return rep, nil
}

func (b *Builder) workers() int {
	if b.Workers < 1 {
		return 1
	}
	return b.Workers
}

// segmentAll：逐个地址切分；跳过的地址在结果中为 nil
func (b *Builder) segmentAll(ctx context.Context, segment func(hierarchy.Place) ([]hierarchy.Segment, error), places []hierarchy.Place) ([][]hierarchy.Segment, error) {
	results := make([][]hierarchy.Segment, len(places))
	one := func(i int) error {
		segs, err := segment(places[i])
		if errors.Is(err, hierarchy.ErrInvalidSpan) {
			return nil
		}
		if err != nil {
			return err
		}
		results[i] = segs
		return nil
	}

	if b.workers() == 1 {
		for i := range places {
			if i%5000 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if err := one(i); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers())
	for i := range places {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error { return one(i) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func skipReason(p hierarchy.Place) string {
	if p.FirstYear == nil || p.LastYear == nil {
		return "span_missing"
	}
	return "span_inverted"
}

func (b *Builder) explain(l *slog.Logger, index hierarchy.PlaceIndex, places []hierarchy.Place, results [][]hierarchy.Segment) {
	if len(b.Explain) == 0 {
		return
	}
	want := make(map[int64]bool, len(b.Explain))
	for _, id := range b.Explain {
		want[id] = true
	}
	for i, p := range places {
		if !want[p.ID] {
			continue
		}
		delete(want, p.ID)
		if results[i] == nil {
			l.Info("explain_skipped", "place", p.ID, "name", p.NameChn)
			continue
		}
		for _, s := range results[i] {
			l.Info("explain_segment", "place", p.ID, "name", p.NameChn, "years", s.Interval.String(), "chain", chainText(s.Chain, index))
		}
	}
	for id := range want {
		l.Info("explain_missing", "place", id)
	}
}

// chainText：把上级链打印为 “1:南劍州 > 2:福建路”，缺失层级不打印
func chainText(c hierarchy.Chain, index hierarchy.PlaceIndex) string {
	out := ""
	for lvl := 1; lvl <= hierarchy.MaxDepth; lvl++ {
		s := c.At(lvl)
		if s == nil {
			break
		}
		name := index[s.AncestorID].NameChn
		if name == "" {
			name = fmt.Sprint(s.AncestorID)
		}
		if out != "" {
			out += " > "
		}
		out += fmt.Sprintf("%d:%s", lvl, name)
	}
	if out == "" {
		return "-"
	}
	return out
}
