package hierarchy

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidSpan 地址起止年缺失或倒置，按输入缺陷跳过
var ErrInvalidSpan = errors.New("place span missing or inverted")

// Segmenter：单个地址的时间切分器
// 背景：对地址存续区间按每一级候选上级的有效区间递归切分，缺失的覆盖以“未知”段显式保留而不插值。
// 约束：递归深度固定为 MaxDepth；Edges 只读，同一个 Segmenter 可被多个协程共享。
type Segmenter struct {
	Edges *EdgeIndex
}

func NewSegmenter(edges *EdgeIndex) *Segmenter { return &Segmenter{Edges: edges} }

// Segment：返回按起始年排序、恰好覆盖 place 存续区间的段
// 返回：跨度无效时返回 ErrInvalidSpan；切分结果违反覆盖不变量时返回 *InvariantError
func (s *Segmenter) Segment(place Place) ([]Segment, error) {
	span, ok := place.Span()
	if !ok {
		return nil, errors.Wrapf(ErrInvalidSpan, "place %d (%s-%s)", place.ID, yearText(place.FirstYear), yearText(place.LastYear))
	}
	var out []Segment
	emit := func(iv Interval, chain Chain) {
		out = append(out, Segment{PlaceID: place.ID, Interval: iv, Chain: chain})
	}
	s.decompose(place.ID, span, Chain{}, 1, emit)
	if err := Verify(place.ID, span, out); err != nil {
		return nil, err
	}
	return out, nil
}

// decompose：在 iv 内按 scope 的上级关系切分，level 为即将填充的层级
func (s *Segmenter) decompose(scope int64, iv Interval, chain Chain, level int, emit func(Interval, Chain)) {
	var cands []CleanedEdge
	for _, e := range s.Edges.Overlapping(scope, iv) {
		clipped := e.Interval.Intersect(iv)
		if clipped.Empty() {
			continue
		}
		e.Interval = clipped
		cands = append(cands, e)
	}
	if len(cands) == 0 {
		emit(iv, chain)
		return
	}
	cursor := iv.Start
	for _, c := range cands {
		// 同级候选相互重叠时，先到者占位；后到者只取游标之后的部分
		if c.End < cursor {
			continue
		}
		if c.Start > cursor {
			emit(Interval{Start: cursor, End: c.Start - 1}, chain)
		} else {
			c.Start = cursor
		}
		next := chain.With(Slot{Level: level, AncestorID: c.ParentID, Interval: c.Interval})
		if level < MaxDepth {
			s.decompose(c.ParentID, c.Interval, next, level+1, emit)
		} else {
			emit(c.Interval, next)
		}
		cursor = c.End + 1
	}
	if cursor <= iv.End {
		emit(Interval{Start: cursor, End: iv.End}, chain)
	}
}

func yearText(y *int) string {
	if y == nil {
		return "null"
	}
	return fmt.Sprint(*y)
}
