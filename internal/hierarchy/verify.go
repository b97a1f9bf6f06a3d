package hierarchy

import "fmt"

// InvariantError：切分结果自身有缺陷（重叠、漏年、链断层、越界），属于程序错误而非数据问题
type InvariantError struct {
	PlaceID int64
	Detail  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("segmentation invariant violated for place %d: %s", e.PlaceID, e.Detail)
}

// Verify：检查 segs 是否按序、无重叠、无遗漏地划分 span，且每条链连续、不超过五级、各级区间包含该段
func Verify(placeID int64, span Interval, segs []Segment) error {
	fail := func(format string, args ...any) error {
		return &InvariantError{PlaceID: placeID, Detail: fmt.Sprintf(format, args...)}
	}
	if len(segs) == 0 {
		return fail("no segments for span %s", span)
	}
	next := span.Start
	for i, sg := range segs {
		if sg.PlaceID != placeID {
			return fail("segment %d belongs to place %d", i, sg.PlaceID)
		}
		if sg.Empty() {
			return fail("segment %d is empty %s", i, sg.Interval)
		}
		if sg.Start < next {
			return fail("segment %d %s overlaps previous coverage", i, sg.Interval)
		}
		if sg.Start > next {
			return fail("years %d-%d uncovered before segment %d", next, sg.Start-1, i)
		}
		if !sg.Chain.Contiguous() {
			return fail("segment %d %s has a non-contiguous chain", i, sg.Interval)
		}
		for lvl := 1; lvl <= sg.Chain.Depth(); lvl++ {
			slot := sg.Chain.At(lvl)
			if slot.Level != lvl {
				return fail("segment %d slot at level %d reports level %d", i, lvl, slot.Level)
			}
			if !slot.Contains(sg.Interval) {
				return fail("segment %d %s escapes level %d slot %s", i, sg.Interval, lvl, slot.Interval)
			}
		}
		next = sg.End + 1
	}
	if next != span.End+1 {
		if next <= span.End {
			return fail("years %d-%d uncovered at end", next, span.End)
		}
		return fail("coverage ends at %d beyond span end %d", next-1, span.End)
	}
	return nil
}
