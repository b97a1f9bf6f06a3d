package hierarchy

import (
	"log/slog"
	"sort"
)

// RejectReason：隶属声明被丢弃的原因，用于诊断汇总
type RejectReason string

const (
	RejectParentMissing    RejectReason = "parent_missing"
	RejectChildMissing     RejectReason = "child_missing"
	RejectParentUnresolved RejectReason = "parent_unresolved"
	RejectBoundsMissing    RejectReason = "bounds_missing"
	RejectEmptyInterval    RejectReason = "empty_interval"
)

// Rejection：一条被丢弃的声明及原因
type Rejection struct {
	Edge   Edge
	Reason RejectReason
}

// PlaceIndex：按 id 索引的地址表，构建后只读
type PlaceIndex map[int64]Place

func NewPlaceIndex(places []Place) PlaceIndex {
	idx := make(PlaceIndex, len(places))
	for _, p := range places {
		idx[p.ID] = p
	}
	return idx
}

// CleanResult：清洗输出；Edges 按子地址分组并已排序
type CleanResult struct {
	Edges      *EdgeIndex
	Rejections []Rejection
	Duplicates int
}

// RejectCounts：按原因统计丢弃数
func (r *CleanResult) RejectCounts() map[RejectReason]int {
	out := make(map[RejectReason]int)
	for _, rj := range r.Rejections {
		out[rj.Reason]++
	}
	return out
}

// Clean：清洗原始隶属声明
// 背景：上级为空/为 0、上级不存在或无年份、三方交集为空的声明一律丢弃并记录原因；丢弃从不中断本次重建。
// 约束：缺省的声明起止年取子地址自身的存续年份；交集计算中任何一端仍为空即视为年份缺失。
func Clean(places PlaceIndex, edges []Edge, log *slog.Logger) *CleanResult {
	res := &CleanResult{}
	seen := make(map[CleanedEdge]struct{}, len(edges))
	var kept []CleanedEdge
	reject := func(e Edge, reason RejectReason) {
		res.Rejections = append(res.Rejections, Rejection{Edge: e, Reason: reason})
		if log != nil {
			log.Debug("edge_rejected", "child", e.ChildID, "parent", derefID(e.ParentID), "reason", string(reason))
		}
	}
	for _, e := range edges {
		if e.ParentID == nil || *e.ParentID == UnknownParent {
			reject(e, RejectParentMissing)
			continue
		}
		child, ok := places[e.ChildID]
		if !ok {
			reject(e, RejectChildMissing)
			continue
		}
		parent, ok := places[*e.ParentID]
		if !ok || parent.FirstYear == nil || parent.LastYear == nil {
			reject(e, RejectParentUnresolved)
			continue
		}
		first := e.FirstYear
		if first == nil {
			first = child.FirstYear
		}
		last := e.LastYear
		if last == nil {
			last = child.LastYear
		}
		if first == nil || last == nil || child.FirstYear == nil || child.LastYear == nil {
			reject(e, RejectBoundsMissing)
			continue
		}
		iv := Interval{
			Start: max(*first, *child.FirstYear, *parent.FirstYear),
			End:   min(*last, *child.LastYear, *parent.LastYear),
		}
		if iv.Empty() {
			reject(e, RejectEmptyInterval)
			continue
		}
		ce := CleanedEdge{ChildID: e.ChildID, ParentID: *e.ParentID, Interval: iv}
		if _, dup := seen[ce]; dup {
			res.Duplicates++
			continue
		}
		seen[ce] = struct{}{}
		kept = append(kept, ce)
	}
	res.Edges = NewEdgeIndex(kept)
	return res
}

// EdgeIndex：按子地址分组的已清洗关系；组内按 起始年→结束年→上级 id 升序
// 约束：构建后只读，可被多个切分协程并发读取
type EdgeIndex struct {
	byChild map[int64][]CleanedEdge
	total   int
}

func NewEdgeIndex(edges []CleanedEdge) *EdgeIndex {
	idx := &EdgeIndex{byChild: make(map[int64][]CleanedEdge), total: len(edges)}
	for _, e := range edges {
		idx.byChild[e.ChildID] = append(idx.byChild[e.ChildID], e)
	}
	for _, list := range idx.byChild {
		sort.Slice(list, func(i, j int) bool { return edgeLess(list[i], list[j]) })
	}
	return idx
}

func edgeLess(a, b CleanedEdge) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.End != b.End {
		return a.End < b.End
	}
	return a.ParentID < b.ParentID
}

// Len：索引内关系总数
func (x *EdgeIndex) Len() int { return x.total }

// Overlapping：scope 作为子地址、且与 iv 相交的关系，保持排序
func (x *EdgeIndex) Overlapping(scope int64, iv Interval) []CleanedEdge {
	var out []CleanedEdge
	for _, e := range x.byChild[scope] {
		if e.Overlaps(iv) {
			out = append(out, e)
		}
	}
	return out
}

func derefID(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
