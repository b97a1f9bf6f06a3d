// 包 hierarchy：地址隶属关系的时间切分核心；只做纯计算，不接触数据库或网络
package hierarchy

import "fmt"

const (
	// MaxDepth 行政层级最多五级，递归在第五级强制停止
	MaxDepth = 5
	// UnknownParent 源数据中以 0 表示“未知上级”
	UnknownParent int64 = 0
)

// Interval：闭区间 [Start, End]，以年为粒度
type Interval struct {
	Start int
	End   int
}

func (iv Interval) Empty() bool { return iv.Start > iv.End }

// Intersect：两个区间的交集，可能为空
func (iv Interval) Intersect(o Interval) Interval {
	return Interval{Start: max(iv.Start, o.Start), End: min(iv.End, o.End)}
}

func (iv Interval) Overlaps(o Interval) bool { return !iv.Intersect(o).Empty() }

// Contains：o 是否完全落在 iv 内
func (iv Interval) Contains(o Interval) bool {
	return !o.Empty() && o.Start >= iv.Start && o.End <= iv.End
}

func (iv Interval) String() string { return fmt.Sprintf("[%d,%d]", iv.Start, iv.End) }

// Place：地址记录（ADDR_CODES 一行）
// 约束：FirstYear/LastYear 任一为空或倒置时，该地址不参与切分
type Place struct {
	ID        int64
	Name      string
	NameChn   string
	AdminType string
	FirstYear *int
	LastYear  *int
	X         *float64
	Y         *float64
}

// Span：地址的存续区间；缺失或倒置返回 false
func (p Place) Span() (Interval, bool) {
	if p.FirstYear == nil || p.LastYear == nil {
		return Interval{}, false
	}
	iv := Interval{Start: *p.FirstYear, End: *p.LastYear}
	if iv.Empty() {
		return Interval{}, false
	}
	return iv, true
}

// Edge：原始隶属声明（ADDR_BELONGS_DATA 一行），起止年可缺省
type Edge struct {
	ChildID   int64
	ParentID  *int64
	FirstYear *int
	LastYear  *int
}

// CleanedEdge：通过清洗的隶属关系，Interval 为子、父与声明三者交集
type CleanedEdge struct {
	ChildID  int64
	ParentID int64
	Interval
}

// Slot：链中某一级的祖先及其在该段内的有效区间
type Slot struct {
	Level      int
	AncestorID int64
	Interval
}

// Chain：五级祖先的定长数组，按值传递；扩展时复制，兄弟分支互不可见
type Chain [MaxDepth]*Slot

// With：返回加入 s 之后的新链，原链不变
func (c Chain) With(s Slot) Chain {
	out := c
	v := s
	out[s.Level-1] = &v
	return out
}

// At：取第 level 级（1 起），未填充返回 nil
func (c Chain) At(level int) *Slot {
	if level < 1 || level > MaxDepth {
		return nil
	}
	return c[level-1]
}

// Depth：自第一级起连续填充的层数
func (c Chain) Depth() int {
	n := 0
	for _, s := range c {
		if s == nil {
			break
		}
		n++
	}
	return n
}

// Contiguous：不存在第 k 级有值而第 k-1 级为空的情况
func (c Chain) Contiguous() bool {
	seenEmpty := false
	for _, s := range c {
		if s == nil {
			seenEmpty = true
			continue
		}
		if seenEmpty {
			return false
		}
	}
	return true
}

// Segment：切分结果的最小单元，同一地址的全部 Segment 恰好划分其存续区间
type Segment struct {
	PlaceID int64
	Interval
	Chain Chain
}

// Gap：链未满五级，即该段在某一级以上隶属未知
func (s Segment) Gap() bool { return s.Chain.Depth() < MaxDepth }
