package hierarchy

// Ancestor：展开后的某一级祖先；未填充层级三项皆为空
type Ancestor struct {
	ID      *int64  `json:"id" yaml:"id"`
	Name    *string `json:"name" yaml:"name"`
	NameChn *string `json:"name_chn" yaml:"name_chn"`
}

// AddressView：ADDRESSES 表的一行，与 Segment 一一对应
type AddressView struct {
	PlaceID      int64              `json:"c_addr_id" yaml:"c_addr_id"`
	Name         string             `json:"c_name" yaml:"c_name"`
	NameChn      string             `json:"c_name_chn" yaml:"c_name_chn"`
	AdminType    string             `json:"c_admin_type" yaml:"c_admin_type"`
	FirstYear    *int               `json:"c_firstyear" yaml:"c_firstyear"`
	LastYear     *int               `json:"c_lastyear" yaml:"c_lastyear"`
	BelongsFirst int                `json:"c_belongs_firstyear" yaml:"c_belongs_firstyear"`
	BelongsLast  int                `json:"c_belongs_lastyear" yaml:"c_belongs_lastyear"`
	X            *float64           `json:"x_coord" yaml:"x_coord"`
	Y            *float64           `json:"y_coord" yaml:"y_coord"`
	Belongs      [MaxDepth]Ancestor `json:"belongs" yaml:"belongs"`
}

// Columns：ADDRESSES 的 25 列，顺序与 Values 一致
var Columns = []string{
	"c_addr_id", "c_name", "c_name_chn", "c_admin_type", "c_firstyear", "c_lastyear",
	"c_belongs_firstyear", "c_belongs_lastyear", "x_coord", "y_coord",
	"belongs1_ID", "belongs1_Name", "belongs1_Name_chn",
	"belongs2_ID", "belongs2_Name", "belongs2_Name_chn",
	"belongs3_ID", "belongs3_Name", "belongs3_Name_chn",
	"belongs4_ID", "belongs4_Name", "belongs4_Name_chn",
	"belongs5_ID", "belongs5_Name", "belongs5_Name_chn",
}

// Values：按 Columns 顺序输出；空指针写为 SQL NULL
func (v AddressView) Values() []any {
	out := make([]any, 0, len(Columns))
	out = append(out, v.PlaceID, v.Name, v.NameChn, v.AdminType,
		nullable(v.FirstYear), nullable(v.LastYear),
		v.BelongsFirst, v.BelongsLast,
		nullable(v.X), nullable(v.Y))
	for _, a := range v.Belongs {
		out = append(out, nullable(a.ID), nullable(a.Name), nullable(a.NameChn))
	}
	return out
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// Materialize：按地址表解析链上各级名称
// 约束：纯查找；祖先不在地址表中时保留 id、名称置空
func Materialize(seg Segment, places PlaceIndex) AddressView {
	p := places[seg.PlaceID]
	v := AddressView{
		PlaceID:      seg.PlaceID,
		Name:         p.Name,
		NameChn:      p.NameChn,
		AdminType:    p.AdminType,
		FirstYear:    p.FirstYear,
		LastYear:     p.LastYear,
		BelongsFirst: seg.Start,
		BelongsLast:  seg.End,
		X:            p.X,
		Y:            p.Y,
	}
	for i, slot := range seg.Chain {
		if slot == nil {
			continue
		}
		id := slot.AncestorID
		a := Ancestor{ID: &id}
		if anc, ok := places[id]; ok {
			name, chn := anc.Name, anc.NameChn
			a.Name, a.NameChn = &name, &chn
		}
		v.Belongs[i] = a
	}
	return v
}

// MaterializeAll：逐段展开，保持输入顺序
func MaterializeAll(segs []Segment, places PlaceIndex) []AddressView {
	out := make([]AddressView, 0, len(segs))
	for _, sg := range segs {
		out = append(out, Materialize(sg, places))
	}
	return out
}
