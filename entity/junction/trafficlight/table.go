package trafficlight

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity"
)

const (
	// AnyQueue 不区分排队长度（按所有排队长度聚合）
	AnyQueue int32 = -1
	// CollapsedDestination 目的地折叠模式下所有目的地映射到的桶
	CollapsedDestination int32 = -1
)

const (
	slotGreen = 0
	slotRed   = 1
)

func slotOf(green bool) int {
	if green {
		return slotGreen
	}
	return slotRed
}

// State 学习状态（信号, 位置, 目的地）
type State struct {
	Signal      int32
	Position    int32
	Destination int32
}

func (s State) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s.Signal, s.Position, s.Destination)
}

// Cell 状态中不含目的地的部分，即下一状态（信号, 位置）
type Cell struct {
	Signal   int32
	Position int32
}

func (s State) cell() Cell {
	return Cell{Signal: s.Signal, Position: s.Position}
}

func (c Cell) with(dest int32) State {
	return State{Signal: c.Signal, Position: c.Position, Destination: dest}
}

// SignalShape 信号在表中的形状
type SignalShape struct {
	ID     int32 `bson:"id" yaml:"id"`
	Length int32 `bson:"length" yaml:"length"`
}

// dims 表维度
// 功能：保存控制器初始化时确定的(信号, 位置, 目的地)边界，并把状态映射为一维下标
// 说明：初始化后不再改变，越界访问返回DimensionError
type dims struct {
	shapes    []SignalShape // 按信号ID升序
	offset    map[int32]int // 信号ID -> 该信号第0个位置在(信号,位置)平面中的下标
	length    map[int32]int32
	cells     int
	dests     []int32 // 按ID升序
	destIndex map[int32]int
	collapsed bool
}

func newDims(signals []entity.SignalInfo, destinations []int32, collapsed bool) *dims {
	shapes := lo.Map(signals, func(s entity.SignalInfo, _ int) SignalShape {
		return SignalShape{ID: s.ID, Length: max(s.Length, 1)}
	})
	slices.SortFunc(shapes, func(a, b SignalShape) int { return int(a.ID) - int(b.ID) })
	dests := slices.Clone(destinations)
	slices.Sort(dests)
	dests = slices.Compact(dests)
	return newDimsFromShapes(shapes, dests, collapsed)
}

func newDimsFromShapes(shapes []SignalShape, dests []int32, collapsed bool) *dims {
	d := &dims{
		shapes:    shapes,
		offset:    make(map[int32]int, len(shapes)),
		length:    make(map[int32]int32, len(shapes)),
		dests:     dests,
		destIndex: make(map[int32]int, len(dests)),
		collapsed: collapsed,
	}
	for _, s := range shapes {
		d.offset[s.ID] = d.cells
		d.length[s.ID] = s.Length
		d.cells += int(s.Length)
	}
	for i, dest := range dests {
		d.destIndex[dest] = i
	}
	return d
}

func (d *dims) numDests() int {
	if d.collapsed {
		return 1
	}
	return len(d.dests)
}

// normalize 把目的地映射到表中实际使用的目的地
func (d *dims) normalize(dest int32) int32 {
	if d.collapsed {
		return CollapsedDestination
	}
	return dest
}

func (d *dims) hasSignal(signal int32) bool {
	_, ok := d.offset[signal]
	return ok
}

func (d *dims) hasDestination(dest int32) bool {
	if d.collapsed {
		return true
	}
	_, ok := d.destIndex[dest]
	return ok
}

func (d *dims) checkCell(table string, c Cell) error {
	if l, ok := d.length[c.Signal]; !ok || c.Position < 0 || c.Position >= l {
		return &DimensionError{Table: table, Signal: c.Signal, Position: c.Position, Destination: CollapsedDestination}
	}
	return nil
}

// index 状态在(信号,位置,目的地)立方体中的下标
func (d *dims) index(table string, s State) (int, error) {
	off, ok := d.offset[s.Signal]
	if !ok || s.Position < 0 || s.Position >= d.length[s.Signal] {
		return 0, &DimensionError{Table: table, Signal: s.Signal, Position: s.Position, Destination: s.Destination}
	}
	di := 0
	if !d.collapsed {
		if di, ok = d.destIndex[s.Destination]; !ok {
			return 0, &DimensionError{Table: table, Signal: s.Signal, Position: s.Position, Destination: s.Destination}
		}
	}
	return (off+int(s.Position))*d.numDests() + di, nil
}

// table 定长数值表
// 功能：存储Q/Qa（每个状态红绿两格）或V/W（每个状态一格）
type table struct {
	name  string
	d     *dims
	width int
	data  []float64
}

func newTable(name string, d *dims, width int) *table {
	return &table{
		name:  name,
		d:     d,
		width: width,
		data:  make([]float64, d.cells*d.numDests()*width),
	}
}

func (t *table) get(s State, slot int) (float64, error) {
	i, err := t.d.index(t.name, s)
	if err != nil {
		return 0, err
	}
	return t.data[i*t.width+slot], nil
}

func (t *table) set(s State, slot int, v float64) error {
	i, err := t.d.index(t.name, s)
	if err != nil {
		return err
	}
	t.data[i*t.width+slot] = v
	return nil
}

func (t *table) reset() {
	clear(t.data)
}

// export 导出为嵌套数组[信号][位置][目的地][格]
func (t *table) export() [][][][]float64 {
	nd := t.d.numDests()
	out := make([][][][]float64, len(t.d.shapes))
	for si, shape := range t.d.shapes {
		off := t.d.offset[shape.ID]
		out[si] = make([][][]float64, shape.Length)
		for p := range int(shape.Length) {
			out[si][p] = make([][]float64, nd)
			for di := range nd {
				i := ((off+p)*nd + di) * t.width
				out[si][p][di] = slices.Clone(t.data[i : i+t.width])
			}
		}
	}
	return out
}

// export3 导出单格表为嵌套数组[信号][位置][目的地]
func (t *table) export3() [][][]float64 {
	return lo.Map(t.export(), func(ps [][][]float64, _ int) [][]float64 {
		return lo.Map(ps, func(ds [][]float64, _ int) []float64 {
			return lo.Map(ds, func(v []float64, _ int) float64 { return v[0] })
		})
	})
}

// parse 校验嵌套数组的形状并转换为表数据，形状必须与表完全一致
// 说明：不修改表本身，由调用方在全部校验通过后再装入
func (t *table) parse(in [][][][]float64) ([]float64, error) {
	nd := t.d.numDests()
	if len(in) != len(t.d.shapes) {
		return nil, fmt.Errorf("%w: %s has %d signals, want %d", ErrMalformedSnapshot, t.name, len(in), len(t.d.shapes))
	}
	data := make([]float64, len(t.data))
	for si, shape := range t.d.shapes {
		if len(in[si]) != int(shape.Length) {
			return nil, fmt.Errorf("%w: %s signal %d has %d positions, want %d",
				ErrMalformedSnapshot, t.name, shape.ID, len(in[si]), shape.Length)
		}
		off := t.d.offset[shape.ID]
		for p, ds := range in[si] {
			if len(ds) != nd {
				return nil, fmt.Errorf("%w: %s signal %d pos %d has %d destinations, want %d",
					ErrMalformedSnapshot, t.name, shape.ID, p, len(ds), nd)
			}
			for di, vs := range ds {
				if len(vs) != t.width {
					return nil, fmt.Errorf("%w: %s entry width %d, want %d", ErrMalformedSnapshot, t.name, len(vs), t.width)
				}
				copy(data[((off+p)*nd+di)*t.width:], vs)
			}
		}
	}
	return data, nil
}

func (t *table) parse3(in [][][]float64) ([]float64, error) {
	return t.parse(lo.Map(in, func(ps [][]float64, _ int) [][][]float64 {
		return lo.Map(ps, func(ds []float64, _ int) [][]float64 {
			return lo.Map(ds, func(v float64, _ int) []float64 { return []float64{v} })
		})
	}))
}

// staged 已校验、待装入的表数据
type staged struct {
	t    *table
	data []float64
}

func (s staged) install() {
	s.t.data = s.data
}
