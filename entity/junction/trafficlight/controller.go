// 基于模型的强化学习信号灯控制器（TC1/TC2/TC3）
// 每个移动通知更新经验转移模型并沿Bellman方程回溯价值，每个仿真步为每个信号灯计算收益
package trafficlight

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/randengine"
)

// Decision 单个信号灯的收益，收益越高越倾向于绿灯
type Decision struct {
	Signal int32
	Gain   float64
}

// Colearner 可被其他控制器只读查询的控制器
type Colearner interface {
	// VValue 查询状态价值V（目的地按被查询方的建表方式归一）
	VValue(s State) (float64, error)
	// ColearnValue 查询queried信号在(pos, dest)处的价值，按从该状态绿灯驶入asking信号的经验概率加权
	ColearnValue(asking, queried, dest, pos int32) (float64, error)
}

// Bridge 信号 -> 拥有该信号的控制器
type Bridge interface {
	Owner(signal int32) (Colearner, bool)
}

// Controller 信号灯控制器
type Controller interface {
	Colearner

	Name() string
	Variant() Variant
	Config() Config
	Owns(signal int32) bool
	Signals() []int32      // 拥有的全部信号（升序）
	NumTrafficLights() int // 拥有的可控信号灯数量

	// Advance 处理一次移动通知：记录观测并完成全部价值重算
	Advance(move entity.Move) error
	// Explore 抛本步的探索硬币
	Explore() bool
	// Decide 计算本步全部信号灯的收益，explore为true时全部收益替换为随机数
	Decide(explore bool) ([]Decision, error)
	// Reset 清空派生价值表与原始计数
	Reset()

	Q(s State, green bool) (float64, error)
	V(s State) (float64, error)
	Model() *TransitionModel

	Snapshot() *Snapshot
	LoadTables(lc *LoadContext, snap *Snapshot) error
	Resolve(lc *LoadContext) error
	BindBridge(b Bridge)
}

// New 按类型创建控制器
// 参数：variant-控制器类型，name-控制器名（持久化主键），network-路网查询接口，
// owned-该控制器拥有的信号（nil表示全部信号），cfg-参数
func New(variant Variant, name string, network entity.INetwork, owned []int32, cfg Config) (Controller, error) {
	b, err := newBase(variant, name, network, owned, cfg)
	if err != nil {
		return nil, err
	}
	switch variant {
	case VariantTC1:
		return &TC1{base: b}, nil
	case VariantTC2:
		return &TC2{base: b}, nil
	case VariantTC3:
		return newTC3(b), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
}

// event 一次被接受的移动通知
type event struct {
	state      State
	green      bool
	next       Cell
	queue      int32
	candidates []Cell
}

// crosses 候选下一状态中是否存在驶入其他信号的状态
func (ev *event) crosses() bool {
	return lo.ContainsBy(ev.candidates, func(c Cell) bool { return c.Signal != ev.state.Signal })
}

// base 三种控制器的公共部分
type base struct {
	name    string
	variant Variant
	cfg     Config
	network entity.INetwork

	d     *dims // 自有信号的表维度
	net   *dims // 全路网信号维度，用于检查下一状态
	model *TransitionModel
	q     *table
	v     *table

	owned  map[int32]struct{}
	lights []int32 // 自有可控信号灯（升序）
	bridge Bridge

	rng      *randengine.Engine
	gainWarn float64
}

func newBase(variant Variant, name string, network entity.INetwork, owned []int32, cfg Config) (*base, error) {
	if err := cfg.Validate(variant); err != nil {
		return nil, err
	}
	all := network.Signals()
	byID := lo.SliceToMap(all, func(s entity.SignalInfo) (int32, entity.SignalInfo) { return s.ID, s })
	if owned == nil {
		owned = lo.Map(all, func(s entity.SignalInfo, _ int) int32 { return s.ID })
	}
	infos := make([]entity.SignalInfo, 0, len(owned))
	for _, id := range lo.Uniq(owned) {
		info, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("tlc: controller %s owns unknown signal %d", name, id)
		}
		infos = append(infos, info)
	}
	b := &base{
		name:     name,
		variant:  variant,
		cfg:      cfg,
		network:  network,
		d:        newDims(infos, network.Destinations(), cfg.Destinationless),
		net:      newDims(all, network.Destinations(), cfg.Destinationless),
		model:    NewTransitionModel(),
		owned:    lo.SliceToMap(infos, func(s entity.SignalInfo) (int32, struct{}) { return s.ID, struct{}{} }),
		rng:      randengine.New(cfg.Seed),
		gainWarn: gainWarnBound(variant),
	}
	b.lights = lo.FilterMap(infos, func(s entity.SignalInfo, _ int) (int32, bool) {
		return s.ID, s.Kind == entity.SignTrafficLight
	})
	slices.Sort(b.lights)
	b.q = newTable("Q", b.d, 2)
	b.v = newTable("V", b.d, 1)
	return b, nil
}

func (b *base) Name() string     { return b.name }
func (b *base) Variant() Variant { return b.variant }
func (b *base) Config() Config   { return b.cfg }
func (b *base) Model() *TransitionModel {
	return b.model
}

func (b *base) Owns(signal int32) bool {
	_, ok := b.owned[signal]
	return ok
}

func (b *base) Signals() []int32 {
	return lo.Map(b.d.shapes, func(s SignalShape, _ int) int32 { return s.ID })
}

func (b *base) NumTrafficLights() int {
	return len(b.lights)
}

func (b *base) BindBridge(br Bridge) {
	b.bridge = br
}

func (b *base) Q(s State, green bool) (float64, error) {
	s.Destination = b.d.normalize(s.Destination)
	return b.q.get(s, slotOf(green))
}

func (b *base) V(s State) (float64, error) {
	s.Destination = b.d.normalize(s.Destination)
	return b.v.get(s, 0)
}

func (b *base) VValue(s State) (float64, error) {
	return b.V(s)
}

// Reset 清空派生价值表与原始计数，所有控制器类型统一
func (b *base) Reset() {
	b.model.Reset()
	b.q.reset()
	b.v.reset()
}

// accept 过滤并校验移动通知
// 功能：只学习上一标志为信号灯、当前标志为信号灯或无标志的移动；驶离路网的移动被忽略
// 返回：event-被接受的事件，ok-是否需要学习，err-索引越界
func (b *base) accept(move entity.Move) (ev event, ok bool, err error) {
	if !move.PrevSign.IsTrafficLight() || move.CurSign == nil {
		return ev, false, nil
	}
	if move.CurSign.Kind != entity.SignTrafficLight && move.CurSign.Kind != entity.SignNone {
		return ev, false, nil
	}
	if !b.Owns(move.PrevSign.ID) {
		return ev, false, nil
	}
	ev.state = State{
		Signal:      move.PrevSign.ID,
		Position:    move.PrevPos,
		Destination: b.d.normalize(move.RoadUser.Destination),
	}
	if _, err := b.d.index("state", ev.state); err != nil {
		return ev, false, fmt.Errorf("%v: %w", &move, err)
	}
	ev.green = move.PrevSign.Green
	ev.next = Cell{Signal: move.CurSign.ID, Position: move.CurPos}
	if err := b.net.checkCell("next", ev.next); err != nil {
		return ev, false, fmt.Errorf("%v: %w", &move, err)
	}
	ev.candidates = make([]Cell, 0, len(move.Candidates)+1)
	for _, pm := range move.Candidates {
		c := Cell{Signal: pm.Signal, Position: pm.Position}
		if err := b.net.checkCell("candidate", c); err != nil {
			return ev, false, fmt.Errorf("%v: %w", &move, err)
		}
		ev.candidates = append(ev.candidates, c)
	}
	// 实际到达的状态总是计入候选
	ev.candidates = lo.Uniq(append(ev.candidates, ev.next))
	ev.queue = b.network.NumWaiting(move.CurSign.ID)
	return ev, true, nil
}

// observe 记录事件对应的观测
func (b *base) observe(ev *event) {
	b.model.Record(ev.state, ev.green, ev.queue, ev.next)
}

// nextV 下一状态的V，不属于本控制器的状态通过Bridge向其拥有者查询
func (b *base) nextV(s State) (float64, error) {
	if b.Owns(s.Signal) {
		return b.v.get(s, 0)
	}
	if b.bridge == nil {
		return 0, nil
	}
	owner, ok := b.bridge.Owner(s.Signal)
	if !ok {
		return 0, nil
	}
	return owner.VValue(s)
}

func reward(s State, next Cell) float64 {
	if s.cell() == next {
		return 1
	}
	return 0
}
