package lane

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"git.fiblab.net/general/common/v2/geometry"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity"
)

// Lane 车道实体
// 功能：表示路网中一条可行驶的道路车道，同时也是其末端信号的载体
// 说明：车道按到末端信号的距离离散为位置桶，位置0紧邻信号
type Lane struct {
	ctx entity.ITaskContext

	id int32

	// 初始化临时变量

	initSuccessors []*mapv2.LaneConnection

	typ        mapv2.LaneType
	parentID   int32           // 所在道路ID
	junctionID int32           // 末端路口ID，驶离路网为-1
	kind       entity.SignKind // 末端标志类型
	next       []int32         // 穿过末端路口可驶入的信号车道（升序）

	line        []geometry.Point // 转成Point的中心线折线
	lineLengths []float64        // 中心线折线点对应的长度列表
	length      float64          // 以中心线的长度为车道长度
	posLength   float64          // 位置桶长度
	positions   int32            // 位置桶数

	lightState mapv2.LightState // 车道信号灯状态

	waiting       []entity.WaitingRoadUser // 排队的道路使用者
	waitingBuffer []entity.WaitingRoadUser // 下一步的排队（Prepare后生效）
	waitingDirty  bool
	waitingMutex  sync.Mutex
}

// newLane 创建并初始化一个新的Lane实例
// 功能：根据基础数据创建Lane对象，计算中心线长度与位置桶数
// 参数：ctx-任务上下文，base-基础Lane数据，posLength-位置桶长度
// 返回：初始化完成的Lane实例
// 说明：中心线为空时退回使用base.Length
func newLane(ctx entity.ITaskContext, base *mapv2.Lane, posLength float64) *Lane {
	l := &Lane{
		ctx:            ctx,
		id:             base.Id,
		initSuccessors: base.Successors,
		typ:            base.Type,
		parentID:       -1,
		junctionID:     -1,
		kind:           entity.SignNone,
		posLength:      posLength,
		lightState:     mapv2.LightState_LIGHT_STATE_GREEN,
	}
	if base.CenterLine != nil && len(base.CenterLine.Nodes) > 0 {
		l.line = lo.Map(base.CenterLine.Nodes, func(node *geov2.XYPosition, _ int) geometry.Point {
			return geometry.NewPointFromPb(node)
		})
		l.lineLengths = geometry.GetPolylineLengths2D(l.line)
		l.length = l.lineLengths[len(l.lineLengths)-1]
	} else {
		l.length = base.Length
	}
	l.positions = max(1, int32(math.Ceil(l.length/posLength)))
	return l
}

// initWithManager 建立车道与道路、路口及下游信号的关系
// 功能：末端路口为后继车道所在路口；后继为路口内车道时，其后继的道路车道为可驶入的信号
// 参数：m-Lane管理器，roadOf-车道所在道路，junctionOf-车道所在路口，lit-有信号灯的路口
func (l *Lane) initWithManager(m *LaneManager, roadOf, junctionOf map[int32]int32, lit map[int32]bool) {
	l.parentID = roadOf[l.id]
	next := make([]int32, 0)
	for _, conn := range l.initSuccessors {
		succ, ok := m.all[conn.Id]
		if !ok {
			log.Warnf("lane %d: successor %d not found", l.id, conn.Id)
			continue
		}
		if jid, ok := junctionOf[succ.id]; ok {
			l.junctionID = jid
			for _, c := range succ.initSuccessors {
				if _, ok := m.data[c.Id]; ok {
					next = append(next, c.Id)
				}
			}
		} else if _, ok := m.data[succ.id]; ok {
			next = append(next, succ.id)
		}
	}
	slices.Sort(next)
	l.next = slices.Compact(next)
	if l.junctionID != -1 && lit[l.junctionID] {
		l.kind = entity.SignTrafficLight
	}
}

// clearInitTemp 释放初始化临时变量
func (l *Lane) clearInitTemp() {
	l.initSuccessors = nil
}

// prepare 应用本步排队的更新
func (l *Lane) prepare() {
	if l.waitingDirty {
		l.waiting, l.waitingBuffer = l.waitingBuffer, nil
		l.waitingDirty = false
	}
}

func (l *Lane) ID() int32 {
	return l.id
}

// ParentID 所在道路ID
func (l *Lane) ParentID() int32 {
	return l.parentID
}

func (l *Lane) JunctionID() int32 {
	return l.junctionID
}

// Length 车道长度
func (l *Lane) Length() float64 {
	return l.length
}

// Positions 位置桶数
func (l *Lane) Positions() int32 {
	return l.positions
}

// Next 穿过末端路口可驶入的信号车道
func (l *Lane) Next() []int32 {
	return l.next
}

// Info 获取Lane对应信号的静态信息
func (l *Lane) Info() entity.SignalInfo {
	return entity.SignalInfo{
		ID:         l.id,
		Kind:       l.kind,
		Length:     l.positions,
		JunctionID: l.junctionID,
	}
}

// Sign 获取Lane末端标志，信号灯的灯色取当前灯色
func (l *Lane) Sign() entity.Sign {
	return entity.Sign{
		ID:    l.id,
		Kind:  l.kind,
		Green: l.kind == entity.SignTrafficLight && l.lightState == mapv2.LightState_LIGHT_STATE_GREEN,
	}
}

func (l *Lane) Light() mapv2.LightState {
	return l.lightState
}

// SetLight 设置信号灯状态，非信号灯车道恒为绿灯
func (l *Lane) SetLight(state mapv2.LightState) {
	if l.kind != entity.SignTrafficLight {
		return
	}
	l.lightState = state
}

// PositionOf 将车道s坐标转换为距末端信号的位置桶
// 功能：位置 = floor((length - s) / 位置桶长度)，结果截断到[0, positions-1]
func (l *Lane) PositionOf(s float64) int32 {
	pos := int32(math.Floor((l.length - s) / l.posLength))
	return lo.Clamp(pos, 0, l.positions-1)
}

// Waiting 获取排队的道路使用者
func (l *Lane) Waiting() []entity.WaitingRoadUser {
	return l.waiting
}

// SetWaiting 设置下一步的排队（Prepare后生效）
func (l *Lane) SetWaiting(waiting []entity.WaitingRoadUser) {
	l.waitingMutex.Lock()
	defer l.waitingMutex.Unlock()
	l.waitingBuffer = waiting
	l.waitingDirty = true
}

func (l *Lane) String() string {
	return fmt.Sprintf("Lane{id=%d, road=%d, junction=%d, %v, positions=%d}", l.id, l.parentID, l.junctionID, l.kind, l.positions)
}
