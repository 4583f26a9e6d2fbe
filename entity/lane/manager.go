package lane

import (
	"fmt"
	"slices"

	"git.fiblab.net/general/common/v2/parallel"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity"
)

// ExitLane 移动目标车道为ExitLane表示驶离路网
const ExitLane int32 = -1

// LaneManager Lane管理器
// 功能：管理所有道路车道（即信号），向信控引擎提供只读的路网查询
type LaneManager struct {
	ctx entity.ITaskContext

	all   map[int32]*Lane // 全部行车道（含路口内车道）
	data  map[int32]*Lane // 道路车道
	lanes []*Lane         // 道路车道（按ID升序）

	signals      []entity.SignalInfo
	destinations []int32
}

// NewManager 创建Lane管理器实例
// 功能：初始化Lane管理器，创建内部数据结构
// 参数：ctx-任务上下文
// 返回：新创建的Lane管理器实例
func NewManager(ctx entity.ITaskContext) *LaneManager {
	return &LaneManager{
		ctx:   ctx,
		all:   make(map[int32]*Lane),
		data:  make(map[int32]*Lane),
		lanes: make([]*Lane, 0),
	}
}

// Init 初始化所有Lane
// 功能：根据地图数据创建道路车道，确定每条车道末端的路口、标志类型与可驶入的下游信号
// 参数：mp-地图
// 算法说明：
// 1. 通过道路与路口的LaneIds建立车道->道路、车道->路口映射
// 2. 有可用相位或固定配时相位的路口视为有信号灯
// 3. 并行创建全部行车道，只保留属于道路的车道作为信号
// 4. 目的地为所有车道都驶离路网的道路，不存在时退回全部道路
func (m *LaneManager) Init(mp *mapv2.Map) {
	posLength := m.ctx.RuntimeConfig().C.TLC.PositionLength
	roadOf := make(map[int32]int32)
	for _, r := range mp.Roads {
		for _, id := range r.LaneIds {
			roadOf[id] = r.Id
		}
	}
	junctionOf := make(map[int32]int32)
	lit := make(map[int32]bool)
	for _, j := range mp.Junctions {
		for _, id := range j.LaneIds {
			junctionOf[id] = j.Id
		}
		lit[j.Id] = len(j.Phases) > 0 || (j.FixedProgram != nil && len(j.FixedProgram.Phases) > 0)
	}

	driving := lo.Filter(mp.Lanes, func(pb *mapv2.Lane, _ int) bool {
		return pb.Type == mapv2.LaneType_LANE_TYPE_DRIVING
	})
	all := parallel.GoMap(driving, func(pb *mapv2.Lane) *Lane {
		return newLane(m.ctx, pb, posLength)
	})
	m.all = lo.SliceToMap(all, func(l *Lane) (int32, *Lane) { return l.id, l })
	m.lanes = lo.Filter(all, func(l *Lane, _ int) bool {
		_, ok := roadOf[l.id]
		return ok
	})
	slices.SortFunc(m.lanes, func(a, b *Lane) int { return int(a.id) - int(b.id) })
	m.data = lo.SliceToMap(m.lanes, func(l *Lane) (int32, *Lane) { return l.id, l })
	parallel.GoFor(m.lanes, func(l *Lane) { l.initWithManager(m, roadOf, junctionOf, lit) })
	parallel.GoFor(all, func(l *Lane) { l.clearInitTemp() })

	m.signals = lo.Map(m.lanes, func(l *Lane, _ int) entity.SignalInfo { return l.Info() })

	exits := make(map[int32]bool)
	for _, l := range m.lanes {
		if e, ok := exits[l.parentID]; !ok || e {
			exits[l.parentID] = l.junctionID == -1
		}
	}
	m.destinations = lo.FilterMap(mp.Roads, func(r *mapv2.Road, _ int) (int32, bool) {
		return r.Id, exits[r.Id]
	})
	if len(m.destinations) == 0 {
		m.destinations = lo.Map(mp.Roads, func(r *mapv2.Road, _ int) int32 { return r.Id })
	}
	slices.Sort(m.destinations)
	m.destinations = slices.Compact(m.destinations)

	numLights := lo.CountBy(m.signals, func(s entity.SignalInfo) bool { return s.Kind == entity.SignTrafficLight })
	log.Infof("lane: %d signals (%d traffic lights), %d destinations", len(m.signals), numLights, len(m.destinations))
}

// Get 获取指定ID的Lane
// 功能：根据ID查找Lane，如果不存在则panic
func (m *LaneManager) Get(id int32) entity.ILane {
	if l, ok := m.data[id]; !ok {
		log.Panicf("no id %d in lane data", id)
		return nil
	} else {
		return l
	}
}

// GetOrError 获取指定ID的Lane，如果不存在则返回error
func (m *LaneManager) GetOrError(id int32) (entity.ILane, error) {
	if l, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in lane data", id)
	} else {
		return l, nil
	}
}

// Lane 获取指定ID的Lane实体
func (m *LaneManager) Lane(id int32) (*Lane, bool) {
	l, ok := m.data[id]
	return l, ok
}

// Signals 全部信号（按ID升序）
func (m *LaneManager) Signals() []entity.SignalInfo {
	return m.signals
}

// Destinations 全部目的地（按ID升序）
func (m *LaneManager) Destinations() []int32 {
	return m.destinations
}

// Waiting 在该信号前排队的道路使用者，未知信号返回nil
func (m *LaneManager) Waiting(signal int32) []entity.WaitingRoadUser {
	if l, ok := m.data[signal]; ok {
		return l.waiting
	}
	return nil
}

func (m *LaneManager) NumWaiting(signal int32) int32 {
	return int32(len(m.Waiting(signal)))
}

// SetLights 批量设置信号灯状态
func (m *LaneManager) SetLights(lights map[int32]mapv2.LightState) error {
	for id, state := range lights {
		l, ok := m.data[id]
		if !ok {
			return fmt.Errorf("set light: no id %d in lane data", id)
		}
		l.SetLight(state)
	}
	return nil
}

// MoveOf 将一次以车道坐标描述的移动转换为移动通知
// 功能：计算上一/当前位置桶与标志，并枚举该车在上一状态下所有可能的下一状态
// 参数：ru-道路使用者，from/fromS-上一车道与s坐标，to/toS-当前车道与s坐标（to为ExitLane表示驶离路网），desired-期望下一车道
// 算法说明：
// 1. 同车道候选：原地及向信号方向前进至多reach个位置桶
// 2. 若reach足以越过信号，穿过路口后在下游车道上剩余的前进距离内的位置桶也是候选
// 3. 期望下一车道可驶入时只枚举该车道，否则枚举全部下游信号
func (m *LaneManager) MoveOf(ru entity.RoadUser, from int32, fromS float64, to int32, toS float64, desired int32) (entity.Move, error) {
	prev, ok := m.data[from]
	if !ok {
		return entity.Move{}, fmt.Errorf("move of road user %d: no id %d in lane data", ru.ID, from)
	}
	mv := entity.Move{
		RoadUser:    ru,
		PrevLane:    from,
		PrevSign:    prev.Sign(),
		PrevPos:     prev.PositionOf(fromS),
		CurLane:     to,
		DesiredLane: desired,
	}
	if to != ExitLane {
		cur, ok := m.data[to]
		if !ok {
			return entity.Move{}, fmt.Errorf("move of road user %d: no id %d in lane data", ru.ID, to)
		}
		sign := cur.Sign()
		mv.CurSign = &sign
		mv.CurPos = cur.PositionOf(toS)
	}

	reach := m.ctx.RuntimeConfig().C.TLC.Reach
	for p := mv.PrevPos; p >= max(0, mv.PrevPos-reach); p-- {
		mv.Candidates = append(mv.Candidates, entity.PosMov{Signal: from, Position: p})
	}
	if left := reach - mv.PrevPos - 1; left >= 0 {
		targets := prev.next
		if slices.Contains(prev.next, desired) {
			targets = []int32{desired}
		}
		for _, id := range targets {
			next := m.data[id]
			for p := next.positions - 1; p >= max(0, next.positions-1-left); p-- {
				mv.Candidates = append(mv.Candidates, entity.PosMov{Signal: id, Position: p})
			}
		}
	}
	return mv, nil
}

// Prepare 准备阶段，应用本步排队的更新
func (m *LaneManager) Prepare() {
	parallel.GoFor(m.lanes, func(l *Lane) { l.prepare() })
}
