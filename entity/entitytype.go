package entity

import (
	"fmt"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// SignKind 车道末端标志类型
type SignKind int32

const (
	SignNone         SignKind = iota // 无标志（路口无信控或驶离路网）
	SignTrafficLight                 // 可控信号灯
)

func (k SignKind) String() string {
	switch k {
	case SignNone:
		return "NO_SIGN"
	case SignTrafficLight:
		return "TRAFFICLIGHT"
	default:
		return fmt.Sprintf("SignKind(%d)", int32(k))
	}
}

// Sign 车道末端的标志
// 功能：描述一个信号的标识、类型与当前灯色
// 说明：信号ID与其控制的驶入车道ID一致（一条车道一个信号）
type Sign struct {
	ID    int32    // 信号ID
	Kind  SignKind // 标志类型
	Green bool     // 当前是否为绿灯，仅对SignTrafficLight有意义
}

// IsTrafficLight 检查标志是否为可控信号灯
func (s *Sign) IsTrafficLight() bool {
	return s != nil && s.Kind == SignTrafficLight
}

// RoadUser 道路使用者（车辆）
type RoadUser struct {
	ID          int32   // 车辆ID
	Destination int32   // 目的地（路网出口）ID
	Passengers  float64 // 乘客数，作为收益的权重
}

// WaitingRoadUser 在某一信号前排队的道路使用者
type WaitingRoadUser struct {
	RoadUser
	Position int32 // 距信号的位置桶
}

// PosMov 一个候选的下一状态（信号, 位置）
type PosMov struct {
	Signal   int32
	Position int32
}

func (p PosMov) String() string {
	return fmt.Sprintf("(%d,%d)", p.Signal, p.Position)
}

// Move 一次道路使用者移动通知
// 功能：描述一个道路使用者在一个仿真步内从(PrevLane, PrevPos)移动到(CurLane, CurPos)
// 说明：
// 1. CurSign为nil表示驶离路网，该移动不参与学习
// 2. Candidates为该车在上一状态下所有可能到达的下一状态（含原地不动）
// 3. DesiredLane为路径规划给出的期望下一车道，仅用于记录
type Move struct {
	RoadUser    RoadUser
	PrevLane    int32
	PrevSign    Sign
	PrevPos     int32
	CurLane     int32
	CurSign     *Sign
	CurPos      int32
	Candidates  []PosMov
	DesiredLane int32
}

func (m *Move) String() string {
	cur := "exit"
	if m.CurSign != nil {
		cur = fmt.Sprintf("%d@%d", m.CurLane, m.CurPos)
	}
	return fmt.Sprintf("Move{ru=%d, %d@%d -> %s}", m.RoadUser.ID, m.PrevLane, m.PrevPos, cur)
}

// SignalInfo 路网中一个信号的静态信息
type SignalInfo struct {
	ID         int32    // 信号ID
	Kind       SignKind // 标志类型
	Length     int32    // 车道位置桶数，位置取值0..Length-1
	JunctionID int32    // 信号所在路口ID，驶出路网的车道为-1
}

// entity/lane/lane.go的依赖倒置
type ILane interface {
	ID() int32                       // 获取Lane ID
	Info() SignalInfo                // 获取Lane对应信号的静态信息
	Sign() Sign                      // 获取Lane末端标志（含当前灯色）
	Light() mapv2.LightState         // 获取信号灯状态
	SetLight(state mapv2.LightState) // 设置信号灯状态
	Waiting() []WaitingRoadUser      // 获取排队的道路使用者
}

// entity/junction/junction.go的依赖倒置
type IJunction interface {
	ID() int32        // 获取Junction ID
	Signals() []int32 // 获取路口内的信号灯（驶入车道）ID
	Tracked() bool    // 是否输出调试信息
}
