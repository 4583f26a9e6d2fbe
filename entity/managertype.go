package entity

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// Manager依赖倒置

// INetwork 信控引擎所需的路网查询接口
// 功能：以只读方式暴露信号、目的地与排队信息
// 说明：真实的路网物理由外部负责，信控引擎只通过该接口查询
type INetwork interface {
	Signals() []SignalInfo                  // 全部信号（按ID升序）
	Destinations() []int32                  // 全部目的地（按ID升序）
	Waiting(signal int32) []WaitingRoadUser // 在该信号前排队的道路使用者
	NumWaiting(signal int32) int32          // 在该信号前排队的道路使用者数量
}

// entity/lane/manager.go的依赖倒置
type ILaneManager interface {
	INetwork

	Init(m *mapv2.Map) // 初始化

	// 输入Lane ID，查找Lane，如果不存在则panic
	Get(id int32) ILane
	// 输入Lane ID，查找Lane，如果不存在则返回error
	GetOrError(id int32) (ILane, error)

	Prepare() // 准备阶段
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(network INetwork) // 初始化

	// 输入Junction ID，查找Junction，如果不存在则panic
	Get(id int32) IJunction
	// 输入Junction ID，查找Junction，如果不存在则返回error
	GetOrError(id int32) (IJunction, error)

	Notify(move Move) error // 处理一次移动通知
	Update() error          // 更新阶段：计算本步收益
}
