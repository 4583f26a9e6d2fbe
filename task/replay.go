package task

import (
	"flag"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/input"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// prepare 准备阶段，每步执行一次
// 功能：应用本步移动日志中的灯色与排队
// 算法说明：
// 1. 心跳日志：定期输出回放进度
// 2. 设置灯色：未出现的车道保持上一步的灯色
// 3. 设置排队：s坐标转换为位置桶，Prepare后生效
// 说明：移动日志引用了不存在的车道时不可恢复
func (ctx *Context) prepare(step *input.ReplayStep) {
	if ctx.clock.Elapsed()%int32(*heartBeatInterval) == 0 {
		log.Infof("STEP: %v, replay %d/%d", ctx.clock, ctx.cursor, len(ctx.initRes.Replay.Steps))
	}

	lights := make(map[int32]mapv2.LightState, len(step.Lights))
	for id, name := range step.Lights {
		state, err := input.ParseLight(name)
		if err != nil {
			log.Panicf("step %d lane %d: %v", ctx.clock.InternalStep, id, err)
		}
		lights[id] = state
	}
	if err := ctx.laneManager.SetLights(lights); err != nil {
		log.Panicf("step %d: %v", ctx.clock.InternalStep, err)
	}

	for id, users := range step.Queues {
		l, ok := ctx.laneManager.Lane(id)
		if !ok {
			log.Panicf("step %d: queue on unknown lane %d", ctx.clock.InternalStep, id)
		}
		l.SetWaiting(lo.Map(users, func(u input.ReplayRoadUser, _ int) entity.WaitingRoadUser {
			return entity.WaitingRoadUser{
				RoadUser: entity.RoadUser{ID: u.ID, Destination: u.Destination, Passengers: u.Passengers},
				Position: l.PositionOf(u.S),
			}
		}))
	}
	ctx.laneManager.Prepare()
}

// update 更新阶段，每步执行一次
// 功能：按日志顺序逐个学习本步的移动，全部完成后计算本步收益
// 说明：学习是单线程、同步的；计算错误不可恢复
func (ctx *Context) update(step *input.ReplayStep) {
	for _, m := range step.Moves {
		ru := entity.RoadUser{ID: m.ID, Destination: m.Destination, Passengers: m.Passengers}
		move, err := ctx.laneManager.MoveOf(ru, m.From, m.FromS, m.To, m.ToS, m.Desired)
		if err != nil {
			log.Panicf("step %d: %v", ctx.clock.InternalStep, err)
		}
		if err := ctx.junctionManager.Notify(move); err != nil {
			log.Panicf("step %d: %v", ctx.clock.InternalStep, err)
		}
	}
	if err := ctx.junctionManager.Update(); err != nil {
		log.Panicf("step %d: %v", ctx.clock.InternalStep, err)
	}
	log.Debugf("step %d: %d moves, gains %v", ctx.clock.InternalStep, len(step.Moves), ctx.junctionManager.Decisions())
}

// Step 回放一步
// 返回：移动日志已回放完、到达结束步或已请求停止时返回false
func (ctx *Context) Step() bool {
	steps := ctx.initRes.Replay.Steps
	if ctx.cursor >= len(steps) || ctx.clock.Done() || ctx.closed.Load() {
		return false
	}
	step := &steps[ctx.cursor]
	ctx.prepare(step)
	if ctx.sidecar != nil {
		// 通知准备阶段完成，放行本步的RPC请求
		ctx.sidecar.NotifyStepReady()
	}
	ctx.update(step)
	ctx.cursor++
	ctx.clock.Next()
	return true
}

// last 是否已到达回放的最后一步
func (ctx *Context) last() bool {
	return ctx.cursor >= len(ctx.initRes.Replay.Steps) || ctx.clock.Done()
}

// Run 运行
// 说明：配置了sidecar时每步结束后与syncer同步，syncer要求关闭时提前结束
func (ctx *Context) Run() {
	ctx.Init()
	if ctx.sidecar != nil {
		// init syncer
		ctx.sidecar.Step(false)
	}
	for ctx.Step() {
		if ctx.sidecar != nil && ctx.sidecar.Step(ctx.last()) {
			break
		}
	}
	log.Infof("replay complete at %v", ctx.clock)
	if err := ctx.Save(); err != nil {
		log.Panicf("save snapshots: %v", err)
	}
	ctx.Close()
}
