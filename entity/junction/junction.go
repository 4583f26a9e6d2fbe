package junction

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/container"
)

// Junction 路口
// 功能：聚合驶入该路口的信号，保存本步各信号灯的收益
type Junction struct {
	ctx entity.ITaskContext

	id      int32
	signals []int32 // 驶入车道（信号）ID，升序
	lights  []int32 // 其中的可控信号灯，升序
	tracked bool    // 是否输出调试信息

	gains map[int32]float64 // 信号灯 -> 本步收益
}

// newJunction 创建路口
// 参数：ctx-任务上下文，id-路口ID，infos-驶入该路口的信号，tracked-是否输出调试信息
func newJunction(ctx entity.ITaskContext, id int32, infos []entity.SignalInfo, tracked bool) *Junction {
	j := &Junction{
		ctx:     ctx,
		id:      id,
		signals: lo.Map(infos, func(s entity.SignalInfo, _ int) int32 { return s.ID }),
		lights: lo.FilterMap(infos, func(s entity.SignalInfo, _ int) (int32, bool) {
			return s.ID, s.Kind == entity.SignTrafficLight
		}),
		tracked: tracked,
		gains:   make(map[int32]float64),
	}
	slices.Sort(j.signals)
	slices.Sort(j.lights)
	return j
}

func (j *Junction) ID() int32 {
	return j.id
}

func (j *Junction) Signals() []int32 {
	return j.signals
}

// Lights 路口内的可控信号灯
func (j *Junction) Lights() []int32 {
	return j.lights
}

func (j *Junction) Tracked() bool {
	return j.tracked
}

// Gain 信号灯本步收益，未计算过的信号返回false
func (j *Junction) Gain(signal int32) (float64, bool) {
	g, ok := j.gains[signal]
	return g, ok
}

// setGains 从全部决策中取出本路口信号灯的收益
func (j *Junction) setGains(gains map[int32]float64) {
	for _, id := range j.lights {
		if g, ok := gains[id]; ok {
			j.gains[id] = g
		}
	}
}

// Ranked 本路口信号灯按收益从高到低排序
func (j *Junction) Ranked() []trafficlight.Decision {
	pq := container.NewPriorityQueue[int32]()
	for _, id := range j.lights {
		if g, ok := j.gains[id]; ok {
			pq.Push(id, -g)
		}
	}
	pq.Heapify()
	out := make([]trafficlight.Decision, 0, pq.Len())
	for pq.Len() > 0 {
		id, negGain := pq.HeapPop()
		out = append(out, trafficlight.Decision{Signal: id, Gain: -negGain})
	}
	return out
}

// logTracked 输出被跟踪路口的收益
func (j *Junction) logTracked() {
	if !j.tracked {
		return
	}
	parts := lo.Map(j.Ranked(), func(d trafficlight.Decision, _ int) string {
		return fmt.Sprintf("%d:%.3f", d.Signal, d.Gain)
	})
	log.Infof("%v junction %d gains [%s]", j.ctx.Clock(), j.id, strings.Join(parts, " "))
}
