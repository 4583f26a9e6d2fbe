package clock

import (
	"fmt"

	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/config"
)

// Clock 仿真时钟
// 功能：管理回放的步数推进，并将步数换算为仿真时间
// 说明：END_STEP为0表示不限制结束步（由移动日志长度决定）
type Clock struct {
	DT         float64 // 每步时间间隔（秒）
	START_STEP int32   // 起始步
	END_STEP   int32   // 结束步，模拟区间[START, END)

	T            float64 // 当前时间（秒）
	InternalStep int32   // 当前步数
}

// New 根据配置创建新的时钟实例
// 参数：stepConfig-控制步配置
// 返回：初始化完成的时钟实例
func New(stepConfig config.ControlStep) *Clock {
	c := &Clock{
		DT:         stepConfig.Interval,
		START_STEP: stepConfig.Start,
	}
	if stepConfig.Total > 0 {
		c.END_STEP = stepConfig.Start + stepConfig.Total
	}
	c.Init()
	return c
}

// Init 将时钟重置到起始步
func (c *Clock) Init() {
	c.InternalStep = c.START_STEP
	c.T = float64(c.InternalStep) * c.DT
}

// Next 推进一步
func (c *Clock) Next() {
	c.InternalStep++
	c.T = float64(c.InternalStep) * c.DT
}

// Done 检查是否已到达结束步
func (c *Clock) Done() bool {
	return c.END_STEP > 0 && c.InternalStep >= c.END_STEP
}

// Elapsed 已完成的步数
func (c *Clock) Elapsed() int32 {
	return c.InternalStep - c.START_STEP
}

// String 获取时钟的字符串表示
// 返回：格式化的时间字符串（step N HH:MM:SS）
func (c *Clock) String() string {
	t := int(c.T)
	return fmt.Sprintf("step %d %02d:%02d:%02d", c.InternalStep, t/3600, t%3600/60, t%60)
}
