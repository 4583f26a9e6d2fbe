package trafficlight

import "github.com/tsinghua-fib-lab/agentsociety-tlc/entity"

// TC2 按排队长度分层的控制器，默认把所有目的地折叠为一个桶
type TC2 struct {
	*base
}

// Advance 处理一次移动通知
// 说明：观测灯色为绿且存在驶入其他信号的候选状态时，使用本次排队长度下的分层概率，
// 否则使用按排队长度聚合的概率
func (c *TC2) Advance(move entity.Move) error {
	ev, ok, err := c.accept(move)
	if err != nil || !ok {
		return err
	}
	c.observe(&ev)
	queue := AnyQueue
	if ev.green && ev.crosses() {
		queue = ev.queue
	}
	if err := c.backupQ(&ev, ev.green, queue); err != nil {
		return err
	}
	return c.recalcV(ev.state)
}
