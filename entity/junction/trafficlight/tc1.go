package trafficlight

import "github.com/tsinghua-fib-lab/agentsociety-tlc/entity"

// TC1 基础版控制器
// 按(信号, 位置, 目的地)建表，转移概率不按排队长度分层
type TC1 struct {
	*base
}

// Advance 处理一次移动通知
// 算法说明：
// 1. 记录观测并重算同一起始情形的转移概率
// 2. 重算观测灯色下的Q(s,L)
// 3. 重算V(s)
func (c *TC1) Advance(move entity.Move) error {
	ev, ok, err := c.accept(move)
	if err != nil || !ok {
		return err
	}
	c.observe(&ev)
	if err := c.backupQ(&ev, ev.green, AnyQueue); err != nil {
		return err
	}
	return c.recalcV(ev.state)
}
