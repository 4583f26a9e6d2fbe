package trafficlight

import "github.com/tsinghua-fib-lab/agentsociety-tlc/entity"

// TC3 拆分中间值的控制器
// Qa只累计实际停留在本信号时获得的回报，W为Qa(红)/Qa(绿)按经验比例的混合；
// V与Q在此基础上叠加全部候选下一状态的折扣价值
type TC3 struct {
	*base
	qa *table
	w  *table
}

func newTC3(b *base) *TC3 {
	return &TC3{
		base: b,
		qa:   newTable("Qa", b.d, 2),
		w:    newTable("W", b.d, 1),
	}
}

// Advance 处理一次移动通知
// 算法说明（顺序不可调换，调用方无法观察到中间状态）：
// 1. W(s) = pG·Qa(s,G) + pR·Qa(s,R)，使用上一事件的Qa
// 2. V(s) = W(s) + pG·Σ P_K(n|s,G)·γ·V(n) + pR·Σ P_K(n|s,R)·γ·V(n)，n取遍候选状态
// 3. Qa(s,L) = P(n'|s,L)·(r(s,n') + γ·W(n'))，n'为实际到达的状态；驶入其他信号时Qa为0
// 4. Q(s,L) = Qa(s,L) + Σ P_K(n|s,L)·γ·V(n)
func (c *TC3) Advance(move entity.Move) error {
	ev, ok, err := c.accept(move)
	if err != nil || !ok {
		return err
	}
	c.observe(&ev)
	if err := c.recalcW(ev.state); err != nil {
		return err
	}
	if err := c.recalcV(&ev); err != nil {
		return err
	}
	if err := c.recalcQa(&ev); err != nil {
		return err
	}
	return c.recalcQ(&ev)
}

func (c *TC3) recalcW(s State) error {
	pG, pR := c.model.GreenRatio(s)
	qaG, err := c.qa.get(s, slotGreen)
	if err != nil {
		return err
	}
	qaR, err := c.qa.get(s, slotRed)
	if err != nil {
		return err
	}
	return c.w.set(s, 0, pG*qaG+pR*qaR)
}

func (c *TC3) recalcV(ev *event) error {
	pG, pR := c.model.GreenRatio(ev.state)
	w, err := c.w.get(ev.state, 0)
	if err != nil {
		return err
	}
	onGreen, err := c.propagated(ev, true)
	if err != nil {
		return err
	}
	onRed, err := c.propagated(ev, false)
	if err != nil {
		return err
	}
	return c.v.set(ev.state, 0, w+pG*onGreen+pR*onRed)
}

// recalcQa 只使用实际到达的下一状态，不区分排队长度
func (c *TC3) recalcQa(ev *event) error {
	qa := 0.
	if n := ev.next; n.Signal == ev.state.Signal {
		w, err := c.w.get(n.with(ev.state.Destination), 0)
		if err != nil {
			return err
		}
		p := c.model.Probability(ev.state, ev.green, n, AnyQueue)
		qa = p * (reward(ev.state, n) + c.cfg.Gamma*w)
	}
	return c.qa.set(ev.state, slotOf(ev.green), qa)
}

func (c *TC3) recalcQ(ev *event) error {
	qa, err := c.qa.get(ev.state, slotOf(ev.green))
	if err != nil {
		return err
	}
	prop, err := c.propagated(ev, ev.green)
	if err != nil {
		return err
	}
	return c.q.set(ev.state, slotOf(ev.green), qa+prop)
}

// Qa 中间动作价值
func (c *TC3) Qa(s State, green bool) (float64, error) {
	s.Destination = c.d.normalize(s.Destination)
	return c.qa.get(s, slotOf(green))
}

// W 中间状态价值
func (c *TC3) W(s State) (float64, error) {
	s.Destination = c.d.normalize(s.Destination)
	return c.w.get(s, 0)
}

// Reset 清空全部价值表（含Qa/W）与原始计数
func (c *TC3) Reset() {
	c.base.Reset()
	c.qa.reset()
	c.w.reset()
}
