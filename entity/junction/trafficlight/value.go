package trafficlight

// backupQ 按Bellman方程重算Q(s, green)
// 算法说明：Q(s,L) = Σ_n P(n|s,L[,queue])·(r(s,n) + γ·V(n))，n取遍候选下一状态
func (b *base) backupQ(ev *event, green bool, queue int32) error {
	q := 0.
	for _, n := range ev.candidates {
		p := b.model.Probability(ev.state, green, n, queue)
		if p == 0 {
			continue
		}
		v, err := b.nextV(n.with(ev.state.Destination))
		if err != nil {
			return err
		}
		q += p * (reward(ev.state, n) + b.cfg.Gamma*v)
	}
	return b.q.set(ev.state, slotOf(green), q)
}

// recalcV V(s) = pG·Q(s,G) + pR·Q(s,R)
func (b *base) recalcV(s State) error {
	pG, pR := b.model.GreenRatio(s)
	qG, err := b.q.get(s, slotGreen)
	if err != nil {
		return err
	}
	qR, err := b.q.get(s, slotRed)
	if err != nil {
		return err
	}
	return b.v.set(s, 0, pG*qG+pR*qR)
}

// propagated 候选下一状态的折扣价值：Σ_n P_K(n|s,L)·γ·V(n)，n取遍全部候选状态（含同一信号）
func (b *base) propagated(ev *event, green bool) (float64, error) {
	sum := 0.
	for _, n := range ev.candidates {
		p := b.model.Probability(ev.state, green, n, ev.queue)
		if p == 0 {
			continue
		}
		v, err := b.nextV(n.with(ev.state.Destination))
		if err != nil {
			return 0, err
		}
		sum += p * b.cfg.Gamma * v
	}
	return sum, nil
}
