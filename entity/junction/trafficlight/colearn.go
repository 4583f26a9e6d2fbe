package trafficlight

import (
	"fmt"
	"slices"
)

// Registry 信号 -> 拥有者控制器的只读注册表，实现Bridge
// 说明：整个系统由单一仿真循环驱动，查询期间不存在并发写入，无需加锁
type Registry struct {
	owners      map[int32]Controller
	controllers []Controller
}

// NewRegistry 由一组控制器建立注册表，同一信号被多个控制器拥有时返回错误
func NewRegistry(controllers ...Controller) (*Registry, error) {
	r := &Registry{owners: make(map[int32]Controller)}
	for _, c := range controllers {
		if err := r.register(c, c.Signals()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(c Controller, signals []int32) error {
	for _, s := range signals {
		if other, ok := r.owners[s]; ok && other != c {
			return fmt.Errorf("tlc: signal %d owned by both %s and %s", s, other.Name(), c.Name())
		}
		r.owners[s] = c
	}
	if !slices.Contains(r.controllers, c) {
		r.controllers = append(r.controllers, c)
	}
	return nil
}

// Owner 查询拥有该信号的控制器
func (r *Registry) Owner(signal int32) (Colearner, bool) {
	c, ok := r.owners[signal]
	if !ok {
		return nil, false
	}
	return c, true
}

// Controllers 注册表中的全部控制器（按注册顺序）
func (r *Registry) Controllers() []Controller {
	return r.controllers
}

// Bind 把注册表作为Bridge绑定到其中的每个控制器
func (r *Registry) Bind() {
	for _, c := range r.controllers {
		c.BindBridge(r)
	}
}

// ColearnValue TC1不做跨路口协同，恒为0
func (c *TC1) ColearnValue(asking, queried, dest, pos int32) (float64, error) {
	return 0, nil
}

// stratifiedColearn TC2/TC3的跨路口协同值
// 功能：Σ_{p'} P_K((queried,pos,dest),绿 -> (asking,p'))·V(queried,p',dest)
// 参数：asking-发起查询的信号，queried-被查询的信号（必须属于本控制器），dest-目的地，pos-位置
// 说明：K为被查询信号当前的排队数量，p'取遍被查询车道的全部位置
func (b *base) stratifiedColearn(asking, queried, dest, pos int32) (float64, error) {
	if !b.Owns(queried) {
		return 0, fmt.Errorf("tlc: %s asked for signal %d it does not own", b.name, queried)
	}
	s := State{Signal: queried, Position: pos, Destination: b.d.normalize(dest)}
	if _, err := b.d.index("colearn", s); err != nil {
		return 0, err
	}
	k := b.network.NumWaiting(queried)
	sum := 0.
	for p := range b.d.length[queried] {
		pr := b.model.Probability(s, true, Cell{Signal: asking, Position: p}, k)
		if pr == 0 {
			continue
		}
		v, err := b.v.get(State{Signal: queried, Position: p, Destination: s.Destination}, 0)
		if err != nil {
			return 0, err
		}
		sum += pr * v
	}
	return sum, nil
}

// ColearnValue 见stratifiedColearn
func (c *TC2) ColearnValue(asking, queried, dest, pos int32) (float64, error) {
	return c.stratifiedColearn(asking, queried, dest, pos)
}

// ColearnValue 见stratifiedColearn
func (c *TC3) ColearnValue(asking, queried, dest, pos int32) (float64, error) {
	return c.stratifiedColearn(asking, queried, dest, pos)
}
