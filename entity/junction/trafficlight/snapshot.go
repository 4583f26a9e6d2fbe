package trafficlight

import (
	"fmt"
	"slices"
)

// Snapshot 控制器的持久化状态
// 说明：只保存数值表与观测计数，概率在加载时由计数重新导出；跨控制器引用使用信号/目的地的整数ID
type Snapshot struct {
	Name            string              `bson:"_id"`
	Variant         Variant             `bson:"variant"`
	Gamma           float64             `bson:"gamma"`
	RandomChance    float64             `bson:"random_chance"`
	Destinationless bool                `bson:"destinationless"`
	Signals         []SignalShape       `bson:"signals"`
	Destinations    []int32             `bson:"destinations"`
	Q               [][][][]float64     `bson:"q"`
	V               [][][]float64       `bson:"v"`
	Qa              [][][][]float64     `bson:"qa,omitempty"`
	W               [][][]float64       `bson:"w,omitempty"`
	Observations    []ObservationRecord `bson:"observations"`
}

// LoadContext 两阶段加载的上下文
// 功能：阶段1中各控制器装入自己的数值表并登记自有信号与目的地；
// 阶段2在所有控制器完成阶段1后解析跨控制器引用并绑定协同查询
type LoadContext struct {
	registry     *Registry
	destinations map[int32]struct{}
	resolving    bool
}

// NewLoadContext 创建空的加载上下文
func NewLoadContext() *LoadContext {
	return &LoadContext{
		registry:     &Registry{owners: make(map[int32]Controller)},
		destinations: make(map[int32]struct{}),
	}
}

// Registry 阶段1登记的信号注册表
func (lc *LoadContext) Registry() *Registry {
	return lc.registry
}

func (lc *LoadContext) hasDestination(dest int32) bool {
	_, ok := lc.destinations[dest]
	return ok
}

// Load 按两阶段协议加载一组控制器
// 参数：snaps-控制器名到快照的映射，缺失的控制器以空表登记
// 返回：阶段2完成后的注册表
func Load(controllers []Controller, snaps map[string]*Snapshot) (*Registry, error) {
	lc := NewLoadContext()
	for _, c := range controllers {
		if err := c.LoadTables(lc, snaps[c.Name()]); err != nil {
			return nil, err
		}
	}
	lc.resolving = true
	for _, c := range controllers {
		if err := c.Resolve(lc); err != nil {
			return nil, err
		}
	}
	return lc.registry, nil
}

func (b *base) snapshot() *Snapshot {
	return &Snapshot{
		Name:            b.name,
		Variant:         b.variant,
		Gamma:           b.cfg.Gamma,
		RandomChance:    b.cfg.RandomChance,
		Destinationless: b.cfg.Destinationless,
		Signals:         slices.Clone(b.d.shapes),
		Destinations:    slices.Clone(b.d.dests),
		Q:               b.q.export(),
		V:               b.v.export3(),
		Observations:    b.model.Observations(),
	}
}

func (b *base) Snapshot() *Snapshot {
	return b.snapshot()
}

// loadTables 阶段1：校验形状、装入数值表与观测计数，并以outer（嵌入base的外层控制器）登记
// 参数：extra-外层控制器已校验的额外数值表
// 说明：全部校验与登记通过后才装入，出错时控制器保持原状
func (b *base) loadTables(lc *LoadContext, snap *Snapshot, outer Controller, extra ...staged) error {
	if lc.resolving {
		return fmt.Errorf("tlc: %s: tables loaded after resolve started", b.name)
	}
	var tables []staged
	if snap != nil {
		var err error
		if tables, err = b.stage(snap); err != nil {
			return err
		}
	}
	if err := lc.registry.register(outer, b.Signals()); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	for _, dest := range b.d.dests {
		lc.destinations[dest] = struct{}{}
	}
	if snap != nil {
		for _, t := range append(tables, extra...) {
			t.install()
		}
		b.model.restore(snap.Observations)
		b.cfg.Gamma = snap.Gamma
		b.cfg.RandomChance = snap.RandomChance
	}
	return nil
}

// stage 校验快照并转换Q/V表，不修改控制器
func (b *base) stage(snap *Snapshot) ([]staged, error) {
	if err := b.checkSnapshot(snap); err != nil {
		return nil, err
	}
	q, err := b.q.parse(snap.Q)
	if err != nil {
		return nil, err
	}
	v, err := b.v.parse3(snap.V)
	if err != nil {
		return nil, err
	}
	for _, r := range snap.Observations {
		s := State{Signal: r.Signal, Position: r.Position, Destination: r.Destination}
		if _, err := b.d.index("observation", s); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedSnapshot, b.name, err)
		}
		if r.Count <= 0 || (r.Queue < 0 && r.Queue != AnyQueue) {
			return nil, fmt.Errorf("%w: %s: bad observation %+v", ErrMalformedSnapshot, b.name, r)
		}
	}
	return []staged{{t: b.q, data: q}, {t: b.v, data: v}}, nil
}

func (b *base) checkSnapshot(snap *Snapshot) error {
	if snap.Name != b.name {
		return fmt.Errorf("%w: snapshot %s loaded into %s", ErrMalformedSnapshot, snap.Name, b.name)
	}
	if snap.Variant != b.variant {
		return fmt.Errorf("%w: %s: variant %q, want %q", ErrMalformedSnapshot, b.name, snap.Variant, b.variant)
	}
	if snap.Destinationless != b.cfg.Destinationless {
		return fmt.Errorf("%w: %s: destinationless=%v, want %v",
			ErrMalformedSnapshot, b.name, snap.Destinationless, b.cfg.Destinationless)
	}
	cfg := b.cfg
	cfg.Gamma, cfg.RandomChance = snap.Gamma, snap.RandomChance
	if err := cfg.Validate(b.variant); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedSnapshot, b.name, err)
	}
	if !slices.Equal(snap.Signals, b.d.shapes) {
		return fmt.Errorf("%w: %s: signal shapes differ from the network", ErrMalformedSnapshot, b.name)
	}
	if !slices.Equal(snap.Destinations, b.d.dests) {
		return fmt.Errorf("%w: %s: destinations differ from the network", ErrMalformedSnapshot, b.name)
	}
	return nil
}

// Resolve 阶段2：检查观测中的下一信号已被某个控制器登记、目的地已知，并绑定协同查询
func (b *base) Resolve(lc *LoadContext) error {
	if !lc.resolving {
		return fmt.Errorf("tlc: %s: resolve before all tables are loaded", b.name)
	}
	for _, r := range b.model.Observations() {
		if _, ok := lc.registry.Owner(r.NextSignal); !ok {
			return fmt.Errorf("%w: %s: next signal %d is not registered", ErrMalformedSnapshot, b.name, r.NextSignal)
		}
		if err := b.net.checkCell("observation", Cell{Signal: r.NextSignal, Position: r.NextPos}); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrMalformedSnapshot, b.name, err)
		}
		if !b.cfg.Destinationless && !lc.hasDestination(r.Destination) {
			return fmt.Errorf("%w: %s: destination %d is unknown", ErrMalformedSnapshot, b.name, r.Destination)
		}
	}
	b.bridge = lc.registry
	return nil
}

// LoadTables 见loadTables
func (c *TC1) LoadTables(lc *LoadContext, snap *Snapshot) error {
	return c.loadTables(lc, snap, c)
}

// LoadTables 见loadTables
func (c *TC2) LoadTables(lc *LoadContext, snap *Snapshot) error {
	return c.loadTables(lc, snap, c)
}

// LoadTables 额外装入Qa/W
func (c *TC3) LoadTables(lc *LoadContext, snap *Snapshot) error {
	if snap == nil {
		return c.loadTables(lc, nil, c)
	}
	qa, err := c.qa.parse(snap.Qa)
	if err != nil {
		return err
	}
	w, err := c.w.parse3(snap.W)
	if err != nil {
		return err
	}
	return c.loadTables(lc, snap, c, staged{t: c.qa, data: qa}, staged{t: c.w, data: w})
}

// Snapshot 额外保存Qa/W
func (c *TC3) Snapshot() *Snapshot {
	snap := c.snapshot()
	snap.Qa = c.qa.export()
	snap.W = c.w.export3()
	return snap
}
