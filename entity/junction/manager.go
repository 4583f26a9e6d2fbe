package junction

import (
	"context"
	"fmt"
	"slices"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/config"
)

const (
	networkControllerName = "tlc-network"
	exitControllerName    = "tlc-exits"
)

// SnapshotStore 控制器快照的持久化
type SnapshotStore interface {
	Save(ctx context.Context, snap *trafficlight.Snapshot) error
	// Load 读取快照，不存在时返回包装了trafficlight.ErrSnapshotNotFound的错误
	Load(ctx context.Context, name string) (*trafficlight.Snapshot, error)
}

// group 一个控制器拥有的信号
type group struct {
	index int
	name  string
	owned []int32 // nil表示全路网
}

// JunctionManager 路口与信控管理器
// 功能：按配置划分控制器，把移动通知分发给拥有上一信号的控制器，每步汇总所有信号灯的收益
type JunctionManager struct {
	ctx entity.ITaskContext

	data      map[int32]*Junction
	junctions []*Junction

	controllers []trafficlight.Controller
	owners      map[int32]trafficlight.Controller // 信号 -> 控制器
	registry    *trafficlight.Registry

	decisions []trafficlight.Decision // 本步收益（按信号ID升序）
}

// NewManager 创建Junction管理器实例
// 参数：ctx-任务上下文
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		data:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
		owners:    make(map[int32]trafficlight.Controller),
	}
}

// ControllerConfig 由信控学习配置得到控制器类型与参数
// 说明：未设置的可选项取该控制器类型的默认值
func ControllerConfig(tlc config.TLC) (trafficlight.Variant, trafficlight.Config, error) {
	variant, err := trafficlight.ParseVariant(tlc.Variant)
	if err != nil {
		return "", trafficlight.Config{}, err
	}
	cfg := trafficlight.DefaultConfig(variant)
	if tlc.Gamma != nil {
		cfg.Gamma = *tlc.Gamma
	}
	if tlc.RandomChance != nil {
		cfg.RandomChance = *tlc.RandomChance
	}
	if tlc.Destinationless != nil {
		cfg.Destinationless = *tlc.Destinationless
	}
	cfg.Seed = tlc.Seed
	return variant, cfg, cfg.Validate(variant)
}

// Init 初始化路口与控制器
// 功能：按信号所在路口建立Junction，按划分方式创建控制器并绑定协同查询
// 参数：network-路网
// 算法说明：
// 1. network划分：一个控制器拥有全部信号
// 2. junction划分：每个路口一个控制器，驶离路网的信号归入单独的控制器
// 3. 控制器并行创建，第i个控制器的随机数种子为seed+i
// 说明：配置或数据错误不可恢复，直接panic
func (m *JunctionManager) Init(network entity.INetwork) {
	tlc := m.ctx.RuntimeConfig().C.TLC
	variant, cfg, err := ControllerConfig(tlc)
	if err != nil {
		log.Panicf("bad tlc config: %v", err)
	}

	byJunction := lo.GroupBy(network.Signals(), func(s entity.SignalInfo) int32 { return s.JunctionID })
	ids := lo.Keys(byJunction)
	slices.Sort(ids)
	for _, id := range ids {
		if id == -1 {
			continue
		}
		tracked := tlc.TrackJunction != nil && *tlc.TrackJunction == id
		j := newJunction(m.ctx, id, byJunction[id], tracked)
		m.junctions = append(m.junctions, j)
	}
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) { return j.id, j })
	if tlc.TrackJunction != nil {
		if _, ok := m.data[*tlc.TrackJunction]; !ok {
			log.Warnf("tracked junction %d has no signal", *tlc.TrackJunction)
		}
	}

	var groups []group
	switch tlc.Partition {
	case config.PartitionJunction:
		for _, j := range m.junctions {
			groups = append(groups, group{index: len(groups), name: fmt.Sprintf("tlc-junction-%d", j.id), owned: j.signals})
		}
		if exits, ok := byJunction[-1]; ok {
			groups = append(groups, group{index: len(groups), name: exitControllerName, owned: lo.Map(exits, func(s entity.SignalInfo, _ int) int32 { return s.ID })})
		}
	default:
		groups = []group{{name: networkControllerName}}
	}
	m.controllers = parallel.GoMap(groups, func(g group) trafficlight.Controller {
		c := cfg
		c.Seed += uint64(g.index)
		ctrl, err := trafficlight.New(variant, g.name, network, g.owned, c)
		if err != nil {
			log.Panicf("create controller %s: %v", g.name, err)
		}
		return ctrl
	})
	if m.registry, err = trafficlight.NewRegistry(m.controllers...); err != nil {
		log.Panicf("register controllers: %v", err)
	}
	m.registry.Bind()
	for _, c := range m.controllers {
		for _, s := range c.Signals() {
			m.owners[s] = c
		}
	}
	numLights := lo.SumBy(m.controllers, func(c trafficlight.Controller) int { return c.NumTrafficLights() })
	log.Infof("junction: %d junctions, %d %s controllers (%s), %d traffic lights",
		len(m.junctions), len(m.controllers), variant, tlc.Partition, numLights)
}

// Get 获取指定ID的Junction，不存在则panic
func (m *JunctionManager) Get(id int32) entity.IJunction {
	if j, ok := m.data[id]; !ok {
		log.Panicf("no id %d in junction data", id)
		return nil
	} else {
		return j
	}
}

// GetOrError 获取指定ID的Junction，不存在则返回error
func (m *JunctionManager) GetOrError(id int32) (entity.IJunction, error) {
	if j, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in junction data", id)
	} else {
		return j, nil
	}
}

// Junction 获取指定ID的Junction实体
func (m *JunctionManager) Junction(id int32) (*Junction, bool) {
	j, ok := m.data[id]
	return j, ok
}

func (m *JunctionManager) Controllers() []trafficlight.Controller {
	return m.controllers
}

// Owner 拥有该信号的控制器
func (m *JunctionManager) Owner(signal int32) (trafficlight.Controller, bool) {
	c, ok := m.owners[signal]
	return c, ok
}

// Notify 处理一次移动通知
// 说明：交给拥有上一信号的控制器；上一信号不属于任何控制器的移动被忽略
func (m *JunctionManager) Notify(move entity.Move) error {
	c, ok := m.owners[move.PrevSign.ID]
	if !ok {
		log.Debugf("ignore %v: signal %d has no controller", &move, move.PrevSign.ID)
		return nil
	}
	if err := c.Advance(move); err != nil {
		return fmt.Errorf("%s: %w", c.Name(), err)
	}
	return nil
}

// Update 计算本步全部信号灯的收益
// 说明：探索硬币每步只由第一个控制器抛一次，全部控制器共用；
// 控制器按创建顺序依次计算，保证相同种子下探索序列可复现
func (m *JunctionManager) Update() error {
	explore := len(m.controllers) > 0 && m.controllers[0].Explore()
	if explore {
		log.Debugf("%v explore", m.ctx.Clock())
	}
	decisions := make([]trafficlight.Decision, 0)
	for _, c := range m.controllers {
		ds, err := c.Decide(explore)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Name(), err)
		}
		decisions = append(decisions, ds...)
	}
	slices.SortFunc(decisions, func(a, b trafficlight.Decision) int { return int(a.Signal) - int(b.Signal) })
	m.decisions = decisions
	gains := lo.SliceToMap(decisions, func(d trafficlight.Decision) (int32, float64) { return d.Signal, d.Gain })
	for _, j := range m.junctions {
		j.setGains(gains)
		j.logTracked()
	}
	return nil
}

// Decisions 本步全部信号灯的收益（按信号ID升序）
func (m *JunctionManager) Decisions() []trafficlight.Decision {
	return m.decisions
}

// Colearn 向拥有queried信号的控制器查询协同价值
// 说明：供道路使用者的选道策略查询，回放本身不调用
func (m *JunctionManager) Colearn(asking, queried, dest, pos int32) (float64, error) {
	c, ok := m.owners[queried]
	if !ok {
		return 0, fmt.Errorf("colearn: signal %d has no controller", queried)
	}
	return c.ColearnValue(asking, queried, dest, pos)
}

// Reset 清空所有控制器的价值表与计数
func (m *JunctionManager) Reset() {
	for _, c := range m.controllers {
		c.Reset()
	}
	m.decisions = nil
}

// Save 保存全部控制器的快照
func (m *JunctionManager) Save(ctx context.Context, store SnapshotStore) error {
	for _, c := range m.controllers {
		if err := store.Save(ctx, c.Snapshot()); err != nil {
			return fmt.Errorf("save %s: %w", c.Name(), err)
		}
	}
	log.Infof("saved %d controller snapshots", len(m.controllers))
	return nil
}

// Load 按两阶段协议加载全部控制器的快照
// 说明：任何一个控制器缺少快照都视为错误
func (m *JunctionManager) Load(ctx context.Context, store SnapshotStore) error {
	snaps := make(map[string]*trafficlight.Snapshot, len(m.controllers))
	for _, c := range m.controllers {
		snap, err := store.Load(ctx, c.Name())
		if err != nil {
			return fmt.Errorf("load %s: %w", c.Name(), err)
		}
		snaps[c.Name()] = snap
	}
	reg, err := trafficlight.Load(m.controllers, snaps)
	if err != nil {
		return err
	}
	m.registry = reg
	log.Infof("loaded %d controller snapshots", len(m.controllers))
	return nil
}
