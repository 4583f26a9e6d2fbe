package junction_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/clock"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/config"
	"golang.org/x/exp/rand"
)

type testNetwork struct {
	waiting map[int32][]entity.WaitingRoadUser
}

func (n *testNetwork) Signals() []entity.SignalInfo {
	return []entity.SignalInfo{
		{ID: 1, Kind: entity.SignTrafficLight, Length: 3, JunctionID: 10},
		{ID: 2, Kind: entity.SignTrafficLight, Length: 3, JunctionID: 20},
		{ID: 3, Kind: entity.SignTrafficLight, Length: 3, JunctionID: 20},
		{ID: 9, Kind: entity.SignNone, Length: 2, JunctionID: -1},
	}
}
func (n *testNetwork) Destinations() []int32 { return []int32{100, 200} }
func (n *testNetwork) Waiting(signal int32) []entity.WaitingRoadUser {
	return n.waiting[signal]
}
func (n *testNetwork) NumWaiting(signal int32) int32 { return int32(len(n.waiting[signal])) }

type testContext struct {
	clock *clock.Clock
	rc    *config.RuntimeConfig
}

func (c *testContext) Clock() *clock.Clock                      { return c.clock }
func (c *testContext) LaneManager() entity.ILaneManager         { return nil }
func (c *testContext) JunctionManager() entity.IJunctionManager { return nil }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig     { return c.rc }

func newManager(t *testing.T, tlc config.TLC, network entity.INetwork) *junction.JunctionManager {
	zero := 0.
	if tlc.RandomChance == nil {
		tlc.RandomChance = &zero
	}
	rc, err := config.NewRuntimeConfig(config.Config{Control: config.Control{TLC: tlc}})
	require.NoError(t, err)
	m := junction.NewManager(&testContext{clock: clock.New(rc.C.Step), rc: rc})
	m.Init(network)
	return m
}

func newNetwork() *testNetwork {
	return &testNetwork{waiting: map[int32][]entity.WaitingRoadUser{
		1: {{RoadUser: entity.RoadUser{ID: 1, Destination: 100, Passengers: 1}, Position: 0}},
		2: {{RoadUser: entity.RoadUser{ID: 2, Destination: 200, Passengers: 2}, Position: 1}},
	}}
}

// randomMoves 在测试路网上随机生成移动通知
func randomMoves(seed uint64, n int) []entity.Move {
	r := rand.New(rand.NewSource(seed))
	lights := []int32{1, 2, 3}
	moves := make([]entity.Move, 0, n)
	for range n {
		from := lights[r.Intn(len(lights))]
		pos := int32(r.Intn(3))
		to, toPos := from, max(0, pos-1)
		if pos == 0 && r.Intn(2) == 0 {
			to = []int32{1, 2, 3, 9}[r.Intn(4)]
			toPos = 1
		}
		cur := entity.Sign{ID: to, Kind: entity.SignTrafficLight}
		if to == 9 {
			cur.Kind = entity.SignNone
		}
		moves = append(moves, entity.Move{
			RoadUser:   entity.RoadUser{ID: int32(r.Intn(10)), Destination: []int32{100, 200}[r.Intn(2)], Passengers: 1},
			PrevLane:   from,
			PrevSign:   entity.Sign{ID: from, Kind: entity.SignTrafficLight, Green: r.Intn(2) == 0},
			PrevPos:    pos,
			CurLane:    to,
			CurSign:    &cur,
			CurPos:     toPos,
			Candidates: []entity.PosMov{{Signal: from, Position: pos}, {Signal: to, Position: toPos}},
		})
	}
	return moves
}

func TestInitNetworkPartition(t *testing.T) {
	m := newManager(t, config.TLC{Variant: "tc2"}, newNetwork())
	require.Len(t, m.Controllers(), 1)
	c := m.Controllers()[0]
	assert.Equal(t, "tlc-network", c.Name())
	assert.Equal(t, trafficlight.VariantTC2, c.Variant())
	assert.Equal(t, 3, c.NumTrafficLights())

	assert.Equal(t, []int32{1}, m.Get(10).Signals())
	assert.Equal(t, []int32{2, 3}, m.Get(20).Signals())
	_, err := m.GetOrError(-1)
	assert.Error(t, err)
	assert.Panics(t, func() { m.Get(30) })
}

func TestInitJunctionPartition(t *testing.T) {
	m := newManager(t, config.TLC{Variant: "tlc-tc3-work-in-progress", Partition: "junction", Seed: 7}, newNetwork())
	names := make([]string, 0)
	for _, c := range m.Controllers() {
		names = append(names, c.Name())
		assert.Equal(t, trafficlight.VariantTC3, c.Variant())
	}
	assert.Equal(t, []string{"tlc-junction-10", "tlc-junction-20", "tlc-exits"}, names)
	assert.Equal(t, uint64(8), m.Controllers()[1].Config().Seed)
	owner, ok := m.Owner(9)
	require.True(t, ok)
	assert.Equal(t, "tlc-exits", owner.Name())
}

func TestControllerConfig(t *testing.T) {
	gamma, yes := 0.5, true
	variant, cfg, err := junction.ControllerConfig(config.TLC{Variant: "tc3", Gamma: &gamma, Destinationless: &yes})
	require.NoError(t, err)
	assert.Equal(t, trafficlight.VariantTC3, variant)
	assert.Equal(t, 0.5, cfg.Gamma)
	assert.Equal(t, 0.01, cfg.RandomChance)
	assert.True(t, cfg.Destinationless)

	_, _, err = junction.ControllerConfig(config.TLC{Variant: "tc1", Destinationless: &yes})
	assert.Error(t, err)
	_, _, err = junction.ControllerConfig(config.TLC{Variant: "max-pressure"})
	assert.ErrorIs(t, err, trafficlight.ErrUnknownVariant)
}

func TestPartitionsAgree(t *testing.T) {
	for _, variant := range []string{"tc1", "tc2", "tc3"} {
		t.Run(variant, func(t *testing.T) {
			n := newNetwork()
			whole := newManager(t, config.TLC{Variant: variant}, n)
			split := newManager(t, config.TLC{Variant: variant, Partition: "junction"}, n)
			for i, mv := range randomMoves(5, 1200) {
				require.NoError(t, whole.Notify(mv))
				require.NoError(t, split.Notify(mv))
				if i%100 == 99 {
					require.NoError(t, whole.Update())
					require.NoError(t, split.Update())
					require.Len(t, split.Decisions(), 3)
					for k, d := range whole.Decisions() {
						assert.Equal(t, d.Signal, split.Decisions()[k].Signal)
						assert.InDelta(t, d.Gain, split.Decisions()[k].Gain, 1e-9)
					}
				}
			}
		})
	}
}

func TestUpdateGains(t *testing.T) {
	tracked := int32(20)
	m := newManager(t, config.TLC{Variant: "tc1", TrackJunction: &tracked}, newNetwork())
	assert.True(t, m.Get(20).Tracked())
	require.NoError(t, m.Update())
	assert.Equal(t, []trafficlight.Decision{{Signal: 1}, {Signal: 2}, {Signal: 3}}, m.Decisions())

	for _, mv := range randomMoves(3, 500) {
		require.NoError(t, m.Notify(mv))
	}
	require.NoError(t, m.Update())
	j, ok := m.Junction(20)
	require.True(t, ok)
	ranked := j.Ranked()
	require.Len(t, ranked, 2)
	assert.GreaterOrEqual(t, ranked[0].Gain, ranked[1].Gain)
	g, ok := j.Gain(2)
	require.True(t, ok)
	assert.Equal(t, m.Decisions()[1].Gain, g)
	// 信号3无人排队
	assert.Zero(t, m.Decisions()[2].Gain)

	m.Reset()
	assert.Nil(t, m.Decisions())
	require.NoError(t, m.Update())
	for _, d := range m.Decisions() {
		assert.Zero(t, d.Gain)
	}
}

func TestUpdateExploresWholeTick(t *testing.T) {
	half := 0.5
	m := newManager(t, config.TLC{Variant: "tc2", Partition: "junction", RandomChance: &half}, newNetwork())
	require.Len(t, m.Controllers(), 3)
	explored, computed := 0, 0
	for range 200 {
		require.NoError(t, m.Update())
		require.Len(t, m.Decisions(), 3)
		// 未学习时计算出的收益恒为0，随机收益几乎不可能为0
		zeros := lo.CountBy(m.Decisions(), func(d trafficlight.Decision) bool { return d.Gain == 0 })
		switch zeros {
		case 0:
			explored++
		case len(m.Decisions()):
			computed++
		default:
			t.Fatalf("tick mixes random and computed gains: %v", m.Decisions())
		}
	}
	assert.Positive(t, explored)
	assert.Positive(t, computed)
}

func TestNotifyUnknownSignal(t *testing.T) {
	m := newManager(t, config.TLC{Variant: "tc1"}, newNetwork())
	mv := randomMoves(1, 1)[0]
	mv.PrevSign.ID, mv.PrevLane = 42, 42
	assert.NoError(t, m.Notify(mv))

	// 越界位置
	mv = randomMoves(1, 1)[0]
	mv.PrevPos = 5
	mv.Candidates[0].Position = 5
	assert.ErrorIs(t, m.Notify(mv), trafficlight.ErrDimension)
}

func TestColearn(t *testing.T) {
	m := newManager(t, config.TLC{Variant: "tc2", Partition: "junction"}, newNetwork())
	for _, mv := range randomMoves(9, 300) {
		require.NoError(t, m.Notify(mv))
	}
	_, err := m.Colearn(2, 1, 100, 0)
	assert.NoError(t, err)
	_, err = m.Colearn(2, 42, 100, 0)
	assert.Error(t, err)
}

type memStore map[string]*trafficlight.Snapshot

func (s memStore) Save(_ context.Context, snap *trafficlight.Snapshot) error {
	s[snap.Name] = snap
	return nil
}

func (s memStore) Load(_ context.Context, name string) (*trafficlight.Snapshot, error) {
	snap, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", trafficlight.ErrSnapshotNotFound, name)
	}
	return snap, nil
}

func TestSaveLoad(t *testing.T) {
	n := newNetwork()
	moves := randomMoves(11, 600)
	m := newManager(t, config.TLC{Variant: "tc2", Partition: "junction"}, n)
	for _, mv := range moves[:300] {
		require.NoError(t, m.Notify(mv))
	}
	store := memStore{}
	require.NoError(t, m.Save(context.Background(), store))
	assert.Len(t, store, 3)

	restored := newManager(t, config.TLC{Variant: "tc2", Partition: "junction"}, n)
	require.NoError(t, restored.Load(context.Background(), store))
	for _, mv := range moves[300:] {
		require.NoError(t, m.Notify(mv))
		require.NoError(t, restored.Notify(mv))
	}
	require.NoError(t, m.Update())
	require.NoError(t, restored.Update())
	assert.Equal(t, m.Decisions(), restored.Decisions())

	other := newManager(t, config.TLC{Variant: "tc2"}, n)
	assert.ErrorIs(t, other.Load(context.Background(), store), trafficlight.ErrSnapshotNotFound)
}
