package trafficlight_test

import (
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity/junction/trafficlight"
)

// testNetwork 三个信号灯车道（1、2、3，长度3）加一个驶出路网的无信号车道（9），目的地100/200
type testNetwork struct {
	signals []entity.SignalInfo
	dests   []int32
	waiting map[int32][]entity.WaitingRoadUser
}

func newTestNetwork() *testNetwork {
	return &testNetwork{
		signals: []entity.SignalInfo{
			{ID: 1, Kind: entity.SignTrafficLight, Length: 3, JunctionID: 10},
			{ID: 2, Kind: entity.SignTrafficLight, Length: 3, JunctionID: 20},
			{ID: 3, Kind: entity.SignTrafficLight, Length: 3, JunctionID: 20},
			{ID: 9, Kind: entity.SignNone, Length: 2, JunctionID: -1},
		},
		dests:   []int32{100, 200},
		waiting: make(map[int32][]entity.WaitingRoadUser),
	}
}

func (n *testNetwork) Signals() []entity.SignalInfo { return n.signals }
func (n *testNetwork) Destinations() []int32        { return n.dests }
func (n *testNetwork) Waiting(signal int32) []entity.WaitingRoadUser {
	return n.waiting[signal]
}
func (n *testNetwork) NumWaiting(signal int32) int32 {
	return int32(len(n.waiting[signal]))
}

func (n *testNetwork) wait(signal, pos, dest int32, passengers float64) {
	n.waiting[signal] = append(n.waiting[signal], entity.WaitingRoadUser{
		RoadUser: entity.RoadUser{ID: int32(len(n.waiting[signal])), Destination: dest, Passengers: passengers},
		Position: pos,
	})
}

func sign(id int32, green bool) entity.Sign {
	return entity.Sign{ID: id, Kind: entity.SignTrafficLight, Green: green}
}

// move 构造一次移动通知，候选状态为原地不动与实际到达的状态
func move(dest, from, fromPos int32, green bool, to, toPos int32) entity.Move {
	cur := sign(to, false)
	if to == 9 {
		cur = entity.Sign{ID: 9, Kind: entity.SignNone}
	}
	return entity.Move{
		RoadUser:    entity.RoadUser{ID: 1, Destination: dest, Passengers: 1},
		PrevLane:    from,
		PrevSign:    sign(from, green),
		PrevPos:     fromPos,
		CurLane:     to,
		CurSign:     &cur,
		CurPos:      toPos,
		Candidates:  []entity.PosMov{{Signal: from, Position: fromPos}, {Signal: to, Position: toPos}},
		DesiredLane: to,
	}
}

func newController(variant trafficlight.Variant, n *testNetwork, owned []int32, mutate ...func(*trafficlight.Config)) trafficlight.Controller {
	cfg := trafficlight.DefaultConfig(variant)
	cfg.RandomChance = 0
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := trafficlight.New(variant, "tlc-"+string(variant), n, owned, cfg)
	if err != nil {
		panic(err)
	}
	return c
}

func st(signal, pos, dest int32) trafficlight.State {
	return trafficlight.State{Signal: signal, Position: pos, Destination: dest}
}
