package task_test

import (
	"os"
	"path/filepath"
	"testing"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/task"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/input"
)

func line(length float64) *geov2.Polyline {
	return &geov2.Polyline{Nodes: []*geov2.XYPosition{{X: 0, Y: 0}, {X: length, Y: 0}}}
}

// 道路1(车道11、12) -> 路口100 -> 道路2(车道21)
func testMap() *mapv2.Map {
	driving := mapv2.LaneType_LANE_TYPE_DRIVING
	return &mapv2.Map{
		Lanes: []*mapv2.Lane{
			{Id: 11, Type: driving, CenterLine: line(30), Successors: []*mapv2.LaneConnection{{Id: 101}}},
			{Id: 12, Type: driving, CenterLine: line(30), Successors: []*mapv2.LaneConnection{{Id: 102}}},
			{Id: 101, Type: driving, CenterLine: line(10), Successors: []*mapv2.LaneConnection{{Id: 21}}},
			{Id: 102, Type: driving, CenterLine: line(10), Successors: []*mapv2.LaneConnection{{Id: 21}}},
			{Id: 21, Type: driving, CenterLine: line(15)},
		},
		Roads: []*mapv2.Road{
			{Id: 1, LaneIds: []int32{11, 12}},
			{Id: 2, LaneIds: []int32{21}},
		},
		Junctions: []*mapv2.Junction{{
			Id:      100,
			LaneIds: []int32{101, 102},
			Phases: []*mapv2.AvailablePhase{{States: []mapv2.LightState{
				mapv2.LightState_LIGHT_STATE_GREEN, mapv2.LightState_LIGHT_STATE_RED,
			}}},
		}},
	}
}

const replayYaml = `
steps:
  - lights: {11: green, 12: red}
    queues:
      11: [{id: 1, dest: 2, s: 25}]
      12: [{id: 2, dest: 2, s: 28}, {id: 3, dest: 2, s: 20}]
  - moves:
      - {id: 1, dest: 2, from: 11, from_s: 25, to: 21, to_s: 2, desired: 21}
      - {id: 2, dest: 2, from: 12, from_s: 28, to: 12, to_s: 28}
      - {id: 3, dest: 2, from: 12, from_s: 20, to: 12, to_s: 21}
  - lights: {11: red, 12: green}
    queues:
      11: []
      12: [{id: 3, dest: 2, s: 21}]
    moves:
      - {id: 2, dest: 2, from: 12, from_s: 28, to: 21, to_s: 1, desired: 21}
  - moves:
      - {id: 3, dest: 2, from: 12, from_s: 21, to: 12, to_s: 27}
      - {id: 1, dest: 2, from: 21, from_s: 2, to: 21, to_s: 14}
  - moves:
      - {id: 1, dest: 2, from: 21, from_s: 14, to: -1, to_s: 0}
`

func newTask(t *testing.T, tlc config.TLC, o *config.Output, total int32) *task.Context {
	zero := 0.
	tlc.RandomChance = &zero
	c := config.Config{
		Control: config.Control{Step: config.ControlStep{Interval: 1, Total: total}, TLC: tlc},
		Output:  o,
	}
	replay, err := input.ParseReplay([]byte(replayYaml))
	require.NoError(t, err)
	return task.NewContextWithInput("test", c, &input.Input{Map: testMap(), Replay: replay}, nil)
}

func TestRunSavesSnapshots(t *testing.T) {
	dir := t.TempDir()
	for _, variant := range []string{"tc1", "tc2", "tc3"} {
		t.Run(variant, func(t *testing.T) {
			out := filepath.Join(dir, variant)
			ctx := newTask(t, config.TLC{Variant: variant, Partition: "junction"}, &config.Output{Dir: out, Save: true}, 0)
			ctx.Run()
			assert.Equal(t, int32(5), ctx.Clock().Elapsed())
			decisions := ctx.Junctions().Decisions()
			require.Len(t, decisions, 2)
			assert.Equal(t, int32(11), decisions[0].Signal)
			assert.Equal(t, int32(12), decisions[1].Signal)

			for _, name := range []string{"tlc-junction-100", "tlc-exits"} {
				_, err := os.Stat(filepath.Join(out, name+".bson"))
				assert.NoError(t, err)
			}
			want := ctx.Junctions().Controllers()[0].Snapshot()
			assert.NotEmpty(t, want.Observations)

			restored := newTask(t, config.TLC{Variant: variant, Partition: "junction"}, &config.Output{Dir: out, Load: true}, 0)
			restored.Init()
			assert.Equal(t, want, restored.Junctions().Controllers()[0].Snapshot())
		})
	}
}

func TestLoadMissingSnapshotPanics(t *testing.T) {
	ctx := newTask(t, config.TLC{Variant: "tc1"}, &config.Output{Dir: t.TempDir(), Load: true}, 0)
	assert.Panics(t, ctx.Init)
}

func TestStepLimits(t *testing.T) {
	ctx := newTask(t, config.TLC{Variant: "tc2"}, nil, 2)
	ctx.Init()
	assert.True(t, ctx.Step())
	assert.True(t, ctx.Step())
	assert.False(t, ctx.Step())

	ctx = newTask(t, config.TLC{Variant: "tc2"}, nil, 0)
	ctx.Init()
	assert.True(t, ctx.Step())
	ctx.Stop()
	assert.False(t, ctx.Step())
	assert.NoError(t, ctx.Save())
}

func TestReplayAppliesQueues(t *testing.T) {
	ctx := newTask(t, config.TLC{Variant: "tc1"}, nil, 0)
	ctx.Init()
	for ctx.Step() {
	}
	lm := ctx.LaneManager()
	assert.Zero(t, lm.NumWaiting(11))
	assert.Equal(t, int32(1), lm.NumWaiting(12))
	assert.Equal(t, int32(1), lm.Waiting(12)[0].Position)
}
