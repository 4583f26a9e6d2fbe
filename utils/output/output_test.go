package output_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/output"
)

type network struct{}

func (network) Signals() []entity.SignalInfo {
	return []entity.SignalInfo{
		{ID: 1, Kind: entity.SignTrafficLight, Length: 2, JunctionID: 10},
		{ID: 2, Kind: entity.SignNone, Length: 2, JunctionID: -1},
	}
}
func (network) Destinations() []int32                  { return []int32{100} }
func (network) Waiting(int32) []entity.WaitingRoadUser { return nil }
func (network) NumWaiting(int32) int32                 { return 0 }

func learnedSnapshot(t *testing.T) *trafficlight.Snapshot {
	c, err := trafficlight.New(trafficlight.VariantTC3, "tlc-network", network{}, nil, trafficlight.DefaultConfig(trafficlight.VariantTC3))
	require.NoError(t, err)
	cur := entity.Sign{ID: 2, Kind: entity.SignNone}
	require.NoError(t, c.Advance(entity.Move{
		RoadUser:   entity.RoadUser{ID: 1, Destination: 100, Passengers: 1},
		PrevLane:   1,
		PrevSign:   entity.Sign{ID: 1, Kind: entity.SignTrafficLight, Green: true},
		CurLane:    2,
		CurSign:    &cur,
		CurPos:     1,
		Candidates: []entity.PosMov{{Signal: 1, Position: 0}},
	}))
	return c.Snapshot()
}

func testStore(t *testing.T, store interface {
	Save(context.Context, *trafficlight.Snapshot) error
	Load(context.Context, string) (*trafficlight.Snapshot, error)
}) {
	ctx := context.Background()
	snap := learnedSnapshot(t)
	require.NoError(t, store.Save(ctx, snap))
	// 覆盖写入
	require.NoError(t, store.Save(ctx, snap))
	got, err := store.Load(ctx, "tlc-network")
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	_, err = store.Load(ctx, "tlc-missing")
	assert.ErrorIs(t, err, trafficlight.ErrSnapshotNotFound)
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	testStore(t, output.NewFileStore(dir))
	_, err := os.Stat(filepath.Join(dir, "tlc-network.bson"))
	assert.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.bson"), []byte("not bson"), 0o644))
	_, err = output.NewFileStore(dir).Load(context.Background(), "broken")
	assert.ErrorIs(t, err, trafficlight.ErrMalformedSnapshot)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TLC_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TLC_TEST_MONGO_URI not set")
	}
	client := mongoutil.NewClient(uri)
	defer client.Disconnect(context.Background())
	o := config.Output{URI: uri, DB: "tlc_test", Col: "snapshots"}
	coll := mongoutil.GetMongoColl(client, o)
	defer coll.Drop(context.Background())
	testStore(t, output.NewMongoStore(coll))
}
