package output

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity/junction/trafficlight"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore MongoDB快照存储
// 说明：每个控制器一个文档，以控制器名为_id
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// Save 按控制器名覆盖写入（不存在则插入）
func (s *MongoStore) Save(ctx context.Context, snap *trafficlight.Snapshot) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": snap.Name}, snap, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert snapshot %s into %s: %w", snap.Name, s.coll.Name(), err)
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, name string) (*trafficlight.Snapshot, error) {
	var snap trafficlight.Snapshot
	err := s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s in %s", trafficlight.ErrSnapshotNotFound, name, s.coll.Name())
	} else if err != nil {
		return nil, err
	}
	return &snap, nil
}
