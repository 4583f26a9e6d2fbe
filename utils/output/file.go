// 控制器快照的持久化
package output

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity/junction/trafficlight"
	"go.mongodb.org/mongo-driver/bson"
)

// FileStore 本地文件快照存储
// 说明：每个控制器一个bson文件<dir>/<name>.bson
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".bson")
}

// Save 写入快照，先写临时文件再重命名
func (s *FileStore) Save(_ context.Context, snap *trafficlight.Snapshot) error {
	data, err := bson.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.Name, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp := s.path(snap.Name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path(snap.Name)); err != nil {
		return err
	}
	log.Debugf("write snapshot %s (%d bytes)", s.path(snap.Name), len(data))
	return nil
}

// Load 读取快照
func (s *FileStore) Load(_ context.Context, name string) (*trafficlight.Snapshot, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", trafficlight.ErrSnapshotNotFound, s.path(name))
	} else if err != nil {
		return nil, err
	}
	var snap trafficlight.Snapshot
	if err := bson.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", trafficlight.ErrMalformedSnapshot, s.path(name), err)
	}
	return &snap, nil
}
