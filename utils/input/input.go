package input

import (
	"context"

	"git.fiblab.net/general/common/v2/cache"
	"git.fiblab.net/general/common/v2/mongoutil"
	"git.fiblab.net/general/common/v2/protoutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/protobuf/proto"
)

// Input 输入数据
// 功能：存储回放所需的地图与移动日志
type Input struct {
	Map    *mapv2.Map
	Replay *Replay
}

// Init 加载输入数据
// 功能：根据配置加载地图（文件优先，其次MongoDB，支持本地缓存）与移动日志
// 参数：config-配置对象，cacheDir-缓存目录
// 返回：加载完成的输入数据指针
// 说明：任何加载失败都不可恢复，直接panic
func Init(config config.Config, cacheDir string) (res *Input) {
	useCache := preCheckCache(cacheDir)
	if !useCache {
		cacheDir = ""
	}
	res = &Input{}

	if config.Input.Map.File != "" {
		var m mapv2.Map
		if err := protoutil.UnmarshalFromFile(&m, config.Input.Map.File); err != nil {
			log.Panicf("failed to load map from file: %v", err)
		}
		res.Map = &m
	} else {
		var client *mongo.Client
		if config.Input.URI != "" {
			client = mongoutil.NewClient(config.Input.URI)
			defer client.Disconnect(context.Background())
		} else if !config.Input.Map.OnlyCache {
			log.Panicf("input.map needs file, uri or only_cache")
		}
		res.Map = mustLoad[mapv2.Map](client, config.Input.Map, cacheDir, nil, nil)
	}
	log.Infof("map: %d lanes, %d roads, %d junctions", len(res.Map.Lanes), len(res.Map.Roads), len(res.Map.Junctions))

	if config.Input.Replay == "" {
		log.Panicf("input.replay is required")
	}
	replay, err := LoadReplay(config.Input.Replay)
	if err != nil {
		log.Panicf("failed to load replay: %v", err)
	}
	res.Replay = replay
	log.Infof("replay: %d steps, %d moves", len(replay.Steps), replay.NumMoves())
	return
}

// mustLoad 必须加载数据（泛型函数）
// 功能：从MongoDB或缓存中加载数据
// 参数：client-MongoDB客户端，inputPath-输入路径配置，cacheDir-缓存目录，classNameMapper-类名映射器，handler-数据处理函数，opts-查询选项
// 返回：加载的数据对象
func mustLoad[T any, PT interface {
	proto.Message
	*T
}](
	client *mongo.Client,
	inputPath config.InputPath,
	cacheDir string,
	classNameMapper func(string) string,
	handler func(className string, pb any, rawBson bson.Raw) error,
	opts ...*options.FindOptions,
) (res PT) {
	var downloadFunc func() PT
	var err error
	if !inputPath.OnlyCache {
		coll := mongoutil.GetMongoColl(client, inputPath)
		downloadFunc = func() PT {
			pb, errs := mongoutil.DownloadPbFromMongo[T, PT](context.Background(), coll, classNameMapper, handler, opts...)
			if len(errs) > 0 {
				for _, err := range errs {
					log.Errorf("failed to download: %v", err)
				}
				log.Panicln("failed to download")
			}
			return pb
		}
	}
	log.Infof("start fetching from %s.%s", inputPath.DB, inputPath.Col)
	res, err = cache.LoadWithCache(cacheDir, inputPath, downloadFunc)
	if err != nil {
		log.Panicf("failed to load with cache: %v", err)
	}
	log.Infof("finish fetching from %s.%s", inputPath.DB, inputPath.Col)
	return
}
