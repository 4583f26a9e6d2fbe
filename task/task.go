package task

import (
	"context"
	"sync/atomic"

	"git.fiblab.net/general/common/v2/mongoutil"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/clock"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity/junction"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/entity/lane"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/config"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/input"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/output"
)

// Context 回放任务上下文
// 功能：包含一次回放学习任务的所有变量和状态
// 说明：管理时钟、车道（路网）与路口（信控）管理器、快照存储
type Context struct {

	// 任务名
	job string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock

	// Lane管理器
	laneManager *lane.LaneManager
	// Junction管理器
	junctionManager *junction.JunctionManager

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig

	// 用于初始化的输入
	initRes *input.Input
	// 下一个回放步
	cursor int

	// 快照存储，未配置输出时为nil
	store      junction.SnapshotStore
	closeStore func()

	// 辅助程序，提供时钟RPC并在分布式模式下与syncer同步步进，为nil时纯离线回放
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}
}

// SelfName 注册到syncer的服务名
const SelfName = "tlc"

// NewContext 创建新的回放任务上下文
// 参数：job-任务名称，cacheDir-缓存目录，c-配置对象，sidecar-RPC辅助程序（可为nil）
// 说明：下载地图、读取移动日志并创建各管理器
func NewContext(job string, cacheDir string, c config.Config, sidecar *syncer.Sidecar) *Context {
	return NewContextWithInput(job, c, input.Init(c, cacheDir), sidecar)
}

// NewContextWithInput 使用已加载的输入创建回放任务上下文
// 说明：sidecar非nil时注册时钟服务并在后台协程中提供RPC
func NewContextWithInput(job string, c config.Config, in *input.Input, sidecar *syncer.Sidecar) *Context {
	rc, err := config.NewRuntimeConfig(c)
	if err != nil {
		log.Panicf("bad config: %v", err)
	}
	ctx := &Context{
		job:           job,
		runtimeConfig: rc,
		initRes:       in,
		closeStore:    func() {},
		sidecar:       sidecar,
	}
	ctx.clock = clock.New(rc.C.Step)
	ctx.laneManager = lane.NewManager(ctx)
	ctx.junctionManager = junction.NewManager(ctx)
	ctx.store, ctx.closeStore = newStore(c.Output)

	if ctx.sidecar != nil {
		ctx.sidecarCloseCh = make(chan struct{})
		ctx.clock.Register(ctx.sidecar)
		go func() {
			if err := ctx.sidecar.Serve(); err != nil {
				log.Panicf("failed to serve: %v", err)
			}
			ctx.sidecarCloseCh <- struct{}{}
		}()
	}
	return ctx
}

// newStore 根据输出配置创建快照存储
// 说明：本地目录优先于MongoDB
func newStore(o *config.Output) (junction.SnapshotStore, func()) {
	switch {
	case o == nil:
		return nil, func() {}
	case o.Dir != "":
		return output.NewFileStore(o.Dir), func() {}
	case o.URI != "":
		client := mongoutil.NewClient(o.URI)
		coll := mongoutil.GetMongoColl(client, *o)
		return output.NewMongoStore(coll), func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warnf("disconnect mongodb: %v", err)
			}
		}
	}
	return nil, func() {}
}

func (ctx *Context) GetInput() *input.Input {
	return ctx.initRes
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) LaneManager() entity.ILaneManager {
	return ctx.laneManager
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

// Junctions 具体的路口管理器，用于读取收益与保存快照
func (ctx *Context) Junctions() *junction.JunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

// Init 初始化路网与控制器
// 说明：配置了output.load时从存储加载全部控制器快照，加载失败不可恢复
func (ctx *Context) Init() {
	ctx.clock.Init()
	ctx.cursor = 0

	mapData := ctx.initRes.Map
	log.Infof("Lane: %v", len(mapData.Lanes))
	log.Infof("Road: %v", len(mapData.Roads))
	log.Infof("Junction: %v", len(mapData.Junctions))

	ctx.laneManager.Init(mapData)
	ctx.junctionManager.Init(ctx.laneManager)

	if o := ctx.runtimeConfig.All.Output; o != nil && o.Load {
		if err := ctx.junctionManager.Load(context.Background(), ctx.store); err != nil {
			log.Panicf("load snapshots: %v", err)
		}
	}
}

// Save 保存全部控制器快照（配置了output.save时）
func (ctx *Context) Save() error {
	if o := ctx.runtimeConfig.All.Output; o == nil || !o.Save {
		return nil
	}
	return ctx.junctionManager.Save(context.Background(), ctx.store)
}

// Stop 请求在当前步结束后停止回放
func (ctx *Context) Stop() {
	ctx.closed.Store(true)
}

func (ctx *Context) Close() {
	ctx.closeStore()
	ctx.closeStore = func() {}
	if ctx.sidecar != nil {
		ctx.sidecar.Close()
		// wait for graceful stop
		<-ctx.sidecarCloseCh
		ctx.sidecar = nil
	}
}
