package config

import (
	"fmt"
	"strings"
)

const (
	PartitionNetwork  = "network"  // 整个路网一个控制器
	PartitionJunction = "junction" // 每个路口一个控制器

	defaultPositionLength = 7.5
	defaultReach          = 2
)

// RuntimeConfig 运行时配置
// 功能：存储填充默认值并校验后的配置
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：填充默认值并检查取值
// 算法说明：
// 1. 控制器类型为空时默认tc1，划分方式为空时默认network
// 2. 位置桶长度与每步前进桶数不大于0时使用默认值
// 3. 步长不大于0时默认为1秒
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	rc := &RuntimeConfig{All: config, C: config.Control}
	tlc := &rc.C.TLC
	if tlc.Variant == "" {
		tlc.Variant = "tc1"
	}
	switch tlc.Partition = strings.ToLower(tlc.Partition); tlc.Partition {
	case "":
		tlc.Partition = PartitionNetwork
	case PartitionNetwork, PartitionJunction:
	default:
		return nil, fmt.Errorf("bad tlc.partition %q (want %s or %s)", tlc.Partition, PartitionNetwork, PartitionJunction)
	}
	if tlc.PositionLength <= 0 {
		tlc.PositionLength = defaultPositionLength
	}
	if tlc.Reach <= 0 {
		tlc.Reach = defaultReach
	}
	if rc.C.Step.Interval <= 0 {
		rc.C.Step.Interval = 1
	}
	if o := config.Output; o != nil && o.Dir == "" && o.URI == "" && (o.Load || o.Save) {
		return nil, fmt.Errorf("output.load/save requires output.dir or output.uri")
	}
	return rc, nil
}
