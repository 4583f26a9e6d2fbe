package trafficlight

import (
	"errors"
	"fmt"
)

var (
	// ErrDimension 索引超出控制器初始化时确定的表边界
	ErrDimension = errors.New("tlc: index out of table bounds")
	// ErrMalformedSnapshot 持久化数据与控制器不匹配或内容损坏
	ErrMalformedSnapshot = errors.New("tlc: malformed snapshot")
	// ErrUnknownVariant 未知的控制器类型
	ErrUnknownVariant = errors.New("tlc: unknown controller variant")
	// ErrSnapshotNotFound 存储中没有该控制器的快照
	ErrSnapshotNotFound = errors.New("tlc: snapshot not found")
)

// DimensionError 表索引越界错误
// 功能：记录越界访问的表名与完整索引，便于定位
// 说明：越界永远不会被截断或回绕，调用方应使用errors.Is(err, ErrDimension)判断
type DimensionError struct {
	Table       string
	Signal      int32
	Position    int32
	Destination int32
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("tlc: %s[signal=%d, pos=%d, dest=%d] out of bounds",
		e.Table, e.Signal, e.Position, e.Destination)
}

func (e *DimensionError) Is(target error) bool {
	return target == ErrDimension
}
