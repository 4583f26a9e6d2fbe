package trafficlight

import (
	"flag"
	"fmt"
	"strings"
)

var (
	gainWarnTC1 = flag.Float64("tlc.gain_warn_tc1", 1000, "TC1收益告警阈值")
	gainWarnTC2 = flag.Float64("tlc.gain_warn_tc2", 50, "TC2/TC3收益告警阈值")
)

// Variant 控制器类型
type Variant string

const (
	VariantTC1 Variant = "tc1" // 基础版：按目的地建表，不按排队长度分层
	VariantTC2 Variant = "tc2" // 按排队长度分层，目的地折叠
	VariantTC3 Variant = "tc3" // 拆分Qa/W中间值
)

// ParseVariant 解析控制器类型名，兼容旧的短名
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tc1", "tlc-tc1o1", "tc-1", "tc1opt":
		return VariantTC1, nil
	case "tc2", "tlc-tc2-destless", "tc-2", "tc2destless":
		return VariantTC2, nil
	case "tc3", "tlc-tc3-work-in-progress", "tc-3", "tc3wip":
		return VariantTC3, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

// Config 单个控制器实例的参数
type Config struct {
	Gamma           float64 // 折扣因子，取值(0,1)
	RandomChance    float64 // 每步整体随机探索的概率，取值[0,1]
	Destinationless bool    // 是否把所有目的地折叠为一个桶
	Seed            uint64  // 探索随机数种子
}

// DefaultConfig 各控制器类型的默认参数
// 说明：TC1折扣因子0.90，TC2/TC3为0.95；TC2默认目的地折叠
func DefaultConfig(v Variant) Config {
	c := Config{Gamma: 0.95, RandomChance: 0.01}
	switch v {
	case VariantTC1:
		c.Gamma = 0.90
	case VariantTC2:
		c.Destinationless = true
	}
	return c
}

// Validate 检查参数取值范围
func (c Config) Validate(v Variant) error {
	if !(c.Gamma > 0 && c.Gamma < 1) {
		return fmt.Errorf("tlc: gamma %v out of (0,1)", c.Gamma)
	}
	if !(c.RandomChance >= 0 && c.RandomChance <= 1) {
		return fmt.Errorf("tlc: random chance %v out of [0,1]", c.RandomChance)
	}
	if v == VariantTC1 && c.Destinationless {
		return fmt.Errorf("tlc: %s does not support destinationless tables", v)
	}
	return nil
}

func gainWarnBound(v Variant) float64 {
	if v == VariantTC1 {
		return *gainWarnTC1
	}
	return *gainWarnTC2
}
