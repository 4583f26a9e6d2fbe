package input

import (
	"fmt"
	"os"
	"strings"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"gopkg.in/yaml.v2"
)

// Replay 移动日志
// 功能：按步记录灯色、排队与道路使用者的移动，供离线回放学习
type Replay struct {
	Steps []ReplayStep `yaml:"steps"`
}

// ReplayStep 一个仿真步
// 说明：灯色与排队在本步移动之前生效；未出现的车道保持上一步的灯色，排队只更新出现的车道
type ReplayStep struct {
	Lights map[int32]string           `yaml:"lights,omitempty"` // 车道 -> green/red/yellow
	Queues map[int32][]ReplayRoadUser `yaml:"queues,omitempty"` // 车道 -> 排队的道路使用者
	Moves  []ReplayMove               `yaml:"moves,omitempty"`
}

// ReplayRoadUser 排队的道路使用者
type ReplayRoadUser struct {
	ID          int32   `yaml:"id"`
	Destination int32   `yaml:"dest"`
	Passengers  float64 `yaml:"passengers,omitempty"` // 默认为1
	S           float64 `yaml:"s"`                    // 车道s坐标
}

// ReplayMove 一次移动
type ReplayMove struct {
	ID          int32   `yaml:"id"`
	Destination int32   `yaml:"dest"`
	Passengers  float64 `yaml:"passengers,omitempty"` // 默认为1
	From        int32   `yaml:"from"`
	FromS       float64 `yaml:"from_s"`
	To          int32   `yaml:"to"` // -1表示驶离路网
	ToS         float64 `yaml:"to_s"`
	Desired     int32   `yaml:"desired,omitempty"`
}

// LoadReplay 从yaml文件读取移动日志
func LoadReplay(path string) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseReplay(data)
}

// ParseReplay 解析移动日志并检查灯色，乘客数缺省为1
func ParseReplay(data []byte) (*Replay, error) {
	var r Replay
	if err := yaml.UnmarshalStrict(data, &r); err != nil {
		return nil, fmt.Errorf("parse replay: %w", err)
	}
	for i := range r.Steps {
		step := &r.Steps[i]
		for lane, light := range step.Lights {
			if _, err := ParseLight(light); err != nil {
				return nil, fmt.Errorf("replay step %d lane %d: %w", i, lane, err)
			}
		}
		for _, q := range step.Queues {
			for k := range q {
				if q[k].Passengers <= 0 {
					q[k].Passengers = 1
				}
			}
		}
		for k := range step.Moves {
			if step.Moves[k].Passengers <= 0 {
				step.Moves[k].Passengers = 1
			}
		}
	}
	return &r, nil
}

// NumMoves 全部移动数
func (r *Replay) NumMoves() int {
	return lo.SumBy(r.Steps, func(s ReplayStep) int { return len(s.Moves) })
}

// ParseLight 解析灯色名
// 说明：接受green/red/yellow及LIGHT_STATE_*枚举名，大小写不敏感
func ParseLight(name string) (mapv2.LightState, error) {
	switch strings.TrimPrefix(strings.ToUpper(name), "LIGHT_STATE_") {
	case "GREEN":
		return mapv2.LightState_LIGHT_STATE_GREEN, nil
	case "RED":
		return mapv2.LightState_LIGHT_STATE_RED, nil
	case "YELLOW":
		return mapv2.LightState_LIGHT_STATE_YELLOW, nil
	}
	return mapv2.LightState_LIGHT_STATE_UNSPECIFIED, fmt.Errorf("bad light %q", name)
}
