package entity

import (
	"github.com/tsinghua-fib-lab/agentsociety-tlc/clock"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/config"
)

type ITaskContext interface {
	Clock() *clock.Clock
	LaneManager() ILaneManager
	JunctionManager() IJunctionManager
	RuntimeConfig() *config.RuntimeConfig
}
