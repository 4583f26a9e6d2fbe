package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/config"
	"gopkg.in/yaml.v2"
)

func TestRuntimeConfigDefaults(t *testing.T) {
	var c config.Config
	require.NoError(t, yaml.UnmarshalStrict([]byte(`
input:
  map:
    file: data/map.pb
  replay: data/replay.yaml
control:
  step:
    start: 0
    total: 10
    interval: 1
  tlc:
    variant: tc2
    gamma: 0.8
`), &c))
	rc, err := config.NewRuntimeConfig(c)
	require.NoError(t, err)
	assert.Equal(t, "tc2", rc.C.TLC.Variant)
	assert.Equal(t, config.PartitionNetwork, rc.C.TLC.Partition)
	assert.Equal(t, 7.5, rc.C.TLC.PositionLength)
	assert.Equal(t, int32(2), rc.C.TLC.Reach)
	require.NotNil(t, rc.C.TLC.Gamma)
	assert.Equal(t, 0.8, *rc.C.TLC.Gamma)
	assert.Nil(t, rc.C.TLC.RandomChance)
	assert.Equal(t, "data/map.pb", c.Input.Map.File)
}

func TestRuntimeConfigErrors(t *testing.T) {
	var c config.Config
	assert.Error(t, yaml.UnmarshalStrict([]byte("control:\n  tlc:\n    unknown: 1\n"), &c))

	c = config.Config{Control: config.Control{TLC: config.TLC{Partition: "lane"}}}
	_, err := config.NewRuntimeConfig(c)
	assert.Error(t, err)

	c = config.Config{Output: &config.Output{Save: true}}
	_, err = config.NewRuntimeConfig(c)
	assert.Error(t, err)
}
