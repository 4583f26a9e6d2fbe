package input_test

import (
	"os"
	"path/filepath"
	"testing"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/input"
)

const replayYaml = `
steps:
  - lights: {11: red}
    queues:
      11:
        - {id: 1, dest: 2, s: 28}
  - lights: {11: LIGHT_STATE_GREEN}
    moves:
      - {id: 1, dest: 2, passengers: 3, from: 11, from_s: 28, to: 21, to_s: 2, desired: 21}
      - {id: 2, dest: 3, from: 31, from_s: 9, to: -1, to_s: 0}
`

func TestParseReplay(t *testing.T) {
	r, err := input.ParseReplay([]byte(replayYaml))
	require.NoError(t, err)
	require.Len(t, r.Steps, 2)
	assert.Equal(t, 2, r.NumMoves())
	assert.Equal(t, "red", r.Steps[0].Lights[11])
	assert.Equal(t, 1., r.Steps[0].Queues[11][0].Passengers)
	assert.Equal(t, 3., r.Steps[1].Moves[0].Passengers)
	assert.Equal(t, 1., r.Steps[1].Moves[1].Passengers)
	assert.Equal(t, int32(-1), r.Steps[1].Moves[1].To)
}

func TestLoadReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(replayYaml), 0o644))
	r, err := input.LoadReplay(path)
	require.NoError(t, err)
	assert.Len(t, r.Steps, 2)

	_, err = input.LoadReplay(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseReplayErrors(t *testing.T) {
	_, err := input.ParseReplay([]byte("steps:\n  - lights: {11: blue}\n"))
	assert.Error(t, err)
	_, err = input.ParseReplay([]byte("steps:\n  - unknown: 1\n"))
	assert.Error(t, err)
}

func TestParseLight(t *testing.T) {
	for name, want := range map[string]mapv2.LightState{
		"green":              mapv2.LightState_LIGHT_STATE_GREEN,
		"Red":                mapv2.LightState_LIGHT_STATE_RED,
		"LIGHT_STATE_YELLOW": mapv2.LightState_LIGHT_STATE_YELLOW,
	} {
		got, err := input.ParseLight(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
