package clock_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	clockv1 "git.fiblab.net/sim/protos/v2/go/city/clock/v1"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/clock"
	"github.com/tsinghua-fib-lab/agentsociety-tlc/utils/config"
)

func TestClock(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 3600, Total: 2, Interval: 1})
	assert.Equal(t, 3600., c.T)
	assert.Equal(t, "step 3600 01:00:00", c.String())
	assert.False(t, c.Done())
	c.Next()
	c.Next()
	assert.True(t, c.Done())
	assert.Equal(t, int32(2), c.Elapsed())

	unbounded := clock.New(config.ControlStep{Interval: 1})
	for range 100 {
		unbounded.Next()
	}
	assert.False(t, unbounded.Done())
}

func TestNow(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 10, Interval: 0.5})
	c.Next()
	resp, err := c.Now(context.Background(), connect.NewRequest(&clockv1.NowRequest{}))
	assert.NoError(t, err)
	assert.Equal(t, 5.5, resp.Msg.T)
}
