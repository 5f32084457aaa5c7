package httpserver

import (
	"context"
	"net"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestTrackedListener_Gauges(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Assert(t, err)
	l := &trackedListener{Listener: ln, name: "api"}
	defer l.Close()

	accepted := make(chan net.Conn, 2)
	go func() {
		for i := 0; i < 2; i++ {
			c, err := l.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}()

	c1, err := net.Dial("tcp", ln.Addr().String())
	assert.Assert(t, err)
	defer c1.Close()
	c2, err := net.Dial("tcp", ln.Addr().String())
	assert.Assert(t, err)
	defer c2.Close()

	s1, s2 := <-accepted, <-accepted
	assert.Check(t, cmp.DeepEqual(l.Gauges(context.Background()), map[string]float64{
		"number_of_remotes":          1,
		"total_connections":          2,
		"active_connections":         2,
		"max_connections_per_remote": 2,
		"min_connections_per_remote": 2,
	}))

	assert.Check(t, s1.Close())
	assert.Check(t, s1.Close() != nil, "closing twice errors but is only counted once")
	assert.Check(t, s2.Close())
	assert.Check(t, cmp.DeepEqual(l.Gauges(context.Background()), map[string]float64{
		"number_of_remotes":          0,
		"total_connections":          2,
		"active_connections":         0,
		"max_connections_per_remote": 0,
		"min_connections_per_remote": 0,
	}))
}
