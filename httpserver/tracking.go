package httpserver

import (
	"context"
	"net"
	"sync"
)

// trackedListener counts the connections it accepts, and the ones still open, per remote host.
type trackedListener struct {
	net.Listener

	name string

	mu         sync.RWMutex
	accepted   int
	activeConn int
	remotes    map[string]int
}

func (l *trackedListener) Accept() (net.Conn, error) {
	con, err := l.Listener.Accept()
	if err != nil {
		return con, err
	}
	tracked := &trackedConnection{
		Conn: con,
		l:    l,
		host: remoteHost(con),
	}
	l.track(tracked.host, 1)
	return tracked, nil
}

func (l *trackedListener) MetricName() string {
	return l.name + "-listener"
}

func (l *trackedListener) Gauges(_ context.Context) map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	maxPerRemote, minPerRemote := 0, 0
	for _, c := range l.remotes {
		if c > maxPerRemote {
			maxPerRemote = c
		}
		if minPerRemote == 0 || c < minPerRemote {
			minPerRemote = c
		}
	}
	return map[string]float64{
		"number_of_remotes":  float64(len(l.remotes)),
		"total_connections":  float64(l.accepted),
		"active_connections": float64(l.activeConn),
		// useful to see if clients are balancing us well
		"max_connections_per_remote": float64(maxPerRemote),
		"min_connections_per_remote": float64(minPerRemote),
	}
}

func (l *trackedListener) track(host string, delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remotes == nil {
		l.remotes = make(map[string]int)
	}
	if delta > 0 {
		l.accepted++
	}
	l.activeConn += delta
	l.remotes[host] += delta
	if l.remotes[host] <= 0 {
		delete(l.remotes, host)
	}
}

func remoteHost(c net.Conn) string {
	addr := c.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// unix sockets have no port
		return addr
	}
	return host
}

type trackedConnection struct {
	net.Conn

	l    *trackedListener
	host string
	once sync.Once
}

func (c *trackedConnection) Close() error {
	c.once.Do(func() { c.l.track(c.host, -1) })
	return c.Conn.Close()
}
