package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	pingInterval = 20 * time.Second
	idleTimeout  = 60 * time.Second
)

// conn is one accepted node connection, reading/writing line-delimited
// JSON frames (spec §4.5). Framing mirrors internal/agentrt's worker stdio
// scanner, applied to a net.Conn instead of a subprocess pipe.
type conn struct {
	b      *Bridge
	nc     net.Conn
	nodeID string

	writeMu sync.Mutex

	mu       sync.Mutex
	commands map[string]bool
	lastSeen time.Time

	invokeMu sync.Mutex
	invokes  map[string]chan Frame
}

func newConn(b *Bridge, nc net.Conn) *conn {
	return &conn{
		b:        b,
		nc:       nc,
		commands: make(map[string]bool),
		lastSeen: time.Now(),
		invokes:  make(map[string]chan Frame),
	}
}

// serve runs the connection's full lifecycle: hello/pairing handshake,
// then the read loop, until the connection closes or ctx is done.
func (c *conn) serve(ctx context.Context) {
	defer c.close()

	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 0, 256*1024), 256*1024)

	if !scanner.Scan() {
		return
	}
	var hello Frame
	if err := json.Unmarshal(scanner.Bytes(), &hello); err != nil || hello.Type != FrameHello {
		slog.Warn("bridge: first frame was not hello", "error", err)
		return
	}
	if !c.handshake(hello) {
		return
	}

	go c.keepalive(ctx)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			slog.Warn("bridge: malformed frame", "node", c.nodeID, "error", err)
			continue
		}
		c.touch()
		c.dispatch(f)
	}
}

// handshake authenticates hello against the pair store, registering the
// connection on success. Returns false if the connection should be torn
// down immediately.
func (c *conn) handshake(hello Frame) bool {
	c.nodeID = hello.NodeID
	c.mu.Lock()
	for _, cmd := range hello.Commands {
		c.commands[cmd] = true
	}
	c.mu.Unlock()

	if hello.Token == "" {
		c.b.pairs.RequestPair(PendingPair{
			NodeID: hello.NodeID, DisplayName: hello.DisplayName,
			Platform: hello.Platform, Version: hello.Version,
			Commands: hello.Commands, RequestedAt: time.Now().UnixMilli(),
		})
		c.send(Frame{Type: FrameNotPaired})
		return false
	}

	node := c.b.pairs.Lookup(hello.NodeID, hello.Token)
	if node == nil {
		c.send(Frame{Type: FrameAuthError, Code: "UNKNOWN_TOKEN", Message: "token not recognized"})
		return false
	}

	c.b.register(c)
	c.send(Frame{Type: FrameAuthOK})
	return true
}

// dispatch routes one post-handshake frame.
func (c *conn) dispatch(f Frame) {
	switch f.Type {
	case FramePong:
		// lastSeen already advanced by touch(); nothing else to do.
	case FramePing:
		c.send(Frame{Type: FramePong})
	case FrameInvokeResult:
		c.invokeMu.Lock()
		ch, ok := c.invokes[f.ID]
		c.invokeMu.Unlock()
		if ok {
			ch <- f
		}
	case FrameEvent:
		if c.b.onEvent != nil {
			c.b.onEvent(c.nodeID, f.Event, f.PayloadJSON)
		}
	}
}

func (c *conn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *conn) idleFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastSeen)
}

// keepalive pings every pingInterval and closes the connection once it's
// been idle past idleTimeout (spec §4.5 "ping {} / pong {} every 20s;
// idle > 60s disconnects").
func (c *conn) keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case <-ticker.C:
			if c.idleFor() > idleTimeout {
				c.close()
				return
			}
			c.send(Frame{Type: FramePing})
		}
	}
}

func (c *conn) send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.nc.Write(data)
	return err
}

// declaredCommand reports whether the node advertised cmd in its hello
// commands[] list.
func (c *conn) declaredCommand(cmd string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commands[cmd]
}

func (c *conn) close() {
	c.b.unregister(c)
	_ = c.nc.Close()
}
