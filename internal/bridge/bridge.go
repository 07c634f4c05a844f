package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultInvokeTimeout = 30 * time.Second

// EventFunc receives "event" frames pushed by a node (e.g. a voice
// transcript or a push-notification mirror), spec §4.5.
type EventFunc func(nodeID, event string, payload json.RawMessage)

// Bridge is the TCP control point for paired nodes: it accepts
// connections, runs the hello/pair/auth handshake against a PairStore, and
// fans out invoke requests to whichever node is currently connected.
type Bridge struct {
	pairs   *PairStore
	onEvent EventFunc

	mu    sync.RWMutex
	conns map[string]*conn

	listener net.Listener
}

func New(pairs *PairStore, onEvent EventFunc) *Bridge {
	return &Bridge{pairs: pairs, onEvent: onEvent, conns: make(map[string]*conn)}
}

// Serve accepts connections on addr until ctx is cancelled.
func (b *Bridge) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", addr, err)
	}
	b.listener = ln
	slog.Info("bridge: listening", "addr", addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("bridge: accept: %w", err)
			}
		}
		c := newConn(b, nc)
		go c.serve(ctx)
	}
}

func (b *Bridge) register(c *conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.conns[c.nodeID]; ok {
		// A reconnect from the same node supersedes the stale socket.
		go old.close()
	}
	b.conns[c.nodeID] = c
}

func (b *Bridge) unregister(c *conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.conns[c.nodeID]; ok && cur == c {
		delete(b.conns, c.nodeID)
	}
}

// Connected reports whether nodeID currently has a live socket.
func (b *Bridge) Connected(nodeID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.conns[nodeID]
	return ok
}

// Invoke runs command on nodeID and waits for its result, or
// UNAVAILABLE if the node isn't currently connected (spec §4.5 "Commands
// the node did not declare in commands[] are rejected client-side as
// UNSUPPORTED but the bridge does not enforce this" — so Invoke itself
// does not filter by the node's declared command set; that check belongs
// to the caller, which has access to the node's advertised commands via
// PairStore/List).
func (b *Bridge) Invoke(ctx context.Context, nodeID, command string, params json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	b.mu.RLock()
	c, ok := b.conns[nodeID]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("bridge: node %s: %w", nodeID, ErrUnavailable)
	}
	if timeout <= 0 {
		timeout = defaultInvokeTimeout
	}

	id := uuid.NewString()
	ch := make(chan Frame, 1)
	c.invokeMu.Lock()
	c.invokes[id] = ch
	c.invokeMu.Unlock()
	defer func() {
		c.invokeMu.Lock()
		delete(c.invokes, id)
		c.invokeMu.Unlock()
	}()

	if err := c.send(Frame{Type: FrameInvoke, ID: id, Command: command, ParamsJSON: params}); err != nil {
		return nil, fmt.Errorf("bridge: send invoke to %s: %w", nodeID, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("bridge: invoke %s on %s: %w", command, nodeID, ErrInvokeTimeout)
	case f := <-ch:
		if !f.OK {
			return nil, fmt.Errorf("bridge: node %s rejected %s: %s", nodeID, command, f.Error)
		}
		return f.ResultJSON, nil
	}
}

// ApprovePair approves a pending pair request, minting a fresh token for
// the node to use on reconnect.
func (b *Bridge) ApprovePair(nodeID string) (*PairedNode, error) {
	return b.pairs.Approve(nodeID, uuid.NewString())
}

var (
	ErrUnavailable   = fmt.Errorf("node not connected")
	ErrInvokeTimeout = fmt.Errorf("invoke timed out")
)
