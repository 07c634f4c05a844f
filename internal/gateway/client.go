package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one authenticated WebSocket control-plane connection (spec
// §4.6). It owns its socket's read loop, dispatching each RequestFrame to
// the server's MethodRouter, and a write loop draining an outbound queue
// so concurrent event pushes never race a request's response on the wire.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server

	authenticated bool

	writeMu sync.Mutex
	out     chan []byte
}

// NewClient wraps an upgraded WebSocket connection.
func NewClient(conn *websocket.Conn, s *Server) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
		out:    make(chan []byte, 64),
	}
}

// Run drives the client's read and write loops until the connection
// closes or ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(ctx)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req protocol.RequestFrame
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendError("", "INVALID_REQUEST", err.Error())
			continue
		}
		if req.Method == "" {
			c.sendError(req.ID, "INVALID_REQUEST", "method is required")
			continue
		}
		c.server.router.Dispatch(ctx, c, &req)
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.out:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) enqueue(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("gateway client: marshal failed", "error", err)
		return
	}
	select {
	case c.out <- data:
	default:
		slog.Warn("gateway client: outbound queue full, dropping frame", "client", c.id)
	}
}

// SendEvent pushes a server-initiated event frame.
func (c *Client) SendEvent(event protocol.EventFrame) {
	c.enqueue(event)
}

func (c *Client) sendResult(id string, result interface{}) {
	data, err := json.Marshal(result)
	if err != nil {
		c.sendError(id, "INTERNAL", err.Error())
		return
	}
	c.enqueue(protocol.ResponseFrame{ID: id, OK: true, Result: data})
}

func (c *Client) sendError(id, code, message string) {
	c.enqueue(protocol.ResponseFrame{ID: id, OK: false, Error: protocol.NewError(code, message)})
}

// Close tears down the connection and its write queue.
func (c *Client) Close() {
	close(c.out)
	c.conn.Close()
}
