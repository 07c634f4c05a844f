package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// Dispatcher runs an agent turn for a session and returns once the
// authoritative reply is available, decoupling the gateway from the
// concrete scheduler/agentrt generic instantiation (spec §4.2/§4.3).
type Dispatcher interface {
	Send(ctx context.Context, sessionKey, message string, queueMode sessions.QueueMode) (runID string, reply string, err error)
	Abort(sessionKey string)
}

// ChannelRegistry reports per-channel link status and lets an operator
// toggle a channel on/off at runtime (spec §4.6 "channels.*").
type ChannelRegistry interface {
	Statuses() map[string]ChannelStatus
	SetEnabled(channel string, enabled bool) error
}

// ChannelStatus is one channel's link state, used by both `health` and
// `channels.status`.
type ChannelStatus struct {
	Linked       bool   `json:"linked"`
	LastLinkedAt string `json:"lastLinkedAt,omitempty"`
	Enabled      bool   `json:"enabled"`
}

// NodeBridge is the subset of internal/bridge.Bridge the control plane
// needs for nodes.* (spec §4.5/§4.6).
type NodeBridge interface {
	List() []NodePairSummary
	Pending() []NodePairSummary
	Approve(nodeID string) (NodePairSummary, error)
	Reject(nodeID string)
	Invoke(ctx context.Context, nodeID, command string, params json.RawMessage, timeout time.Duration) (json.RawMessage, error)
}

// NodePairSummary is the nodes.list/nodes.pending row shape.
type NodePairSummary struct {
	NodeID      string   `json:"nodeId"`
	DisplayName string   `json:"displayName,omitempty"`
	Platform    string   `json:"platform,omitempty"`
	Commands    []string `json:"commands,omitempty"`
	Connected   bool     `json:"connected"`
}

// CronStore is the subset of a cron engine the control plane needs.
// Left unwired (nil), cron.* methods return NOT_IMPLEMENTED; cmd/ wires
// dispatch.CronAdapter over internal/cron.Engine.
type CronStore interface {
	List() []CronJob
	Add(job CronJob) (CronJob, error)
	Remove(id string) error
	RunNow(id string) error
}

// CronJob is the wire shape of one cron job for the cron.* methods.
type CronJob struct {
	ID       string `json:"id"`
	Schedule string `json:"schedule"`
	Message  string `json:"message"`
	Enabled  bool   `json:"enabled"`
}

// MethodRouter dispatches RequestFrames to handlers (spec §4.6). Built
// against narrow interfaces rather than concrete scheduler/bridge types so
// cmd/ wiring can supply adapters without the gateway package importing
// agentrt/bridge directly.
type MethodRouter struct {
	server *Server

	dispatcher Dispatcher
	channels   ChannelRegistry
	nodes      NodeBridge
	cron       CronStore
	cfg        *config.Config
	cfgPath    string
	sessions   *sessions.Manager

	startedAt time.Time
}

func NewMethodRouter(s *Server) *MethodRouter {
	return &MethodRouter{server: s, startedAt: time.Now()}
}

func (r *MethodRouter) SetDispatcher(d Dispatcher)         { r.dispatcher = d }
func (r *MethodRouter) SetChannelRegistry(c ChannelRegistry) { r.channels = c }
func (r *MethodRouter) SetNodeBridge(n NodeBridge)         { r.nodes = n }
func (r *MethodRouter) SetCronStore(c CronStore)           { r.cron = c }
func (r *MethodRouter) SetConfig(cfg *config.Config, path string) {
	r.cfg = cfg
	r.cfgPath = path
}
func (r *MethodRouter) SetSessions(m *sessions.Manager) { r.sessions = m }

// Dispatch routes one RequestFrame, enforcing the server's rate limiter
// (when enabled) before touching any handler.
func (r *MethodRouter) Dispatch(ctx context.Context, c *Client, req *protocol.RequestFrame) {
	if r.server.rateLimiter != nil && r.server.rateLimiter.Enabled() && !r.server.rateLimiter.Allow(c.id) {
		c.sendError(req.ID, "RATE_LIMITED", "too many requests")
		return
	}

	switch req.Method {
	case protocol.MethodHealth:
		r.handleHealth(c, req)
	case protocol.MethodStatus:
		r.handleStatus(c, req)
	case protocol.MethodConnect:
		c.sendResult(req.ID, map[string]any{"protocol": protocol.ProtocolVersion})
	case protocol.MethodSend, protocol.MethodAgent, protocol.MethodChatSend:
		r.handleAgent(ctx, c, req)
	case protocol.MethodChatAbort:
		r.handleChatAbort(c, req)
	case protocol.MethodChatHistory:
		r.handleChatHistory(c, req)
	case protocol.MethodConfigGet:
		r.handleConfigGet(c, req)
	case protocol.MethodConfigSet:
		r.handleConfigSet(c, req)
	case protocol.MethodSessionsList:
		r.handleSessionsList(c, req)
	case protocol.MethodSessionsReset:
		r.handleSessionsReset(c, req)
	case protocol.MethodChannelsList, protocol.MethodChannelsStatus:
		r.handleChannelsStatus(c, req)
	case protocol.MethodChannelsToggle:
		r.handleChannelsToggle(c, req)
	case protocol.MethodNodesList:
		r.handleNodesList(c, req)
	case protocol.MethodNodesPending:
		r.handleNodesPending(c, req)
	case protocol.MethodNodesApprove:
		r.handleNodesApprove(c, req)
	case protocol.MethodNodesReject:
		r.handleNodesReject(c, req)
	case protocol.MethodNodesInvoke:
		r.handleNodesInvoke(ctx, c, req)
	case protocol.MethodCronList, protocol.MethodCronAdd, protocol.MethodCronRemove, protocol.MethodCronRunNow:
		r.handleCron(c, req)
	case protocol.MethodSystemEvent:
		r.handleSystemEvent(c, req)
	case protocol.MethodModelsList:
		r.handleModelsList(c, req)
	default:
		c.sendError(req.ID, "UNKNOWN_METHOD", req.Method)
	}
}

func (r *MethodRouter) handleHealth(c *Client, req *protocol.RequestFrame) {
	providers := map[string]ChannelStatus{}
	if r.channels != nil {
		providers = r.channels.Statuses()
	}
	c.sendResult(req.ID, map[string]any{"ok": true, "providers": providers})
}

func (r *MethodRouter) handleStatus(c *Client, req *protocol.RequestFrame) {
	sessionsCount := 0
	if r.sessions != nil {
		sessionsCount = len(r.sessions.List())
	}
	c.sendResult(req.ID, map[string]any{
		"sessionsCount": sessionsCount,
		"uptimeSeconds": int(time.Since(r.startedAt).Seconds()),
	})
}

type agentParams struct {
	SessionKey string `json:"sessionKey"`
	Message    string `json:"message"`
	Channel    string `json:"channel,omitempty"`
	To         string `json:"to,omitempty"`
	Deliver    *bool  `json:"deliver,omitempty"`
}

func (r *MethodRouter) handleAgent(ctx context.Context, c *Client, req *protocol.RequestFrame) {
	if r.dispatcher == nil {
		c.sendError(req.ID, "UNAVAILABLE", "agent dispatcher not wired")
		return
	}
	var p agentParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		c.sendError(req.ID, "INVALID_REQUEST", err.Error())
		return
	}
	if p.SessionKey == "" {
		p.SessionKey = "main"
	}
	if p.Message == "" {
		c.sendError(req.ID, "INVALID_REQUEST", "message is required")
		return
	}

	runID := uuid.NewString()
	c.SendEvent(*protocol.NewEvent(protocol.EventChat, map[string]any{"runId": runID, "state": protocol.ChatStateStarted}))

	go func() {
		_, reply, err := r.dispatcher.Send(ctx, p.SessionKey, p.Message, sessions.QueueModeInherit)
		if err != nil {
			c.SendEvent(*protocol.NewEvent(protocol.EventChat, map[string]any{"runId": runID, "state": protocol.ChatStateError, "text": err.Error()}))
			return
		}
		c.SendEvent(*protocol.NewEvent(protocol.EventChat, map[string]any{"runId": runID, "state": protocol.ChatStateFinal, "text": reply}))
	}()

	c.sendResult(req.ID, map[string]any{"runId": runID})
}

func (r *MethodRouter) handleChatAbort(c *Client, req *protocol.RequestFrame) {
	var p struct {
		SessionKey string `json:"sessionKey"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.SessionKey == "" {
		c.sendError(req.ID, "INVALID_REQUEST", "sessionKey is required")
		return
	}
	if r.dispatcher != nil {
		r.dispatcher.Abort(p.SessionKey)
	}
	c.sendResult(req.ID, map[string]any{"ok": true})
}

func (r *MethodRouter) handleChatHistory(c *Client, req *protocol.RequestFrame) {
	// Sessions persist scheduling/routing metadata, not a transcript log
	// (spec §3), so chat.history always returns an empty list.
	c.sendResult(req.ID, map[string]any{"messages": []any{}})
}

func (r *MethodRouter) handleConfigGet(c *Client, req *protocol.RequestFrame) {
	if r.cfg == nil {
		c.sendError(req.ID, "UNAVAILABLE", "config not wired")
		return
	}
	data, err := json.Marshal(r.cfg)
	if err != nil {
		c.sendError(req.ID, "INTERNAL", err.Error())
		return
	}
	c.sendResult(req.ID, json.RawMessage(data))
}

func (r *MethodRouter) handleConfigSet(c *Client, req *protocol.RequestFrame) {
	if r.cfg == nil {
		c.sendError(req.ID, "UNAVAILABLE", "config not wired")
		return
	}
	var next config.Config
	if err := json.Unmarshal(req.Params, &next); err != nil {
		c.sendError(req.ID, "INVALID_REQUEST", err.Error())
		return
	}
	r.cfg.ReplaceFrom(&next)
	if r.cfgPath != "" {
		if err := config.Save(r.cfgPath, r.cfg); err != nil {
			c.sendError(req.ID, "INTERNAL", err.Error())
			return
		}
	}
	c.sendResult(req.ID, map[string]any{"ok": true})
}

func (r *MethodRouter) handleSessionsList(c *Client, req *protocol.RequestFrame) {
	if r.sessions == nil {
		c.sendResult(req.ID, map[string]any{"sessions": []string{}})
		return
	}
	c.sendResult(req.ID, map[string]any{"sessions": r.sessions.List()})
}

func (r *MethodRouter) handleSessionsReset(c *Client, req *protocol.RequestFrame) {
	var p struct {
		SessionKey string `json:"sessionKey"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.SessionKey == "" {
		c.sendError(req.ID, "INVALID_REQUEST", "sessionKey is required")
		return
	}
	if r.sessions == nil {
		c.sendError(req.ID, "UNAVAILABLE", "sessions not wired")
		return
	}
	if err := r.sessions.New(p.SessionKey); err != nil {
		c.sendError(req.ID, "INTERNAL", err.Error())
		return
	}
	c.sendResult(req.ID, map[string]any{"ok": true})
}

func (r *MethodRouter) handleChannelsStatus(c *Client, req *protocol.RequestFrame) {
	if r.channels == nil {
		c.sendResult(req.ID, map[string]any{"channels": map[string]ChannelStatus{}})
		return
	}
	c.sendResult(req.ID, map[string]any{"channels": r.channels.Statuses()})
}

func (r *MethodRouter) handleChannelsToggle(c *Client, req *protocol.RequestFrame) {
	var p struct {
		Channel string `json:"channel"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.Channel == "" {
		c.sendError(req.ID, "INVALID_REQUEST", "channel is required")
		return
	}
	if r.channels == nil {
		c.sendError(req.ID, "UNAVAILABLE", "channel registry not wired")
		return
	}
	if err := r.channels.SetEnabled(p.Channel, p.Enabled); err != nil {
		c.sendError(req.ID, "INTERNAL", err.Error())
		return
	}
	c.sendResult(req.ID, map[string]any{"ok": true})
}

func (r *MethodRouter) handleNodesList(c *Client, req *protocol.RequestFrame) {
	if r.nodes == nil {
		c.sendResult(req.ID, map[string]any{"nodes": []NodePairSummary{}})
		return
	}
	c.sendResult(req.ID, map[string]any{"nodes": r.nodes.List()})
}

func (r *MethodRouter) handleNodesPending(c *Client, req *protocol.RequestFrame) {
	if r.nodes == nil {
		c.sendResult(req.ID, map[string]any{"nodes": []NodePairSummary{}})
		return
	}
	c.sendResult(req.ID, map[string]any{"nodes": r.nodes.Pending()})
}

func (r *MethodRouter) handleNodesApprove(c *Client, req *protocol.RequestFrame) {
	var p struct {
		NodeID string `json:"nodeId"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.NodeID == "" {
		c.sendError(req.ID, "INVALID_REQUEST", "nodeId is required")
		return
	}
	if r.nodes == nil {
		c.sendError(req.ID, "UNAVAILABLE", "node bridge not wired")
		return
	}
	node, err := r.nodes.Approve(p.NodeID)
	if err != nil {
		c.sendError(req.ID, "INTERNAL", err.Error())
		return
	}
	c.sendResult(req.ID, node)
}

func (r *MethodRouter) handleNodesReject(c *Client, req *protocol.RequestFrame) {
	var p struct {
		NodeID string `json:"nodeId"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.NodeID == "" {
		c.sendError(req.ID, "INVALID_REQUEST", "nodeId is required")
		return
	}
	if r.nodes != nil {
		r.nodes.Reject(p.NodeID)
	}
	c.sendResult(req.ID, map[string]any{"ok": true})
}

func (r *MethodRouter) handleNodesInvoke(ctx context.Context, c *Client, req *protocol.RequestFrame) {
	var p struct {
		NodeID     string          `json:"nodeId"`
		Command    string          `json:"command"`
		ParamsJSON json.RawMessage `json:"paramsJSON,omitempty"`
		TimeoutMs  int             `json:"timeoutMs,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.NodeID == "" || p.Command == "" {
		c.sendError(req.ID, "INVALID_REQUEST", "nodeId and command are required")
		return
	}
	if r.nodes == nil {
		c.sendError(req.ID, "UNAVAILABLE", "node bridge not wired")
		return
	}
	timeout := time.Duration(p.TimeoutMs) * time.Millisecond
	result, err := r.nodes.Invoke(ctx, p.NodeID, p.Command, p.ParamsJSON, timeout)
	if err != nil {
		c.sendError(req.ID, "UNAVAILABLE", err.Error())
		return
	}
	c.sendResult(req.ID, result)
}

func (r *MethodRouter) handleCron(c *Client, req *protocol.RequestFrame) {
	if r.cron == nil {
		c.sendError(req.ID, "NOT_IMPLEMENTED", "cron engine not wired")
		return
	}
	switch req.Method {
	case protocol.MethodCronList:
		c.sendResult(req.ID, map[string]any{"jobs": r.cron.List()})
	case protocol.MethodCronAdd:
		var job CronJob
		if err := json.Unmarshal(req.Params, &job); err != nil {
			c.sendError(req.ID, "INVALID_REQUEST", err.Error())
			return
		}
		created, err := r.cron.Add(job)
		if err != nil {
			c.sendError(req.ID, "INTERNAL", err.Error())
			return
		}
		c.sendResult(req.ID, created)
	case protocol.MethodCronRemove, protocol.MethodCronRunNow:
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil || p.ID == "" {
			c.sendError(req.ID, "INVALID_REQUEST", "id is required")
			return
		}
		var err error
		if req.Method == protocol.MethodCronRemove {
			err = r.cron.Remove(p.ID)
		} else {
			err = r.cron.RunNow(p.ID)
		}
		if err != nil {
			c.sendError(req.ID, "INTERNAL", err.Error())
			return
		}
		c.sendResult(req.ID, map[string]any{"ok": true})
	}
}

func (r *MethodRouter) handleSystemEvent(c *Client, req *protocol.RequestFrame) {
	var p struct {
		Text       string   `json:"text"`
		InstanceID string   `json:"instanceId,omitempty"`
		Mode       string   `json:"mode,omitempty"`
		Tags       []string `json:"tags,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.Text == "" {
		c.sendError(req.ID, "INVALID_REQUEST", "text is required")
		return
	}
	r.server.eventPub.Broadcast(bus.Event{Name: protocol.MethodSystemEvent, Payload: p})
	c.sendResult(req.ID, map[string]any{"ok": true})
}

func (r *MethodRouter) handleModelsList(c *Client, req *protocol.RequestFrame) {
	if r.cfg == nil {
		c.sendResult(req.ID, map[string]any{"models": []string{}})
		return
	}
	c.sendResult(req.ID, map[string]any{"models": r.cfg.Worker.ModelRefs})
}
