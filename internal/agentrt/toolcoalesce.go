package agentrt

import (
	"sync"
	"time"
)

// ToolEvent is the coalesced tool-activity update emitted to callers
// (spec §4.3 "verbose-tool coalescing"): successive tool_start/tool_end
// events for the same tool within the coalescing window merge into one
// batched update instead of flooding the transport with one message per
// tool call.
type ToolEvent struct {
	Tool     string
	Calls    int
	Previews []string // only populated at "full" verbosity
	Done     bool     // true once the tool's matching tool_end has been seen
}

// toolCoalescer batches tool_start/tool_end events per tool name within a
// fixed window before calling emit, so a tool invoked in a tight loop
// produces one update instead of many.
type toolCoalescer struct {
	window    time.Duration
	verbosity string // "off", "on", "full"
	emit      func(ToolEvent)

	mu      sync.Mutex
	pending map[string]*pendingTool
}

type pendingTool struct {
	event ToolEvent
	timer *time.Timer
}

// previewedTools is the curated set of tools whose arguments/results are
// worth a short preview at "full" verbosity (spec §4.3).
var previewedTools = map[string]bool{
	"bash": true, "read": true, "edit": true, "write": true, "attach": true,
}

func newToolCoalescer(window time.Duration, verbosity string, emit func(ToolEvent)) *toolCoalescer {
	if window <= 0 {
		window = time.Second
	}
	return &toolCoalescer{window: window, verbosity: verbosity, emit: emit, pending: make(map[string]*pendingTool)}
}

func (c *toolCoalescer) start(tool, arg string) {
	if c.verbosity == "off" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[tool]
	if !ok {
		p = &pendingTool{event: ToolEvent{Tool: tool}}
		c.pending[tool] = p
	}
	p.event.Calls++
	if c.verbosity == "full" && previewedTools[tool] && arg != "" {
		p.event.Previews = append(p.event.Previews, truncate(arg, 200))
	}
	c.resetTimer(tool, p)
}

func (c *toolCoalescer) end(tool, preview string) {
	if c.verbosity == "off" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[tool]
	if !ok {
		p = &pendingTool{event: ToolEvent{Tool: tool}}
		c.pending[tool] = p
	}
	p.event.Done = true
	if c.verbosity == "full" && previewedTools[tool] && preview != "" {
		p.event.Previews = append(p.event.Previews, truncate(preview, 200))
	}
	c.resetTimer(tool, p)
}

func (c *toolCoalescer) resetTimer(tool string, p *pendingTool) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(c.window, func() { c.flush(tool) })
}

func (c *toolCoalescer) flush(tool string) {
	c.mu.Lock()
	p, ok := c.pending[tool]
	if ok {
		delete(c.pending, tool)
	}
	c.mu.Unlock()
	if ok {
		c.emit(p.event)
	}
}

// flushAll drains every pending tool batch immediately, used once a run
// reaches its terminal event so no batch is left stranded behind the
// coalescing window.
func (c *toolCoalescer) flushAll() {
	c.mu.Lock()
	tools := make([]string, 0, len(c.pending))
	for tool := range c.pending {
		tools = append(tools, tool)
	}
	c.mu.Unlock()
	for _, tool := range tools {
		c.flush(tool)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
