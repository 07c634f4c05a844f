package agentrt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// Event is emitted during a run for streaming delivery to a transport,
// mirroring the shape of a worker process event frame (spec §4.3 keeps the
// teacher's event-emission idiom; the payload vocabulary is new).
type Event struct {
	Type    string
	RunID   string
	Payload interface{}
}

const (
	EventSessionStart = "session_start"
	EventText         = "text"
	EventTool         = "tool"
	EventFinal        = "final"
	EventError        = "error"
	EventRetry        = "retry"
)

// RunRequest is the input to Runtime.Run (spec §4.3 run frame fields).
type RunRequest struct {
	RunID        string
	SessionKey   string
	SessionID    string
	SystemPrompt string
	BodyPrefix   string
	Body         string
	Thinking     string // "off", "minimal", "low", "medium", "high", "max"
	Media        []string
	ModelRef     string // explicit override; "" uses the configured fallback list
	TimeoutMs    int
	Verbosity    string // "off", "on", "full" — controls tool-event coalescing detail
}

// RunResult is the output of a completed run.
type RunResult struct {
	RunID     string
	SessionID string
	Content   string
	Usage     *UsageFrame
}

// Runtime is the agent runtime adapter: one Runtime owns one worker
// subprocess and serves Run calls against it. Its Run method satisfies
// scheduler.RunFunc[RunRequest, RunResult].
type Runtime struct {
	cfg     config.WorkerConfig
	w       *worker
	onEvent func(Event)

	startOnce sync.Once
}

// NewRuntime creates a Runtime for the given worker configuration. onEvent
// may be nil if the caller doesn't need streaming updates.
func NewRuntime(cfg config.WorkerConfig, onEvent func(Event)) *Runtime {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	return &Runtime{cfg: cfg, w: newWorker(cfg), onEvent: onEvent}
}

// Start launches the worker supervisor loop. It must be called once before
// any Run call; ctx controls the supervisor's lifetime (cancel it to stop
// the worker permanently on Gateway shutdown, spec §5 resource lifecycle).
func (r *Runtime) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.w.run(ctx)
	})
}

// Run executes one agent run against the worker, retrying across the
// model-fallback candidate list on fallback-worthy errors (spec §4.3). It
// blocks until the run reaches a terminal event (final+agent_end, a
// non-fallback-worthy error, or ctx cancellation).
func (r *Runtime) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	timeoutMs := req.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = r.cfg.TimeoutMs
	}
	if timeoutMs <= 0 {
		timeoutMs = 120000
	}

	candidates := candidateModels(req.ModelRef, r.cfg.ModelRefs)
	if len(candidates) == 0 {
		candidates = []string{""}
	}

	var lastErr error
	for i, model := range candidates {
		result, err := r.attempt(ctx, runID, req, model, timeoutMs)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if fe, ok := err.(*fallbackError); ok && i < len(candidates)-1 {
			r.onEvent(Event{Type: EventRetry, RunID: runID, Payload: fmt.Sprintf("model %q failed (%s), falling back", model, fe.kind)})
			continue
		}
		return RunResult{}, err
	}
	return RunResult{}, lastErr
}

// fallbackError marks an error frame classified as fallback-worthy so Run
// knows to try the next model candidate instead of failing the whole run.
type fallbackError struct {
	kind    string
	message string
}

func (e *fallbackError) Error() string { return fmt.Sprintf("agentrt: %s: %s", e.kind, e.message) }

// attempt runs a single model candidate to completion.
func (r *Runtime) attempt(ctx context.Context, runID string, req RunRequest, model string, timeoutMs int) (RunResult, error) {
	thinkingArg, body := applyThinking(r.cfg.NativeThinkingFlag, req.Thinking, req.Body)

	frame := requestFrame{
		Type:         frameTypeRun,
		RunID:        runID,
		SessionKey:   req.SessionKey,
		SessionID:    req.SessionID,
		SystemPrompt: req.SystemPrompt,
		BodyPrefix:   req.BodyPrefix,
		Body:         body,
		Thinking:     thinkingArg,
		Media:        req.Media,
		ModelRef:     model,
		TimeoutMs:    timeoutMs,
	}

	events := r.w.subscribe(runID)
	defer r.w.unsubscribe(runID)

	if err := r.w.send(frame); err != nil {
		return RunResult{}, fmt.Errorf("agentrt: send run frame: %w", err)
	}

	coalesceWindow := time.Duration(r.cfg.ToolCoalesceMs) * time.Millisecond
	verbosity := req.Verbosity
	if verbosity == "" {
		verbosity = "on"
	}
	coalescer := newToolCoalescer(coalesceWindow, verbosity, func(te ToolEvent) {
		r.onEvent(Event{Type: EventTool, RunID: runID, Payload: te})
	})

	result := RunResult{RunID: runID, SessionID: req.SessionID}
	var pendingFallback *fallbackError
	deadline := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer deadline.Stop()

	cancelStop := make(chan struct{})
	var cancelOnce sync.Once
	stopEscalation := func() { cancelOnce.Do(func() { close(cancelStop) }) }
	defer stopEscalation()

	for {
		select {
		case <-ctx.Done():
			_ = r.w.send(requestFrame{Type: frameTypeCancel, RunID: runID})
			go r.w.escalate(cancelStop)
			// Drain until the worker acknowledges or the escalation window
			// simply runs out from the caller's perspective; spec: partial
			// streamed text already delivered is never retracted, but the
			// result returned here carries whatever was accumulated.
			select {
			case ev := <-events:
				if ev.Type == eventFinal {
					result.Content = SanitizeAssistantContent(ev.Text)
					result.Usage = ev.Usage
				}
			case <-time.After(5 * time.Second):
			}
			coalescer.flushAll()
			return result, ctx.Err()

		case <-deadline.C:
			coalescer.flushAll()
			return result, fmt.Errorf("agentrt: run %s timed out after %dms", runID, timeoutMs)

		case ev := <-events:
			switch ev.Type {
			case eventSessionStart:
				result.SessionID = ev.Session
				r.onEvent(Event{Type: EventSessionStart, RunID: runID, Payload: ev.Session})

			case eventToolStart:
				coalescer.start(ev.Tool, ev.Arg)

			case eventToolEnd:
				coalescer.end(ev.Tool, ev.Preview)

			case eventText:
				if ev.Delta != "" {
					r.onEvent(Event{Type: EventText, RunID: runID, Payload: ev.Delta})
				}

			case eventFinal:
				result.Content = SanitizeAssistantContent(ev.Text)
				result.Usage = ev.Usage

			case eventError:
				if isFallbackWorthy(ev.Kind, ev.Message) {
					pendingFallback = &fallbackError{kind: ev.Kind, message: ev.Message}
					continue
				}
				coalescer.flushAll()
				return result, fmt.Errorf("agentrt: agent error (%s): %s", ev.Kind, ev.Message)

			case eventAgentEnd:
				coalescer.flushAll()
				if pendingFallback != nil {
					return RunResult{}, pendingFallback
				}
				if IsSilentReply(result.Content) {
					result.Content = ""
				}
				return result, nil
			}
		}
	}
}

// applyThinking implements spec §4.3 "Thinking application": pass the
// level verbatim via the worker's --thinking flag when it's supported,
// otherwise append a cue token to the prompt body.
func applyThinking(native bool, level, body string) (thinkingArg string, outBody string) {
	if level == "" || level == "off" {
		return "", body
	}
	if native {
		return level, body
	}
	cue := thinkingCueTokens[level]
	if cue == "" {
		return "", body
	}
	return "", strings.TrimRight(body, "\n") + "\n\n" + cue
}

// MergeRequests is a scheduler.MergeFunc[RunRequest]: it folds a queue-mode
// backlog of requests arriving while a run is in flight into a single
// follow-up run, newline-joining bodies in arrival order. Sender attribution
// is only what each body already carries (such as an adapter's sender
// annotation); MergeRequests adds none. All non-body fields are taken from
// the last pending request.
func MergeRequests(pending []RunRequest) RunRequest {
	if len(pending) == 0 {
		return RunRequest{}
	}
	merged := pending[len(pending)-1]
	bodies := make([]string, len(pending))
	for i, req := range pending {
		bodies[i] = req.Body
	}
	merged.Body = strings.Join(bodies, "\n")
	return merged
}
