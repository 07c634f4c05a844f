package agentrt

import (
	"testing"
	"time"
)

// --- applyThinking ---

func TestApplyThinking_Off(t *testing.T) {
	arg, body := applyThinking(true, "off", "hello")
	if arg != "" || body != "hello" {
		t.Fatalf("expected no-op for off, got arg=%q body=%q", arg, body)
	}
}

func TestApplyThinking_NativeFlag(t *testing.T) {
	arg, body := applyThinking(true, "high", "hello")
	if arg != "high" || body != "hello" {
		t.Fatalf("expected native thinking arg passed verbatim, got arg=%q body=%q", arg, body)
	}
}

func TestApplyThinking_CueToken(t *testing.T) {
	arg, body := applyThinking(false, "high", "hello")
	if arg != "" {
		t.Fatalf("expected no thinking arg when worker lacks native support, got %q", arg)
	}
	want := "hello\n\nthink harder"
	if body != want {
		t.Fatalf("expected cue token appended, got %q want %q", body, want)
	}
}

func TestApplyThinking_MinimalHasNoCue(t *testing.T) {
	_, body := applyThinking(false, "minimal", "hello")
	if body != "hello" {
		t.Fatalf("expected minimal to add no cue, got %q", body)
	}
}

// --- MergeRequests ---

func TestMergeRequests_JoinsBodiesInOrder(t *testing.T) {
	pending := []RunRequest{
		{Body: "first", SessionKey: "s1"},
		{Body: "second", SessionKey: "s1"},
		{Body: "third", SessionKey: "s1"},
	}
	merged := MergeRequests(pending)
	want := "first\nsecond\nthird"
	if merged.Body != want {
		t.Fatalf("expected %q, got %q", want, merged.Body)
	}
}

func TestMergeRequests_TakesNonBodyFieldsFromLast(t *testing.T) {
	pending := []RunRequest{
		{Body: "first", ModelRef: "model-a"},
		{Body: "second", ModelRef: "model-b"},
	}
	merged := MergeRequests(pending)
	if merged.ModelRef != "model-b" {
		t.Fatalf("expected last request's ModelRef to win, got %q", merged.ModelRef)
	}
}

// --- fallback classification ---

func TestIsFallbackWorthy_KnownKind(t *testing.T) {
	if !isFallbackWorthy("rate_limit", "") {
		t.Fatal("expected rate_limit kind to be fallback-worthy")
	}
}

func TestIsFallbackWorthy_MessageHeuristic(t *testing.T) {
	if !isFallbackWorthy("", "Error: Too Many Requests") {
		t.Fatal("expected message heuristic to classify 429-style message as fallback-worthy")
	}
}

func TestIsFallbackWorthy_UnrelatedError(t *testing.T) {
	if isFallbackWorthy("tool_error", "file not found") {
		t.Fatal("expected unrelated tool error not to trigger fallback")
	}
}

func TestCandidateModels_DedupesPreservingOrder(t *testing.T) {
	got := candidateModels("model-a", []string{"model-a", "model-b", "model-a"})
	want := []string{"model-a", "model-b"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestCandidateModels_NoOverrideUsesConfigured(t *testing.T) {
	got := candidateModels("", []string{"model-a", "model-b"})
	want := []string{"model-a", "model-b"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

// --- tool coalescing ---

func TestToolCoalescer_BatchesWithinWindow(t *testing.T) {
	events := make(chan ToolEvent, 10)
	c := newToolCoalescer(30*time.Millisecond, "on", func(te ToolEvent) { events <- te })

	c.start("bash", "")
	c.end("bash", "")
	c.start("bash", "")
	c.end("bash", "")

	select {
	case te := <-events:
		if te.Tool != "bash" || te.Calls != 2 || !te.Done {
			t.Fatalf("expected one batched event with 2 calls, got %+v", te)
		}
	case <-time.After(time.Second):
		t.Fatal("coalescer never flushed")
	}
}

func TestToolCoalescer_OffVerbosityEmitsNothing(t *testing.T) {
	events := make(chan ToolEvent, 10)
	c := newToolCoalescer(10*time.Millisecond, "off", func(te ToolEvent) { events <- te })

	c.start("bash", "")
	c.end("bash", "")

	select {
	case te := <-events:
		t.Fatalf("expected no events at off verbosity, got %+v", te)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestToolCoalescer_FullVerbosityCapturesPreviews(t *testing.T) {
	events := make(chan ToolEvent, 10)
	c := newToolCoalescer(30*time.Millisecond, "full", func(te ToolEvent) { events <- te })

	c.start("read", "some/path.txt")
	c.end("read", "file contents preview")

	select {
	case te := <-events:
		if len(te.Previews) != 2 {
			t.Fatalf("expected start+end previews captured, got %+v", te.Previews)
		}
	case <-time.After(time.Second):
		t.Fatal("coalescer never flushed")
	}
}
