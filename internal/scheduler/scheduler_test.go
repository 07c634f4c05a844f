package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func joinStrings(pending []string) string {
	return strings.Join(pending, "\n")
}

// newBlockingScheduler returns a scheduler whose RunFunc blocks until the
// returned release channel is closed for the request matching awaitReq (or
// for every request if awaitReq is empty), recording every invocation it
// sees in order.
func newBlockingScheduler(awaitReq string, maxConcurrent int) (*Scheduler[string, string], func() int, chan struct{}) {
	var mu sync.Mutex
	var seen []string
	release := make(chan struct{})

	run := func(ctx context.Context, req string) (string, error) {
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		if awaitReq == "" || req == awaitReq || strings.Contains(req, awaitReq) {
			select {
			case <-release:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return req + ":done", nil
	}
	seenCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seen)
	}
	return New(run, joinStrings, maxConcurrent), seenCount, release
}

// TestQueueMode_MergesBacklog verifies that two requests arriving while a run
// is in flight are merged via MergeFunc into a single follow-up run, and both
// original callers observe the merged run's outcome.
func TestQueueMode_MergesBacklog(t *testing.T) {
	sched, seen, release := newBlockingScheduler("first", 1)

	out1 := sched.Schedule(context.Background(), "sess", "first", ModeQueue)
	// Give the first run a chance to actually start before queueing more.
	waitUntil(t, func() bool { return seen() == 1 })

	out2 := sched.Schedule(context.Background(), "sess", "second", ModeQueue)
	out3 := sched.Schedule(context.Background(), "sess", "third", ModeQueue)

	close(release)

	o1 := <-out1
	if o1.State != StateFinal || o1.Result != "first:done" {
		t.Fatalf("unexpected outcome for first: %+v", o1)
	}

	o2 := <-out2
	o3 := <-out3
	wantMerged := "second\nthird:done"
	if o2.Result != wantMerged {
		t.Fatalf("expected merged result %q, got %q", wantMerged, o2.Result)
	}
	if o3.Result != wantMerged {
		t.Fatalf("expected merged result %q, got %q", wantMerged, o3.Result)
	}
}

// TestInterruptMode_CancelsInFlightRun verifies that scheduling in interrupt
// mode cancels the currently running request and then runs the new one.
func TestInterruptMode_CancelsInFlightRun(t *testing.T) {
	sched, seen, release := newBlockingScheduler("", 1)
	defer func() { close(release) }()

	out1 := sched.Schedule(context.Background(), "sess", "first", ModeInterrupt)
	waitUntil(t, func() bool { return seen() == 1 })

	out2 := sched.Schedule(context.Background(), "sess", "second", ModeInterrupt)

	o1 := <-out1
	if o1.State != StateCancelled {
		t.Fatalf("expected first run cancelled, got state %v err %v", o1.State, o1.Err)
	}
	if !errors.Is(o1.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", o1.Err)
	}

	waitUntil(t, func() bool { return seen() == 2 })
	close(release)
	release = make(chan struct{}) // avoid double-close from the deferred close

	o2 := <-out2
	if o2.State != StateFinal || o2.Result != "second:done" {
		t.Fatalf("unexpected outcome for second: %+v", o2)
	}
}

// TestForcedSync_CollapsesSecondPendingRequest verifies spec §8 scenario 6:
// a forced request queues behind an in-flight run; while that forced request
// is still pending (not yet started), a second forced request collapses into
// its slot rather than producing a third run.
func TestForcedSync_CollapsesSecondPendingRequest(t *testing.T) {
	sched, seen, release := newBlockingScheduler("main", 1)

	// Start the main run.
	mainOut := sched.Schedule(context.Background(), "sess", "main", ModeQueue)
	waitUntil(t, func() bool { return seen() == 1 })

	// First forced request: queues behind main, does not start yet.
	forced1 := sched.ScheduleWithOpts(context.Background(), "sess", "forced-1", ScheduleOpts{Forced: true})
	// Second forced request arrives before the first forced one has started
	// (main is still running) — it must collapse into forced-1's slot.
	forced2 := sched.ScheduleWithOpts(context.Background(), "sess", "forced-2", ScheduleOpts{Forced: true})

	close(release)

	o := <-mainOut
	if o.State != StateFinal {
		t.Fatalf("unexpected main outcome: %+v", o)
	}

	// Exactly one forced run should execute, carrying forced-2's request
	// (the later one wins the collapse).
	o2 := <-forced2
	if o2.State != StateFinal || o2.Result != "forced-2:done" {
		t.Fatalf("unexpected forced-2 outcome: %+v", o2)
	}

	select {
	case o1 := <-forced1:
		if o1.Result != "forced-2:done" {
			t.Fatalf("expected forced-1 to observe the collapsed run's outcome, got %+v", o1)
		}
	case <-time.After(time.Second):
		t.Fatal("forced-1 channel never delivered an outcome")
	}

	waitUntil(t, func() bool { return seen() == 2 })
}

// TestCancelSession_DiscardsBacklog verifies that CancelSession cancels the
// in-flight run and delivers StateCancelled to every queued caller without
// running them.
func TestCancelSession_DiscardsBacklog(t *testing.T) {
	sched, seen, release := newBlockingScheduler("", 1)
	defer close(release)

	out1 := sched.Schedule(context.Background(), "sess", "first", ModeQueue)
	waitUntil(t, func() bool { return seen() == 1 })
	out2 := sched.Schedule(context.Background(), "sess", "second", ModeQueue)

	sched.CancelSession("sess")

	o1 := <-out1
	if o1.State != StateCancelled {
		t.Fatalf("expected first cancelled, got %+v", o1)
	}
	o2 := <-out2
	if o2.State != StateCancelled {
		t.Fatalf("expected second cancelled without running, got %+v", o2)
	}
	if seen() != 1 {
		t.Fatalf("expected only the in-flight run to have executed, seen=%v", seen())
	}
}

// TestCancelOneSession_LeavesBacklogIntact verifies that CancelOneSession
// only cancels the in-flight run, leaving the queued backlog to execute next
// (unlike CancelSession, which discards it).
func TestCancelOneSession_LeavesBacklogIntact(t *testing.T) {
	sched, seen, release := newBlockingScheduler("", 1)
	defer close(release)

	out1 := sched.Schedule(context.Background(), "sess", "first", ModeQueue)
	waitUntil(t, func() bool { return seen() == 1 })
	out2 := sched.Schedule(context.Background(), "sess", "second", ModeQueue)

	sched.CancelOneSession("sess")

	o1 := <-out1
	if o1.State != StateCancelled {
		t.Fatalf("expected first cancelled, got %+v", o1)
	}

	// The second item should start running next (backlog preserved); the
	// deferred close(release) lets it complete once this test function returns.
	waitUntil(t, func() bool { return seen() == 2 })
	select {
	case o2 := <-out2:
		t.Fatalf("expected second to still be running, got %+v", o2)
	default:
	}
}

// TestConcurrencyCap_LimitsCrossSessionParallelism verifies that at most
// maxConcurrent runs across distinct sessions execute simultaneously.
func TestConcurrencyCap_LimitsCrossSessionParallelism(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	release := make(chan struct{})

	run := func(ctx context.Context, req string) (string, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		<-release
		mu.Lock()
		active--
		mu.Unlock()
		return req, nil
	}

	sched := New(run, joinStrings, 2)
	outs := make([]<-chan Outcome[string], 0, 4)
	for i := 0; i < 4; i++ {
		key := "sess-" + string(rune('a'+i))
		outs = append(outs, sched.Schedule(context.Background(), key, "req", ModeQueue))
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	for _, out := range outs {
		<-out
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent runs, observed peak %d", peak)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

