package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

func newTestScheduler(t *testing.T, ch Channel, run RunFunc, linked LinkedFunc) (*Scheduler, *sessions.Manager, *[]string) {
	t.Helper()
	mgr, err := sessions.NewManager("", clock.Real())
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	var delivered []string
	deliver := func(ctx context.Context, channel, to, accountID, text string) error {
		delivered = append(delivered, channel+"|"+to+"|"+accountID+"|"+text)
		return nil
	}
	sched := New(Deps{Sessions: mgr, Run: run, Linked: linked, Deliver: deliver}, []Channel{ch})
	return sched, mgr, &delivered
}

// TestProbe_SkipsWithoutLastChannel verifies spec §4.4 step 1: a session
// with no lastChannel/lastTo is skipped entirely, never invoking Run.
func TestProbe_SkipsWithoutLastChannel(t *testing.T) {
	called := false
	run := func(ctx context.Context, sessionKey, prompt string) (string, error) {
		called = true
		return "", nil
	}
	sched, mgr, _ := newTestScheduler(t, Channel{Config: config.HeartbeatConfig{Every: "5m"}}, run, func(string) bool { return true })
	mgr.GetOrCreate("main") // created but never given lastChannel/lastTo

	if err := sched.probe(context.Background(), Channel{Config: config.HeartbeatConfig{Every: "5m"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("expected Run not to be called when session has no lastChannel/lastTo")
	}
}

// TestProbe_SkipsWhenProviderNotLinked verifies spec §4.4 step 2.
func TestProbe_SkipsWhenProviderNotLinked(t *testing.T) {
	run := func(ctx context.Context, sessionKey, prompt string) (string, error) {
		t.Fatal("Run should not be called when provider is not linked")
		return "", nil
	}
	sched, mgr, _ := newTestScheduler(t, Channel{}, run, func(string) bool { return false })
	mgr.Mutate("main", func(s *sessions.Session) {
		s.LastChannel = "whatsapp"
		s.LastTo = "123"
	})

	cfg := config.HeartbeatConfig{Every: "5m", Visibility: config.VisibilityConfig{ShowAlerts: true}}
	if err := sched.probe(context.Background(), Channel{Config: cfg}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestProbe_HeartbeatOKSuppressedWhenShowOkDisabled verifies spec §4.4
// step 5 / scenario 3: a HEARTBEAT_OK reply with showOk=false never
// reaches Deliver.
func TestProbe_HeartbeatOKSuppressedWhenShowOkDisabled(t *testing.T) {
	run := func(ctx context.Context, sessionKey, prompt string) (string, error) {
		return "<b>HEARTBEAT_OK</b>", nil
	}
	cfg := config.HeartbeatConfig{Every: "5m", Visibility: config.VisibilityConfig{ShowOk: false, ShowAlerts: true}}
	sched, mgr, delivered := newTestScheduler(t, Channel{Config: cfg}, run, func(string) bool { return true })
	mgr.Mutate("main", func(s *sessions.Session) {
		s.LastChannel = "whatsapp"
		s.LastTo = "123"
	})

	if err := sched.probe(context.Background(), Channel{Config: cfg}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*delivered) != 0 {
		t.Fatalf("expected no delivery, got %v", *delivered)
	}
}

// TestProbe_HeartbeatOKDeliveredWithRemainder verifies that a HEARTBEAT_OK
// reply with extra commentary is delivered (remainder only) when showOk is
// enabled and within ackMaxChars.
func TestProbe_HeartbeatOKDeliveredWithRemainder(t *testing.T) {
	run := func(ctx context.Context, sessionKey, prompt string) (string, error) {
		return "HEARTBEAT_OK all quiet", nil
	}
	cfg := config.HeartbeatConfig{Every: "5m", AckMaxChars: 300, Visibility: config.VisibilityConfig{ShowOk: true}}
	sched, mgr, delivered := newTestScheduler(t, Channel{Config: cfg}, run, func(string) bool { return true })
	mgr.Mutate("main", func(s *sessions.Session) {
		s.LastChannel = "whatsapp"
		s.LastTo = "123"
	})

	if err := sched.probe(context.Background(), Channel{Config: cfg}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*delivered) != 1 {
		t.Fatalf("expected one delivery, got %v", *delivered)
	}
}

// TestProbe_TelegramAccountIDOverride verifies scenario 4: a Telegram
// heartbeat with an accountId override reaches Deliver carrying it.
func TestProbe_TelegramAccountIDOverride(t *testing.T) {
	run := func(ctx context.Context, sessionKey, prompt string) (string, error) {
		return "alert: disk almost full", nil
	}
	cfg := config.HeartbeatConfig{
		Every:     "5m",
		Target:    "telegram",
		AccountID: "work",
		Visibility: config.VisibilityConfig{ShowAlerts: true},
	}
	sched, mgr, delivered := newTestScheduler(t, Channel{Config: cfg}, run, func(string) bool { return true })
	mgr.Mutate("main", func(s *sessions.Session) {
		s.LastChannel = "whatsapp"
		s.LastTo = "123"
	})

	if err := sched.probe(context.Background(), Channel{Config: cfg}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*delivered) != 1 {
		t.Fatalf("expected one delivery, got %v", *delivered)
	}
	got := (*delivered)[0]
	want := "telegram|123|work|alert: disk almost full"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

// TestWithinActiveHours_WrapsOvernight covers a window crossing midnight.
func TestWithinActiveHours_WrapsOvernight(t *testing.T) {
	cfg := config.ActiveHoursConfig{Start: "22:00", End: "06:00", Timezone: "UTC"}
	late := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	early := time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !withinActiveHours(cfg, late) {
		t.Fatal("expected 23:00 to be within an overnight 22:00-06:00 window")
	}
	if !withinActiveHours(cfg, early) {
		t.Fatal("expected 05:00 to be within an overnight 22:00-06:00 window")
	}
	if withinActiveHours(cfg, midday) {
		t.Fatal("expected midday to be outside an overnight 22:00-06:00 window")
	}
}

func TestParseEvery_DisablesZeroAndOff(t *testing.T) {
	for _, v := range []string{"", "0m", "off"} {
		if _, ok := parseEvery(v); ok {
			t.Fatalf("expected %q to disable the channel", v)
		}
	}
	if d, ok := parseEvery("30m"); !ok || d != 30*time.Minute {
		t.Fatalf("expected 30m to parse, got %v ok=%v", d, ok)
	}
}
