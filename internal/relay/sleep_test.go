package relay

import (
	"strings"
	"testing"
	"time"

	"relaygent/internal/config"
	"relaygent/internal/notify"
	"relaygent/internal/process"
)

// fakeNotifier scripts poll results and records ack/reset calls.
type fakeNotifier struct {
	polls       [][]notify.Event
	staleAfter  int // poll count after which Stale reports true; 0 disables
	staleReason string

	pollCount int
	acks      int
	resets    int
}

func (n *fakeNotifier) Poll() []notify.Event {
	n.pollCount++
	if len(n.polls) == 0 {
		return nil
	}
	events := n.polls[0]
	n.polls = n.polls[1:]
	return events
}

func (n *fakeNotifier) Stale(time.Duration, int) (bool, string) {
	if n.staleAfter > 0 && n.pollCount >= n.staleAfter {
		return true, n.staleReason
	}
	return false, ""
}

func (n *fakeNotifier) ResetStaleness() { n.resets++ }
func (n *fakeNotifier) AckSlack()       { n.acks++ }

func newTestSleepManager(source Notifier, timer *config.Timer) *SleepManager {
	m := NewSleepManager(config.Default(), timer, source, NopStatus(), nil)
	m.sleep = func(time.Duration) {}
	m.now = func() time.Time { return time.Date(2026, 3, 1, 14, 30, 5, 0, time.UTC) }
	return m
}

func TestWaitForWakeReturnsEvents(t *testing.T) {
	source := &fakeNotifier{
		polls: [][]notify.Event{
			nil,
			nil,
			{{Type: "reminder", ID: 1, Message: "ping"}},
		},
	}
	m := newTestSleepManager(source, config.NewTimer(0, 10*time.Minute))

	woken, events := m.WaitForWake()
	if !woken {
		t.Fatal("expected wake")
	}
	if len(events) != 1 || events[0].Type != "reminder" {
		t.Fatalf("unexpected events: %v", events)
	}
	if source.pollCount != 3 {
		t.Fatalf("unexpected poll count: %d", source.pollCount)
	}
}

func TestWaitForWakeForceWakesOnStaleSource(t *testing.T) {
	source := &fakeNotifier{
		staleAfter:  2,
		staleReason: "Notification cache stale — waking to check status.",
	}
	m := newTestSleepManager(source, config.NewTimer(0, 10*time.Minute))

	woken, events := m.WaitForWake()
	if !woken {
		t.Fatal("expected forced wake")
	}
	if len(events) != 1 || events[0].Type != "system" {
		t.Fatalf("unexpected synthetic event: %v", events)
	}
	if events[0].Message != source.staleReason {
		t.Fatalf("unexpected message: %q", events[0].Message)
	}
	if source.resets != 1 {
		t.Fatalf("staleness should be reset once, got %d", source.resets)
	}
}

func TestWaitForWakeStopsAtDeadline(t *testing.T) {
	source := &fakeNotifier{}
	timer := config.NewTimer(time.Nanosecond, 0)
	time.Sleep(time.Millisecond)
	m := newTestSleepManager(source, timer)

	woken, events := m.WaitForWake()
	if woken || events != nil {
		t.Fatalf("expired timer should end the sleep: woken=%v events=%v", woken, events)
	}
}

func TestAutoSleepAndWakeFormatsMessage(t *testing.T) {
	source := &fakeNotifier{
		polls: [][]notify.Event{
			{{Type: "message", Source: "slack", Channels: []notify.Channel{{ID: "C01", Name: "general", Unread: 1}}}},
		},
	}
	m := newTestSleepManager(source, config.NewTimer(0, 10*time.Minute))

	woken, message := m.AutoSleepAndWake()
	if !woken {
		t.Fatal("expected wake")
	}
	if !strings.Contains(message, "New Slack messages:") {
		t.Fatalf("missing formatted body: %q", message)
	}
	if !strings.HasSuffix(message, "Current time: 14:30:05 UTC") {
		t.Fatalf("missing time anchor: %q", message)
	}
	if source.acks != 1 {
		t.Fatalf("slack events should be acked once, got %d", source.acks)
	}
}

func TestAutoSleepAndWakeSkipsAckWithoutSlack(t *testing.T) {
	source := &fakeNotifier{
		polls: [][]notify.Event{
			{{Type: "reminder", ID: 3, Message: "check in"}},
		},
	}
	m := newTestSleepManager(source, config.NewTimer(0, 10*time.Minute))

	if woken, _ := m.AutoSleepAndWake(); !woken {
		t.Fatal("expected wake")
	}
	if source.acks != 0 {
		t.Fatalf("non-slack wake should not ack, got %d", source.acks)
	}
}

func TestRunWakeCycleRetriesUntilCleanAndStopsAtThreshold(t *testing.T) {
	source := &fakeNotifier{
		polls: [][]notify.Event{
			{{Type: "reminder", ID: 1, Message: "wake up"}},
		},
	}
	m := newTestSleepManager(source, config.NewTimer(0, 10*time.Minute))

	agent := &fakeAgent{
		sessionID: "s1",
		results: []process.RunResult{
			{Incomplete: true},
			{ContextPct: 90},
		},
	}
	result := m.RunWakeCycle(agent)
	if result == nil {
		t.Fatal("crossing the context threshold should return the result")
	}
	if result.ContextPct != 90 {
		t.Fatalf("unexpected context: %v", result.ContextPct)
	}
	if len(agent.resumes) != 2 {
		t.Fatalf("expected wake resume plus one retry, got %v", agent.resumes)
	}
	if !strings.Contains(agent.resumes[0], "wake up") {
		t.Fatalf("first resume should carry the wake message: %q", agent.resumes[0])
	}
	if agent.resumes[1] != wakeIncompleteMessage {
		t.Fatalf("unexpected retry message: %q", agent.resumes[1])
	}
}

func TestRunWakeCycleCrashRecovery(t *testing.T) {
	source := &fakeNotifier{
		polls: [][]notify.Event{
			{{Type: "reminder", ID: 1, Message: "wake up"}},
		},
	}
	m := newTestSleepManager(source, config.NewTimer(0, 10*time.Minute))

	agent := &fakeAgent{
		sessionID: "s1",
		results: []process.RunResult{
			{ExitCode: 2},
			{ContextPct: 88},
		},
	}
	result := m.RunWakeCycle(agent)
	if result == nil || result.ContextPct != 88 {
		t.Fatalf("unexpected result: %v", result)
	}
	if len(agent.resumes) != 2 || agent.resumes[1] != wakeCrashMessage {
		t.Fatalf("unexpected resumes: %v", agent.resumes)
	}
}

func TestRunWakeCycleHungRetryOutranksIncomplete(t *testing.T) {
	result := process.RunResult{Hung: true, Incomplete: true}
	kind, message := wakeRetryMessage(result)
	if kind != "hung" || message != wakeHungMessage {
		t.Fatalf("unexpected retry message: %q %q", kind, message)
	}
}

func TestRunWakeCycleStopsWhenTimeExpires(t *testing.T) {
	timer := config.NewTimer(time.Nanosecond, 0)
	time.Sleep(time.Millisecond)
	m := newTestSleepManager(&fakeNotifier{}, timer)

	if result := m.RunWakeCycle(&fakeAgent{sessionID: "s1"}); result != nil {
		t.Fatalf("expired timer should end the cycle: %v", result)
	}
}

func TestBackoffDelay(t *testing.T) {
	base := 5 * time.Second
	maxDelay := 60 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 60 * time.Second},
		{9, 60 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(base, maxDelay, tc.attempt); got != tc.want {
			t.Fatalf("backoffDelay attempt %d = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
