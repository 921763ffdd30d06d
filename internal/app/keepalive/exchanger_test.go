package keepalive_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/dkeye/pingpong/internal/app/inbox"
	"github.com/dkeye/pingpong/internal/app/keepalive"
	"github.com/dkeye/pingpong/internal/core"
	"github.com/dkeye/pingpong/internal/core/mocks"
	"github.com/dkeye/pingpong/internal/domain"
)

var probeRe = regexp.MustCompile(`^PING: [A-Za-z0-9]{5,9}$`)

type event struct {
	msg domain.Message
	cat core.Category
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Observe(m domain.Message, c core.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{m, c})
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

// harness captures the callbacks the exchanger registers on the endpoint.
type harness struct {
	ep      *mocks.MockEndpoint
	rec     *recorder
	x       *keepalive.Exchanger
	deliver func(domain.Message)
	closeFn func()
}

func newHarness(t *testing.T, opts ...keepalive.Option) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{ep: mocks.NewMockEndpoint(ctrl), rec: &recorder{}}

	h.ep.EXPECT().OnReceive(gomock.Any()).Do(func(fn func(domain.Message)) { h.deliver = fn })
	h.ep.EXPECT().OnClose(gomock.Any()).Do(func(fn func()) { h.closeFn = fn })

	opts = append([]keepalive.Option{
		keepalive.WithProbability(0),
		keepalive.WithObserver(h.rec),
		keepalive.WithRand(rand.New(rand.NewPCG(1, 2))),
	}, opts...)
	h.x = keepalive.New(h.ep, opts...)
	return h
}

func TestProbeIsAnswered(t *testing.T) {
	h := newHarness(t)
	h.ep.EXPECT().Send(domain.Message("PONG: PING: abc123")).Return(nil).Times(1)

	h.deliver("PING: abc123")
	if !h.x.Tick() {
		t.Fatal("tick should reschedule")
	}

	got := h.rec.snapshot()
	want := []event{
		{"PING: abc123", core.Received},
		{"PONG: PING: abc123", core.Sent},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if s := h.x.Stats(); s.Received != 1 || s.Responses != 1 || s.Sent != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestForcedProbeOnEmptyQueue(t *testing.T) {
	h := newHarness(t, keepalive.WithProbability(1))

	var sent []domain.Message
	h.ep.EXPECT().Send(gomock.Any()).DoAndReturn(func(m domain.Message) error {
		sent = append(sent, m)
		return nil
	}).Times(1)

	h.x.Tick()

	if len(sent) != 1 || !probeRe.MatchString(string(sent[0])) {
		t.Fatalf("expected one well-formed probe, got %q", sent)
	}
	for _, e := range h.rec.snapshot() {
		if e.cat == core.Received {
			t.Fatalf("unexpected drain %v", e)
		}
	}
	if s := h.x.Stats(); s.Probes != 1 || s.Received != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestDrainOrderAndOneMessagePerTick(t *testing.T) {
	h := newHarness(t)
	for _, m := range []domain.Message{"x", "y", "PING: z"} {
		h.deliver(m)
	}

	h.x.Tick()
	h.x.Tick()
	if n := len(h.rec.snapshot()); n != 2 {
		t.Fatalf("expected two drains before any send, got %d events", n)
	}

	h.ep.EXPECT().Send(domain.Message("PONG: PING: z")).Return(nil)
	h.x.Tick()

	got := h.rec.snapshot()
	want := []event{
		{"x", core.Received},
		{"y", core.Received},
		{"PING: z", core.Received},
		{"PONG: PING: z", core.Sent},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestTickBoundedWork(t *testing.T) {
	h := newHarness(t, keepalive.WithProbability(1))
	for i := 0; i < 5; i++ {
		h.deliver(domain.Message(fmt.Sprintf("m%d", i)))
	}
	h.ep.EXPECT().Send(gomock.Any()).Return(nil).Times(1)

	h.x.Tick()

	if p := h.x.Pending(); p != 4 {
		t.Fatalf("expected 4 pending after one tick, got %d", p)
	}
}

func TestStoppedAfterClose(t *testing.T) {
	h := newHarness(t, keepalive.WithProbability(1))
	h.deliver("PING: late")
	h.closeFn()

	if h.x.Tick() {
		t.Fatal("tick after close must not reschedule")
	}
	if !h.x.Stopped() {
		t.Fatal("expected stopped")
	}
	if n := len(h.rec.snapshot()); n != 0 {
		t.Fatalf("expected no work after close, got %d events", n)
	}
}

func TestSendFailureIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.ep.EXPECT().Send(gomock.Any()).Return(&domain.SendError{State: domain.Closed}).Times(1)

	h.deliver("PING: abc")
	h.x.Tick()
	h.x.Tick()

	for _, e := range h.rec.snapshot() {
		if e.cat == core.Sent {
			t.Fatalf("failed send must not be observed as sent: %v", e)
		}
	}
	if s := h.x.Stats(); s.SendFailures != 1 || s.Responses != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestNonProbeIsOnlyObserved(t *testing.T) {
	h := newHarness(t)
	h.deliver("PONG: PING: abc")
	h.deliver("hello")
	h.x.Tick()
	h.x.Tick()

	if n := len(h.rec.snapshot()); n != 2 {
		t.Fatalf("expected two receipts, got %d", n)
	}
}

func TestQueueOverflowCounted(t *testing.T) {
	h := newHarness(t, keepalive.WithQueue(2, inbox.Reject))
	h.deliver("a")
	h.deliver("b")
	h.deliver("c")

	if s := h.x.Stats(); s.Dropped != 1 || s.Pending != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestRunStopsAfterRemoteClose(t *testing.T) {
	h := newHarness(t, keepalive.WithProbability(1), keepalive.WithPeriod(time.Millisecond))

	var mu sync.Mutex
	sends := 0
	h.ep.EXPECT().Send(gomock.Any()).DoAndReturn(func(domain.Message) error {
		mu.Lock()
		sends++
		mu.Unlock()
		return nil
	}).AnyTimes()

	done := make(chan error, 1)
	go func() { done <- h.x.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	h.closeFn()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after close")
	}

	mu.Lock()
	before := sends
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	after := sends
	mu.Unlock()
	if before == 0 || after != before {
		t.Fatalf("sends before=%d after=%d", before, after)
	}
}

func TestRunHonoursContext(t *testing.T) {
	h := newHarness(t, keepalive.WithPeriod(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.x.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAnswerAllButResponses(t *testing.T) {
	h := newHarness(t, keepalive.WithAnswerRule(keepalive.AnswerAllButResponses))
	h.ep.EXPECT().Send(domain.Message("PONG: hello")).Return(nil).Times(1)

	h.deliver("hello")
	h.deliver("PONG: PING: abc")
	h.deliver("PONGabc")
	h.x.Tick()
	h.x.Tick()
	h.x.Tick()

	if s := h.x.Stats(); s.Received != 3 || s.Responses != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestParseAnswerRule(t *testing.T) {
	all, err := keepalive.ParseAnswerRule("all")
	if err != nil || !all("hello") || all("PONG: x") {
		t.Fatalf("unexpected rule for all: %v", err)
	}
	probes, err := keepalive.ParseAnswerRule("")
	if err != nil || probes("hello") || !probes("PING: x") {
		t.Fatalf("unexpected default rule: %v", err)
	}
	if _, err := keepalive.ParseAnswerRule("bogus"); err == nil {
		t.Fatal("expected error for unknown rule")
	}
}
