package inbox_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/pingpong/internal/app/inbox"
	"github.com/dkeye/pingpong/internal/domain"
)

func TestQueueFIFO(t *testing.T) {
	q := inbox.New(0, inbox.DropOldest)
	for _, m := range []domain.Message{"x", "y", "PING: z"} {
		if err := q.Push(m); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []domain.Message{"x", "y", "PING: z"} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = %q, %v; want %q", got, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestQueueDropOldest(t *testing.T) {
	q := inbox.New(2, inbox.DropOldest)
	_ = q.Push("a")
	_ = q.Push("b")
	if err := q.Push("c"); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Len() != 2 || q.Dropped() != 1 {
		t.Fatalf("len=%d dropped=%d", q.Len(), q.Dropped())
	}
	if m, _ := q.Pop(); m != "b" {
		t.Fatalf("expected b at head, got %q", m)
	}
	if m, _ := q.Pop(); m != "c" {
		t.Fatalf("expected c, got %q", m)
	}
}

func TestQueueReject(t *testing.T) {
	q := inbox.New(1, inbox.Reject)
	_ = q.Push("a")
	if err := q.Push("b"); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if m, _ := q.Pop(); m != "a" {
		t.Fatalf("expected a, got %q", m)
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("b should have been rejected")
	}
}

func TestQueueConcurrentPushPop(t *testing.T) {
	q := inbox.New(0, inbox.DropOldest)
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = q.Push(domain.Message(fmt.Sprint(i)))
		}
	}()

	next := 0
	for next < n {
		m, ok := q.Pop()
		if !ok {
			continue
		}
		if string(m) != fmt.Sprint(next) {
			t.Fatalf("out of order: got %q want %d", m, next)
		}
		next++
	}
	wg.Wait()
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]inbox.OverflowPolicy{
		"":            inbox.DropOldest,
		"drop_oldest": inbox.DropOldest,
		"Reject":      inbox.Reject,
	} {
		got, err := inbox.ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := inbox.ParsePolicy("bogus"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
