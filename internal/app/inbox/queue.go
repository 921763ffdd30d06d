// Package inbox holds messages received from the peer until the exchanger drains them.
package inbox

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/pingpong/internal/domain"
)

// Queue is a threadsafe FIFO of inbound messages.
// Push is called from the endpoint's read loop, Pop from the tick.
// A limit of 0 leaves the queue unbounded.
type Queue struct {
	mu      sync.Mutex
	q       *queue.Queue
	limit   int
	policy  OverflowPolicy
	dropped uint64
}

func New(limit int, policy OverflowPolicy) *Queue {
	if limit < 0 {
		limit = 0
	}
	return &Queue{
		q:      queue.New(),
		limit:  limit,
		policy: policy,
	}
}

// Push appends m. When the queue is full it applies the overflow policy and
// returns domain.ErrQueueFull; under DropOldest m is still enqueued.
func (iq *Queue) Push(m domain.Message) error {
	iq.mu.Lock()
	defer iq.mu.Unlock()

	if iq.limit == 0 || iq.q.Length() < iq.limit {
		iq.q.Add(m)
		return nil
	}

	iq.dropped++
	switch iq.policy {
	case Reject:
		log.Debug().Str("module", "app.inbox").Str("msg", string(m)).Msg("queue full, rejected")
	default:
		old := iq.q.Remove().(domain.Message)
		iq.q.Add(m)
		log.Debug().Str("module", "app.inbox").Str("msg", string(old)).Msg("queue full, dropped oldest")
	}
	return domain.ErrQueueFull
}

// Pop removes the head of the queue.
func (iq *Queue) Pop() (domain.Message, bool) {
	iq.mu.Lock()
	defer iq.mu.Unlock()
	if iq.q.Length() == 0 {
		return "", false
	}
	return iq.q.Remove().(domain.Message), true
}

func (iq *Queue) Len() int {
	iq.mu.Lock()
	defer iq.mu.Unlock()
	return iq.q.Length()
}

// Dropped counts messages lost to the overflow policy.
func (iq *Queue) Dropped() uint64 {
	iq.mu.Lock()
	defer iq.mu.Unlock()
	return iq.dropped
}
