// Package ticker keeps a short newest-first log of exchanged messages for display.
package ticker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/pingpong/internal/core"
	"github.com/dkeye/pingpong/internal/domain"
)

const DefaultSize = 10

type Entry struct {
	Peer     string    `json:"peer,omitempty"`
	Message  string    `json:"message"`
	Category string    `json:"category"`
	Class    string    `json:"class"`
	At       time.Time `json:"at"`
}

// Ticker is a bounded display log. It implements core.Observer.
type Ticker struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	level   zerolog.Level
	now     func() time.Time
}

func New(size int, level zerolog.Level) *Ticker {
	if size <= 0 {
		size = DefaultSize
	}
	return &Ticker{
		entries: make([]Entry, 0, size),
		size:    size,
		level:   level,
		now:     time.Now,
	}
}

func (t *Ticker) Observe(m domain.Message, c core.Category) {
	t.add("", m, c)
}

// Peer returns an observer that tags entries with the peer id.
func (t *Ticker) Peer(id string) core.Observer {
	return core.ObserverFunc(func(m domain.Message, c core.Category) {
		t.add(id, m, c)
	})
}

func (t *Ticker) add(peer string, m domain.Message, c core.Category) {
	e := Entry{
		Peer:     peer,
		Message:  string(m),
		Category: c.String(),
		Class:    c.Class(),
		At:       t.now(),
	}

	t.mu.Lock()
	if len(t.entries) == t.size {
		t.entries = t.entries[:t.size-1]
	}
	t.entries = append([]Entry{e}, t.entries...)
	t.mu.Unlock()

	ev := log.WithLevel(t.level).Str("module", "app.ticker").Str("category", e.Category)
	if peer != "" {
		ev = ev.Str("peer", peer)
	}
	ev.Msg(e.Message)
}

// Snapshot returns the retained entries, newest first.
func (t *Ticker) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
