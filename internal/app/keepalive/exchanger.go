// Package keepalive drives the PING/PONG liveness exchange on top of a core.Endpoint.
//
// Each tick drains at most one inbound message and emits at most one
// unsolicited probe, so inbound bursts never starve probing and vice versa.
package keepalive

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/pingpong/internal/app/inbox"
	"github.com/dkeye/pingpong/internal/core"
	"github.com/dkeye/pingpong/internal/domain"
)

const (
	DefaultPeriod      = 100 * time.Millisecond
	DefaultProbability = 0.05
)

// Stats are cumulative counters of one exchanger.
type Stats struct {
	Received     uint64 `json:"received"`
	Sent         uint64 `json:"sent"`
	Probes       uint64 `json:"probes"`
	Responses    uint64 `json:"responses"`
	SendFailures uint64 `json:"send_failures"`
	Dropped      uint64 `json:"dropped"`
	Pending      int    `json:"pending"`
}

// AnswerRule decides whether a drained message gets a response.
type AnswerRule func(domain.Message) bool

// AnswerProbes answers only messages starting with PING.
func AnswerProbes(m domain.Message) bool { return m.IsProbe() }

// AnswerAllButResponses answers everything that does not start with PONG,
// which is how the demo server treats its peers.
func AnswerAllButResponses(m domain.Message) bool {
	return !strings.HasPrefix(string(m), domain.ResponseToken)
}

// ParseAnswerRule maps a config value ("probes" or "all") to a rule.
func ParseAnswerRule(s string) (AnswerRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "probes":
		return AnswerProbes, nil
	case "all":
		return AnswerAllButResponses, nil
	default:
		return AnswerProbes, fmt.Errorf("unknown answer rule %q", s)
	}
}

type Option func(*Exchanger)

// WithAnswerRule replaces the default AnswerProbes rule.
func WithAnswerRule(rule AnswerRule) Option {
	return func(x *Exchanger) {
		if rule != nil {
			x.answer = rule
		}
	}
}

func WithPeriod(d time.Duration) Option {
	return func(x *Exchanger) {
		if d > 0 {
			x.period = d
		}
	}
}

// WithProbability sets the per-tick chance of an unsolicited probe, clamped to [0,1].
func WithProbability(p float64) Option {
	return func(x *Exchanger) {
		x.probability = min(max(p, 0), 1)
	}
}

func WithRand(r *rand.Rand) Option {
	return func(x *Exchanger) { x.rng = r }
}

func WithObserver(o core.Observer) Option {
	return func(x *Exchanger) { x.observers = append(x.observers, o) }
}

// WithQueue bounds the inbound queue. limit 0 keeps it unbounded.
func WithQueue(limit int, policy inbox.OverflowPolicy) Option {
	return func(x *Exchanger) { x.inbox = inbox.New(limit, policy) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(x *Exchanger) { x.logger = l }
}

// Exchanger answers probes from the peer and probes it back.
// It never opens or destroys the endpoint; it only stops ticking once the
// endpoint reports closure.
type Exchanger struct {
	ep          core.Endpoint
	inbox       *inbox.Queue
	observers   core.Observers
	answer      AnswerRule
	period      time.Duration
	probability float64
	rng         *rand.Rand
	logger      zerolog.Logger

	stopped atomic.Bool

	received     atomic.Uint64
	sent         atomic.Uint64
	probes       atomic.Uint64
	responses    atomic.Uint64
	sendFailures atomic.Uint64
}

// New wires the exchanger into ep's receive and close callbacks.
func New(ep core.Endpoint, opts ...Option) *Exchanger {
	x := &Exchanger{
		ep:          ep,
		inbox:       inbox.New(0, inbox.DropOldest),
		answer:      AnswerProbes,
		period:      DefaultPeriod,
		probability: DefaultProbability,
		logger:      log.With().Str("module", "app.keepalive").Logger(),
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.rng == nil {
		x.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ep.OnReceive(x.enqueue)
	ep.OnClose(x.stop)
	return x
}

func (x *Exchanger) enqueue(m domain.Message) {
	if err := x.inbox.Push(m); err != nil {
		x.logger.Warn().Err(err).Int("pending", x.inbox.Len()).Msg("inbound overflow")
	}
}

func (x *Exchanger) stop() {
	if !x.stopped.Swap(true) {
		x.logger.Debug().Msg("endpoint closed, stopping")
	}
}

// Stopped reports whether the endpoint has closed.
func (x *Exchanger) Stopped() bool { return x.stopped.Load() }

func (x *Exchanger) Period() time.Duration { return x.period }

// Pending is the number of inbound messages not yet drained.
func (x *Exchanger) Pending() int { return x.inbox.Len() }

func (x *Exchanger) Stats() Stats {
	return Stats{
		Received:     x.received.Load(),
		Sent:         x.sent.Load(),
		Probes:       x.probes.Load(),
		Responses:    x.responses.Load(),
		SendFailures: x.sendFailures.Load(),
		Dropped:      x.inbox.Dropped(),
		Pending:      x.inbox.Len(),
	}
}

// Tick runs one step of the exchange and reports whether another should be
// scheduled. Not safe for concurrent use; Run calls it from one goroutine.
func (x *Exchanger) Tick() bool {
	if x.stopped.Load() {
		return false
	}

	if m, ok := x.inbox.Pop(); ok {
		x.received.Add(1)
		x.observers.Observe(m, core.Received)
		if x.answer(m) {
			if x.send(m.Response()) {
				x.responses.Add(1)
			}
		}
	}

	if x.probability > 0 && x.rng.Float64() < x.probability {
		if x.send(NewProbe(x.rng)) {
			x.probes.Add(1)
		}
	}
	return true
}

func (x *Exchanger) send(m domain.Message) bool {
	if err := x.ep.Send(m); err != nil {
		x.sendFailures.Add(1)
		x.logger.Debug().Err(err).Str("msg", string(m)).Msg("send skipped")
		return false
	}
	x.sent.Add(1)
	x.observers.Observe(m, core.Sent)
	return true
}

// Run ticks every period until the endpoint closes or ctx is done.
// Closure of the endpoint is observed at the start of the next tick.
func (x *Exchanger) Run(ctx context.Context) error {
	timer := time.NewTimer(x.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if !x.Tick() {
			x.logger.Info().Interface("stats", x.Stats()).Msg("exchange finished")
			return nil
		}
		timer.Reset(x.period)
	}
}
