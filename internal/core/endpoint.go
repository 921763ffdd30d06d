package core

import "github.com/dkeye/pingpong/internal/domain"

//go:generate mockgen -source=endpoint.go -destination=mocks/mock_endpoint.go -package=mocks

// Endpoint abstracts a persistent bidirectional message channel to one peer.
// Owned by the adapter that created it; consumers never open or destroy it
// beyond calling Close.
type Endpoint interface {
	// Send enqueues m for transmission. Returns *domain.SendError unless Open.
	Send(m domain.Message) error
	// OnReceive registers fn, called once per inbound message in wire order.
	OnReceive(fn func(domain.Message))
	// OnClose registers fn, called exactly once when the endpoint becomes Closed.
	OnClose(fn func())
	State() domain.State
	// Close is idempotent.
	Close() error
}
