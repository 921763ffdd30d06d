package core

import "github.com/dkeye/pingpong/internal/domain"

// Category distinguishes locally sent from remotely received messages.
type Category int

const (
	Sent Category = iota
	Received
)

func (c Category) String() string {
	if c == Sent {
		return "sent"
	}
	return "received"
}

// Class is the display class the demo page used for the category.
func (c Category) Class() string {
	if c == Sent {
		return "msg_client"
	}
	return "msg_server"
}

// Observer is notified of every message the exchanger sends or drains.
type Observer interface {
	Observe(m domain.Message, c Category)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(domain.Message, Category)

func (f ObserverFunc) Observe(m domain.Message, c Category) { f(m, c) }

// Observers fans a notification out in order.
type Observers []Observer

func (obs Observers) Observe(m domain.Message, c Category) {
	for _, o := range obs {
		o.Observe(m, c)
	}
}
