// Package domain contains the wire-level values exchanged between peers, without transport logic.
package domain

import "strings"

const (
	// ProbeToken marks a liveness probe. Any message starting with it is answered.
	ProbeToken = "PING"
	// ProbePrefix is what self-generated probes start with.
	ProbePrefix = ProbeToken + ": "
	// ResponseToken marks a message that must never be answered.
	ResponseToken = "PONG"
	// ResponsePrefix is prepended to the full probe text to build a response.
	ResponsePrefix = ResponseToken + ": "
)

// Message is an immutable text payload carried in one websocket text frame.
type Message string

// NewProbe builds a probe around a token.
func NewProbe(token string) Message {
	return Message(ProbePrefix + token)
}

// IsProbe reports whether the peer expects a response for m.
func (m Message) IsProbe() bool {
	return strings.HasPrefix(string(m), ProbeToken)
}

// IsResponse reports whether m answers a probe.
func (m Message) IsResponse() bool {
	return strings.HasPrefix(string(m), ResponsePrefix)
}

// Response echoes m back with the response prefix, probe prefix included.
func (m Message) Response() Message {
	return Message(ResponsePrefix + string(m))
}

func (m Message) String() string { return string(m) }
