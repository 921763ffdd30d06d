package ws

import (
	"net/url"
	"time"
)

const (
	DefaultSubprotocol = "pingpong"
	DefaultPath        = "/ws_socket"
)

// Options tune both dialed and accepted endpoints.
type Options struct {
	Subprotocol      string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	SendBuffer       int
}

func DefaultOptions() Options {
	return Options{
		Subprotocol:      DefaultSubprotocol,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        32768,
		SendBuffer:       32,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Subprotocol == "" {
		o.Subprotocol = d.Subprotocol
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	return o
}

// URL builds the peer address, picking wss when the channel is secured.
func URL(host string, secure bool, path string) string {
	if path == "" {
		path = DefaultPath
	}
	u := url.URL{Scheme: "ws", Host: host, Path: path}
	if secure {
		u.Scheme = "wss"
	}
	return u.String()
}
