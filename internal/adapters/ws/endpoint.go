// Package ws implements core.Endpoint over a gorilla websocket connection.
package ws

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/pingpong/internal/domain"
)

// Endpoint is a transport endpoint (WebSocket) to a single peer.
// The write pump owns the network connection and closes it on exit.
type Endpoint struct {
	id     string
	addr   string
	conn   *websocket.Conn
	opts   Options
	send   chan domain.Message
	logger zerolog.Logger

	mu      sync.RWMutex
	state   domain.State
	started bool
	onRecv  func(domain.Message)
	onClose func()

	closeOnce sync.Once
	done      chan struct{}
}

func newEndpoint(conn *websocket.Conn, addr string, opts Options) *Endpoint {
	id := uuid.NewString()
	e := &Endpoint{
		id:    id,
		addr:  addr,
		conn:  conn,
		opts:  opts,
		send:  make(chan domain.Message, opts.SendBuffer),
		state: domain.Connecting,
		done:  make(chan struct{}),
		logger: log.With().
			Str("module", "adapters.ws").
			Str("peer", id).
			Str("addr", addr).
			Logger(),
	}
	conn.SetReadLimit(opts.ReadLimit)
	e.state = domain.Open
	return e
}

// Dial connects to addr and negotiates the configured sub-protocol.
// Any failure is reported as *domain.ConnectionError.
func Dial(ctx context.Context, addr string, opts Options) (*Endpoint, error) {
	opts = opts.withDefaults()
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		Subprotocols:     []string{opts.Subprotocol},
	}

	conn, resp, err := dialer.DialContext(ctx, addr, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, &domain.ConnectionError{Addr: addr, Err: err}
	}
	if conn.Subprotocol() != opts.Subprotocol {
		_ = conn.Close()
		return nil, &domain.ConnectionError{Addr: addr, Err: domain.ErrNoSubprotocol}
	}

	e := newEndpoint(conn, addr, opts)
	e.logger.Info().Str("subprotocol", conn.Subprotocol()).Msg("connected")
	return e, nil
}

// Upgrade accepts a peer on the server side. Requests that are not websocket
// upgrades or that do not offer the sub-protocol get 400 Bad Request.
func Upgrade(w http.ResponseWriter, r *http.Request, opts Options) (*Endpoint, error) {
	opts = opts.withDefaults()
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return nil, websocket.ErrBadHandshake
	}
	if !slices.Contains(websocket.Subprotocols(r), opts.Subprotocol) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return nil, domain.ErrNoSubprotocol
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: opts.HandshakeTimeout,
		Subprotocols:     []string{opts.Subprotocol},
		CheckOrigin:      func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newEndpoint(conn, r.RemoteAddr, opts), nil
}

func (e *Endpoint) ID() string         { return e.id }
func (e *Endpoint) RemoteAddr() string { return e.addr }

// Done is closed once the endpoint is Closed.
func (e *Endpoint) Done() <-chan struct{} { return e.done }

func (e *Endpoint) State() domain.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Endpoint) OnReceive(fn func(domain.Message)) {
	e.mu.Lock()
	e.onRecv = fn
	e.mu.Unlock()
}

// OnClose registers fn. If the endpoint is already Closed fn runs immediately.
func (e *Endpoint) OnClose(fn func()) {
	e.mu.Lock()
	if e.state == domain.Closed {
		e.mu.Unlock()
		if fn != nil {
			fn()
		}
		return
	}
	e.onClose = fn
	e.mu.Unlock()
}

// Send queues m for the write pump. No delivery acknowledgment is given.
func (e *Endpoint) Send(m domain.Message) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != domain.Open {
		return &domain.SendError{State: e.state}
	}
	select {
	case e.send <- m:
		return nil
	default:
		return domain.ErrBackpressure
	}
}

// Start launches the read and write pumps. Callbacks should be registered
// before Start so no inbound message is missed. Cancelling ctx closes the endpoint.
func (e *Endpoint) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started || e.state == domain.Closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	go e.writePump(ctx)
	go e.readPump()
}

// Close starts a graceful shutdown. Calling it again is a no-op.
func (e *Endpoint) Close() error {
	e.finish("local")
	return nil
}

func (e *Endpoint) finish(by string) {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.state = domain.Closed
		close(e.send)
		started := e.started
		cb := e.onClose
		e.onClose = nil
		e.mu.Unlock()

		if !started {
			_ = e.conn.Close()
		}
		close(e.done)
		e.logger.Info().Str("by", by).Msg("closed")
		if cb != nil {
			cb()
		}
	})
}

func (e *Endpoint) writePump(ctx context.Context) {
	defer func() {
		deadline := time.Now().Add(e.opts.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = e.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = e.conn.Close()
	}()

	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			e.logger.Debug().Msg("writePump ctx done")
			e.finish("context")
		case m, ok := <-e.send:
			if !ok {
				return
			}
			if err := e.conn.SetWriteDeadline(time.Now().Add(e.opts.WriteTimeout)); err != nil {
				e.logger.Error().Err(err).Msg("writePump set deadline")
				e.finish("write")
				return
			}
			if err := e.conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				e.logger.Error().Err(err).Msg("writePump write error")
				e.finish("write")
				return
			}
		}
	}
}

func (e *Endpoint) readPump() {
	defer e.finish("remote")

	for {
		mt, data, err := e.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				e.logger.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		if mt != websocket.TextMessage {
			e.logger.Debug().Int("type", mt).Msg("ignoring non-text frame")
			continue
		}

		e.mu.RLock()
		fn := e.onRecv
		e.mu.RUnlock()
		if fn != nil {
			fn(domain.Message(data))
		}
	}
}
