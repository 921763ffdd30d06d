package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/pingpong/internal/adapters/ws"
	"github.com/dkeye/pingpong/internal/app"
	"github.com/dkeye/pingpong/internal/app/keepalive"
	"github.com/dkeye/pingpong/internal/app/ticker"
)

// PingPongController accepts peers on the websocket path and runs one
// keep-alive exchanger per peer.
type PingPongController struct {
	Registry *app.Registry
	Ticker   *ticker.Ticker
	Limiter  *ConnectRateLimiter
	WS       ws.Options
	Exchange []keepalive.Option
}

func (ctl *PingPongController) HandleSocket(ctx context.Context, c *gin.Context) {
	sid := c.GetString("client_token")
	if !ctl.Limiter.Allow(limiterKey(c)) {
		log.Warn().Str("module", "adapters.http").Str("sid", sid).Str("ip", c.ClientIP()).Msg("connect rate limited")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many connections"})
		return
	}

	ep, err := ws.Upgrade(c.Writer, c.Request, ctl.WS)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("sid", sid).Msg("ws upgrade")
		c.Abort()
		return
	}

	id := app.PeerID(ep.ID())
	opts := append([]keepalive.Option{
		keepalive.WithObserver(ctl.Ticker.Peer(string(id))),
		keepalive.WithLogger(log.With().Str("module", "app.keepalive").Str("peer", string(id)).Logger()),
	}, ctl.Exchange...)
	x := keepalive.New(ep, opts...)

	peerCtx, cancel := context.WithCancel(ctx)
	ctl.Registry.Bind(app.PeerInfo{
		ID:         id,
		Session:    sid,
		RemoteAddr: ep.RemoteAddr(),
	}, ep, x, cancel)

	ep.Start(peerCtx)
	go func() {
		defer ctl.Registry.Unbind(id)
		defer cancel()
		if err := x.Run(peerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("module", "adapters.http").Str("peer", string(id)).Msg("exchange")
		}
		_ = ep.Close()
	}()
}

// limiterKey is the session token for returning clients and the client IP
// for peers that never send the cookie back.
func limiterKey(c *gin.Context) string {
	if c.GetBool("client_token_new") {
		return "ip:" + c.ClientIP()
	}
	return "ct:" + c.GetString("client_token")
}

func (ctl *PingPongController) ListPeers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"peers": ctl.Registry.List()})
}

func (ctl *PingPongController) DropPeer(c *gin.Context) {
	if !ctl.Registry.Cancel(app.PeerID(c.Param("id"))) {
		c.JSON(http.StatusNotFound, gin.H{"error": "peer not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (ctl *PingPongController) TickerEntries(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": ctl.Ticker.Snapshot()})
}
