package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/pingpong/internal/adapters/http"
	"github.com/dkeye/pingpong/internal/adapters/ws"
	"github.com/dkeye/pingpong/internal/app"
	"github.com/dkeye/pingpong/internal/app/inbox"
	"github.com/dkeye/pingpong/internal/app/keepalive"
	"github.com/dkeye/pingpong/internal/app/ticker"
	"github.com/dkeye/pingpong/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	policy, err := inbox.ParsePolicy(cfg.OverflowPolicy)
	if err != nil {
		log.Warn().Err(err).Msg("falling back to drop_oldest")
	}

	answer, err := keepalive.ParseAnswerRule(cfg.ServerAnswerRule)
	if err != nil {
		log.Warn().Err(err).Msg("falling back to answering probes only")
	}

	reg := app.NewRegistry()
	ctl := &router.PingPongController{
		Registry: reg,
		Ticker:   ticker.New(cfg.TickerSize, zerolog.DebugLevel),
		Limiter:  router.NewConnectRateLimiter(cfg.ConnectLimit, cfg.ConnectInterval),
		WS: ws.Options{
			Subprotocol:      cfg.Subprotocol,
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			ReadLimit:        cfg.ReadLimit,
			SendBuffer:       cfg.SendBuffer,
		},
		Exchange: []keepalive.Option{
			keepalive.WithPeriod(cfg.TickPeriod),
			keepalive.WithProbability(cfg.ServerProbeProbability),
			keepalive.WithAnswerRule(answer),
			keepalive.WithQueue(cfg.QueueLimit, policy),
		},
	}

	r := router.SetupRouter(ctx, cfg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("pingpong server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Int("peers", reg.CancelAll()).Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
