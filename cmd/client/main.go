package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/pingpong/internal/adapters/ws"
	"github.com/dkeye/pingpong/internal/app/inbox"
	"github.com/dkeye/pingpong/internal/app/keepalive"
	"github.com/dkeye/pingpong/internal/app/ticker"
	"github.com/dkeye/pingpong/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := pflag.NewFlagSet("pingpong-client", pflag.ExitOnError)
	fs.String("peer_host", "", "peer host:port")
	fs.Bool("secure", false, "use wss")
	fs.Duration("tick_period", 0, "exchange tick period")
	fs.Float64("probe_probability", 0, "chance of a probe per tick")
	fs.String("log_level", "", "log level")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
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

	addr := ws.URL(cfg.PeerHost, cfg.Secure, cfg.WSPath)
	ep, err := ws.Dial(ctx, addr, ws.Options{
		Subprotocol:      cfg.Subprotocol,
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		ReadLimit:        cfg.ReadLimit,
		SendBuffer:       cfg.SendBuffer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}

	tk := ticker.New(cfg.TickerSize, zerolog.InfoLevel)
	x := keepalive.New(ep,
		keepalive.WithPeriod(cfg.TickPeriod),
		keepalive.WithProbability(cfg.ProbeProbability),
		keepalive.WithQueue(cfg.QueueLimit, policy),
		keepalive.WithObserver(tk),
	)

	g, gctx := errgroup.WithContext(ctx)
	ep.Start(gctx)
	g.Go(func() error {
		defer ep.Close()
		return x.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("exchange")
		os.Exit(1)
	}
	log.Info().Interface("stats", x.Stats()).Msg("client exited")
}
