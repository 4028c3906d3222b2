package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/meetrelay/internal/adapters/http"
	ctlsignal "github.com/dkeye/meetrelay/internal/adapters/signal"
	"github.com/dkeye/meetrelay/internal/adapters/tcp"
	"github.com/dkeye/meetrelay/internal/adapters/udp"
	"github.com/dkeye/meetrelay/internal/app"
	"github.com/dkeye/meetrelay/internal/app/orch"
	"github.com/dkeye/meetrelay/internal/app/sfu"
	"github.com/dkeye/meetrelay/internal/config"
	"github.com/dkeye/meetrelay/internal/journal"
	"github.com/dkeye/meetrelay/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg.Log)
	if cfg.Source != "" {
		log.Info().Str("file", cfg.Source).Msg("loaded config")
	} else {
		log.Warn().Msg("config file not found, using defaults")
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(c config.LogConfig) {
	if c.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(ctx context.Context, cfg *config.Config) error {
	ln, err := tcp.Listen(cfg.Host, cfg.TCPPort, cfg.PortSearchSpan)
	if err != nil {
		return fmt.Errorf("control listener: %w", err)
	}
	tcpPort := ln.Addr().(*net.TCPAddr).Port

	udpPort := cfg.UDPPort
	if udpPort == 0 {
		udpPort = tcpPort + 1
	}
	pc, err := udp.Listen(cfg.Host, udpPort, cfg.PortSearchSpan)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("media listener: %w", err)
	}
	log.Info().
		Int("tcp_port", tcpPort).
		Int("udp_port", pc.LocalAddr().(*net.UDPAddr).Port).
		Str("host", cfg.Host).
		Msg("meeting relay listening")

	var jr *journal.Journal
	if cfg.Journal.DSN != "" {
		jr, err = journal.Open(cfg.Journal.DSN)
		if err != nil {
			_ = ln.Close()
			_ = pc.Close()
			return err
		}
		defer jr.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	o := &orch.Orchestrator{
		Sessions: app.NewSessionManager(nil),
		Registry: app.NewRegistry(),
		Policy:   app.SimplePolicy{Kick: cfg.KickSlowPeers},
		Relay:    sfu.NewRelay(pc),
		Journal:  jr,
		Metrics:  metrics.NewMetrics(reg),
		Media: orch.MediaConfig{
			MixWindow:   cfg.Media.MixWindow,
			BufferTTL:   cfg.Media.BufferTTL,
			RebindAfter: cfg.Media.RebindAfter,
		},
	}

	limiter := ctlsignal.NewCreateRateLimiter(cfg.CreateLimit, cfg.CreateWindow)
	ctl := ctlsignal.NewController(o, ctlsignal.Options{
		SendQueue:        cfg.SendQueue,
		WriteTimeout:     cfg.WriteTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}, limiter)

	g, ctx := errgroup.WithContext(ctx)

	control := tcp.NewServer(ln, cfg.MaxFrameBytes, func(ctx context.Context, c *tcp.Conn) {
		ctl.Serve(ctx, c)
	})
	g.Go(func() error { return control.Serve(ctx) })

	media := udp.NewServer(pc, cfg.Media.PollInterval, o.OnDatagram)
	g.Go(func() error { return media.Run(ctx) })

	g.Go(func() error { return o.RunHousekeeping(ctx, cfg.Media.SweepInterval, cfg.StatsInterval) })
	g.Go(func() error { return limiter.Run(ctx) })

	if cfg.HTTP.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.HTTP.Port),
			Handler:           router.SetupRouter(ctx, cfg, o, ctl, reg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("admin API started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("admin API forced to shutdown")
			}
			return nil
		})
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	err = g.Wait()
	if !ctl.Wait(5 * time.Second) {
		log.Warn().Msg("control connections still open after shutdown timeout")
	}
	return err
}
