package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crossplay/logging"
	"crossplay/metrics"
	"crossplay/middleware"
	"crossplay/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

func runServe(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfgPath := fs.String("config", "", "TOML config file")
	round := fs.Int64("round", -1, "round number to answer (overrides config)")
	width := fs.Int64("width", -1, "map width to answer (overrides config)")
	height := fs.Int64("height", -1, "map height to answer (overrides config)")
	metricsFile := fs.String("metrics-file", "", "write call metrics in text format to this file on exit")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	robot := &server.Robot{Round: cfg.Stub.Round, Width: cfg.Stub.Width, Height: cfg.Stub.Height}
	if *round >= 0 {
		robot.Round = *round
	}
	if *width >= 0 {
		robot.Width = *width
	}
	if *height >= 0 {
		robot.Height = *height
	}

	ch, err := cfg.Channel()
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return err
	}

	svr := server.NewServer(ch,
		server.WithLogger(logging.Component("crossplay.server")),
		server.WithPollInterval(cfg.PollInterval),
	)
	svr.Use(middleware.MetricsMiddleware(collector, "engine"))
	svr.Use(middleware.LoggingMiddleware(logging.Component("crossplay.dispatch")))
	if cfg.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	if err := svr.Reset(); err != nil {
		return err
	}
	rc, err := server.RegisterStub(svr, robot, logging.Component("crossplay.agent"))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "serving %s; robot controller is %s:%d\n", cfg.Layout.Dir, rc.Tag, rc.Handle)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	serveErr := svr.Serve(ctx)

	if err := svr.Shutdown(cfg.Timeout + time.Second); err != nil {
		log.Warn().Err(err).Msg("shutdown")
	}
	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, registry); err != nil {
			log.Warn().Err(err).Str("file", *metricsFile).Msg("write metrics")
		}
	}
	return serveErr
}
