// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Command rvsim runs a ready/valid stream pipeline simulation.
//
// Usage:
//
//	rvsim [-config rvsim.yaml] [-steps n]
//
// The pipeline, clock domains and outputs are described by the configuration
// file; see package internal/config. While running, Prometheus metrics are
// served on metrics.addr if set, and transfers are recorded in the sqlite
// database at trace.path if set. A JSON summary is printed on exit.
//
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/db47h/rvsim"
	"github.com/db47h/rvsim/internal/config"
	"github.com/db47h/rvsim/internal/metrics"
	"github.com/db47h/rvsim/internal/pipeline"
	"github.com/db47h/rvsim/internal/trace"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"
)

type summary struct {
	RunID    string          `json:"run_id"`
	Duration string          `json:"duration"`
	Stopped  string          `json:"stopped,omitempty"`
	Stats    pipeline.Stats  `json:"stats"`
	Queues   map[string]int  `json:"queues,omitempty"`
	Traced   uint64          `json:"traced,omitempty"`
	Streams  []streamSummary `json:"streams"`
}

type streamSummary struct {
	Domain    string `json:"domain"`
	Stream    string `json:"stream"`
	Transfers uint64 `json:"transfers"`
	Stalls    uint64 `json:"stalls"`
	Idle      uint64 `json:"idle"`
}

func main() {
	cfgPath := flag.String("config", "", "configuration file")
	steps := flag.Int64("steps", -1, "override sim.steps (0 runs until interrupted)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rvsim:", err)
		os.Exit(2)
	}
	if *steps >= 0 {
		cfg.Sim.Steps = uint64(*steps)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	if err = run(cfg, logger); err != nil {
		logger.Error("simulation failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Sim.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Sim.Timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	logger = logger.With(zap.String("run", runID))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	col := metrics.NewCollector(reg, cfg.Metrics.Namespace, logger)
	observers := rvsim.Observers{col}

	var store *trace.Store
	if cfg.Trace.Path != "" {
		db, err := sql.Open("sqlite", cfg.Trace.Path)
		if err != nil {
			return errors.Wrap(err, "open trace database")
		}
		defer db.Close()
		db.SetMaxOpenConns(1)
		store = trace.NewStore(db, runID, cfg.Trace.BatchSize, logger)
		if err = store.Init(ctx); err != nil {
			return err
		}
		observers = append(observers, store)
	}

	p, err := pipeline.Build(cfg, logger, rvsim.Observe(observers))
	if err != nil {
		return err
	}
	defer p.Dispose()
	for _, q := range p.Queues() {
		if err = col.WatchQueue(q.Name, q.Len, q.Depth); err != nil {
			return errors.Wrap(err, "register queue "+q.Name)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	simDone := make(chan struct{})
	var (
		stats   pipeline.Stats
		stopped error
		start   = time.Now()
	)
	g.Go(func() error {
		defer close(simDone)
		stats, stopped = p.Run(gctx, cfg.Sim.Steps, cfg.Sim.Hz)
		if stopped != nil && gctx.Err() == nil && errors.Cause(stopped) != context.DeadlineExceeded {
			return stopped
		}
		return nil
	})
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-simDone:
			case <-gctx.Done():
			}
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	s := summary{
		RunID:    runID,
		Duration: time.Since(start).String(),
		Stats:    stats,
	}
	if stopped != nil {
		s.Stopped = stopped.Error()
		logger.Info("simulation stopped early", zap.Error(stopped))
	}
	if qs := p.Queues(); len(qs) > 0 {
		s.Queues = make(map[string]int, len(qs))
		for _, q := range qs {
			s.Queues[q.Name] = q.Len()
		}
	}
	for _, d := range p.Circuit().Domains() {
		for _, name := range streamNames(cfg, d.Name()) {
			s.Streams = append(s.Streams, streamSummary{
				Domain:    d.Name(),
				Stream:    name,
				Transfers: col.Count(d.Name(), name, rvsim.Transfer),
				Stalls:    col.Count(d.Name(), name, rvsim.Stall),
				Idle:      col.Count(d.Name(), name, rvsim.Idle),
			})
		}
	}
	if store != nil {
		if err = store.Flush(context.Background()); err != nil {
			return errors.Wrap(err, "flush trace")
		}
		if err = store.Err(); err != nil {
			return errors.Wrap(err, "trace")
		}
		s.Traced = store.Written()
	}

	out, err := sonnet.Marshal(&s)
	if err != nil {
		return errors.Wrap(err, "encode summary")
	}
	fmt.Println(string(out))
	return nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// streamNames returns the names of the streams produced in domain d, in
// pipeline order.
//
func streamNames(cfg *config.Config, d string) []string {
	var names []string
	cur := cfg.Source.Domain
	if cur == d {
		names = append(names, "source")
	}
	for _, st := range cfg.Stages {
		switch st.Kind {
		case config.KindBlock, config.KindDrain:
			return names
		case config.KindCDC:
			cur = st.Domain
		}
		if cur == d {
			names = append(names, st.Name)
		}
	}
	return names
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var enc zapcore.EncoderConfig
	if cfg.Format == "console" {
		enc = zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		enc = zap.NewProductionEncoderConfig()
		enc.TimeKey = "timestamp"
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	zc := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    enc,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := zc.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "rvsim: logger:", err)
		return zap.NewNop()
	}
	return logger
}
