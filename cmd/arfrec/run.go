package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/go-arf/logger"
	"github.com/robert-malhotra/go-arf/record"
)

// source feeds a session until ctx is done or it runs out of data.
type source func(ctx context.Context, s *record.Session) error

type runOptions struct {
	log         logger.Logger
	metricsAddr string
	realtime    bool
	// background runs alongside the producers and is stopped once they
	// finish.
	background source
}

// layout maps configured processors onto session channel indexes.
type layout struct {
	channels    [][]int
	spikeGroups []int
}

func setup(s *record.Session, cfg runConfig) (layout, error) {
	var l layout
	for _, p := range cfg.Processors {
		if err := s.RegisterProcessor(p.ID, p.SampleRate); err != nil {
			return layout{}, err
		}
		idx := make([]int, 0, p.Channels)
		for range p.Channels {
			i, err := s.AddChannel(record.Channel{
				Processor:  p.ID,
				BitVolts:   p.BitVolts,
				SampleRate: p.SampleRate,
				Record:     true,
			})
			if err != nil {
				return layout{}, err
			}
			idx = append(idx, i)
		}
		l.channels = append(l.channels, idx)
	}
	for _, n := range cfg.SpikeGroups {
		g, err := s.AddSpikeGroup(n)
		if err != nil {
			return layout{}, err
		}
		l.spikeGroups = append(l.spikeGroups, g)
	}
	return l, nil
}

func run(ctx context.Context, cfg runConfig, opts runOptions) error {
	log := opts.log
	if log == nil {
		log = logger.Nop()
	}
	reg := prometheus.NewRegistry()
	s, err := record.New(cfg.Recorder, record.WithLogger(log), record.WithMetrics(record.NewMetrics(reg)))
	if err != nil {
		return err
	}
	l, err := setup(s, cfg)
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, reg, log)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if err := s.OpenSection(cfg.Root, cfg.Experiment, cfg.Recording); err != nil {
		return fmt.Errorf("opening section: %w", err)
	}
	log.Info("recording started", "files", s.Files(), "duration", cfg.Duration)
	if err := s.SubmitMessage(record.Message{Text: "ARF SetAttr source arfrec"}); err != nil {
		log.Warn("tagging recording", "error", err)
	}
	start := time.Now()

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	bgDone := make(chan error, 1)
	if opts.background != nil {
		go func() { bgDone <- opts.background(bgCtx, s) }()
	} else {
		bgDone <- nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range cfg.Processors {
		g.Go(func() error {
			return produceSamples(gctx, s, p, l.channels[i], cfg, opts.realtime)
		})
	}
	if cfg.TTLRate > 0 {
		g.Go(func() error { return produceTTL(gctx, s, cfg, opts.realtime) })
	}
	if cfg.SpikeRate > 0 && len(l.spikeGroups) > 0 {
		g.Go(func() error { return produceSpikes(gctx, s, l.spikeGroups, cfg, opts.realtime) })
	}
	errRun := g.Wait()
	if errors.Is(errRun, context.Canceled) {
		errRun = nil
	}
	stopBackground()
	errBackground := <-bgDone

	part := s.Part()
	errClose := s.CloseSection()
	log.Info("recording stopped", "elapsed", time.Since(start), "part", part.Index)
	return errors.Join(errRun, errBackground, errClose)
}

func serveMetrics(addr string, reg *prometheus.Registry, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "error", err)
		}
	}()
	return srv
}
