// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/urfave/cli/v3"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/backend"
	"github.com/gogpu/vision/detector"
	"github.com/gogpu/vision/gpucore"

	// Register backends.
	_ "github.com/gogpu/vision/backend/software"
	_ "github.com/gogpu/vision/backend/wgpu"
)

// session owns everything a command runs on.
type session struct {
	id       string
	settings *settings
	config   Config
	vision   vision.Config
	log      *slog.Logger

	backend  gpucore.Backend
	gpu      *gpucore.Context
	registry *prometheus.Registry
	metrics  *detector.Metrics
	server   *http.Server
}

// newSession loads the config file, installs the logger and opens the
// backend.
func newSession(cmd *cli.Command, s *settings) (*session, error) {
	cfg, err := LoadConfig(s.configPath)
	if err != nil {
		return nil, err
	}
	cfg.apply(cmd, s)

	log, err := newLogger(s.logLevel)
	if err != nil {
		return nil, err
	}
	vision.SetLogger(log)

	vc, err := cfg.visionConfig(s)
	if err != nil {
		return nil, err
	}
	if s.frames < 1 {
		return nil, fmt.Errorf("frames must be at least 1, got %d", s.frames)
	}

	b, err := openBackend(s.backend)
	if err != nil {
		return nil, err
	}

	ss := &session{
		id:       uuid.NewString(),
		settings: s,
		config:   cfg,
		vision:   vc,
		log:      log,
		backend:  b,
		gpu:      gpucore.NewContext(b),
		registry: prometheus.NewRegistry(),
	}
	ss.registry.MustRegister(collectors.NewGoCollector())
	if ss.metrics, err = detector.NewMetrics(ss.registry); err != nil {
		ss.Close()
		return nil, err
	}
	if s.metricsAddr != "" {
		if err := ss.serveMetrics(s.metricsAddr); err != nil {
			ss.Close()
			return nil, err
		}
	}
	log.Info("kpdetect: session started", "run", ss.id, "backend", b.Name())
	return ss, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func openBackend(name string) (gpucore.Backend, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return backend.Default()
	default:
		return backend.Get(strings.ToLower(name))
	}
}

// serveMetrics exposes the registry on addr until the session closes.
func (ss *session) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(ss.registry, promhttp.HandlerOpts{}))
	ss.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := ss.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ss.log.Warn("kpdetect: metrics server stopped", "err", err)
		}
	}()
	ss.log.Info("kpdetect: serving metrics", "addr", ln.Addr().String())
	return nil
}

// options returns the detector options for this session.
func (ss *session) options() []detector.Option {
	return []detector.Option{
		detector.WithThreshold(int(ss.settings.threshold)),
		detector.WithExpected(int(ss.settings.expected)),
		detector.WithMetrics(ss.metrics),
	}
}

// snapshot returns the current value of every vision metric. Histograms
// report their sample mean.
func (ss *session) snapshot() (map[string]float64, error) {
	families, err := ss.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "vision_") || len(mf.GetMetric()) == 0 {
			continue
		}
		m := mf.GetMetric()[0]
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			out[mf.GetName()] = m.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			out[mf.GetName()] = m.GetGauge().GetValue()
		case dto.MetricType_HISTOGRAM:
			if h := m.GetHistogram(); h.GetSampleCount() > 0 {
				out[mf.GetName()+"_mean"] = h.GetSampleSum() / float64(h.GetSampleCount())
			}
		}
	}
	return out, nil
}

// Close stops the metrics server and releases the backend.
func (ss *session) Close() {
	if ss.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = ss.server.Shutdown(ctx)
		cancel()
	}
	backend.Release(ss.backend)
}
