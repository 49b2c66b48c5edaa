// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/shuffler/closepool"
	"github.com/rbmk-project/shuffler/impair"
	"github.com/rbmk-project/shuffler/logx"
	"github.com/rbmk-project/shuffler/metrics"
	"github.com/rbmk-project/shuffler/netcore"
	"github.com/rbmk-project/shuffler/redirector"
)

// drainGrace is added to the maximum delay when draining.
const drainGrace = 250 * time.Millisecond

// serve runs the redirector until ctx is done and then waits for
// the pending packets for at most the maximum delay.
func serve(ctx context.Context, opts *options, impairment *impair.Config, stderr io.Writer) error {
	logger := logx.NewLogger(stderr, opts.verbosity, opts.timestamp)

	config := &redirector.Config{
		Address:    net.JoinHostPort("", strconv.Itoa(int(opts.port))),
		Impairment: *impairment,
		Timestamps: opts.timestamp.Enabled(),
		Logger:     logger,
		Network:    &netcore.Network{Logger: logger, ReceiveBufferSize: opts.recvBuffer},
	}

	var pool closepool.Pool
	defer pool.Close()

	var reg *prometheus.Registry
	if opts.metricsAddress != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		config.Metrics = metrics.New(reg)
	}

	srv, err := redirector.Listen(ctx, config)
	if err != nil {
		return err
	}
	pool.Add(srv)

	if reg != nil {
		shutdown, err := serveMetrics(ctx, logger, opts.metricsAddress, config.Metrics)
		if err != nil {
			return err
		}
		pool.AddFunc(shutdown)
	}

	logger.InfoContext(
		ctx,
		"serveStart",
		slog.String("localAddr", srv.LocalAddr().String()),
		slog.String("impairment", impairmentString(impairment)),
	)
	err = srv.Serve(ctx)

	// Give the pending packets a chance to leave
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout(impairment))
	defer cancel()
	derr := srv.Drain(drainCtx)
	logger.InfoContext(
		ctx,
		"serveDone",
		slog.Any("err", errors.Join(err, derr)),
		slog.String("errClass", errclass.New(derr)),
		slog.Int("pending", srv.Pending()),
	)

	return errors.Join(err, pool.Close())
}

// serveMetrics exposes the metrics over HTTP and returns
// the function that stops the HTTP server.
func serveMetrics(ctx context.Context,
	logger *slog.Logger, address string, m *metrics.Metrics) (func() error, error) {
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		err := server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metricsServeDone", slog.Any("err", err))
		}
	}()
	logger.InfoContext(ctx, "metricsServeStart", slog.String("localAddr", listener.Addr().String()))

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
	return shutdown, nil
}

// drainTimeout returns how long to wait for pending packets, which
// saturates instead of wrapping for delays close to the maximum.
func drainTimeout(c *impair.Config) time.Duration {
	if c.MaxDelay > math.MaxInt64-drainGrace {
		return math.MaxInt64
	}
	return c.MaxDelay + drainGrace
}

// impairmentString describes the configured impairment.
func impairmentString(c *impair.Config) string {
	return fmt.Sprintf("drop=%g delay=[%s, %s]", c.DropProbability, c.MinDelay, c.MaxDelay)
}
