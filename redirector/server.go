//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Receive loop and forwarding.
//

/*
Package redirector implements a UDP redirector that impairs traffic.

Clients send datagrams whose first six bytes contain the final
destination (IPv4 address and port, both big endian). The [*Server]
strips this header, drops the packet with the configured probability,
and otherwise forwards the payload to the destination after a random
delay. Because each packet gets its own delay, packets may leave in
a different order than they arrived.

The same socket is used for receiving from clients and for sending to
destinations, hence replies from the destination reach the server, which
treats them like any other datagram.
*/
package redirector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/shuffler/impair"
	"github.com/rbmk-project/shuffler/metrics"
	"github.com/rbmk-project/shuffler/netipx"
	"github.com/rbmk-project/shuffler/packet"
	"github.com/rbmk-project/shuffler/scheduler"
)

// Server is a running redirector.
//
// Construct using [Listen].
type Server struct {
	closeonce sync.Once
	conn      net.PacketConn
	decoder   *packet.Decoder
	engine    *scheduler.Engine
	logger    *slog.Logger
	metrics   *metrics.Metrics
	policy    *impair.Policy
}

// Listen validates the configuration and binds the socket.
//
// The returned error wraps [impair.ErrInvalidConfig] when the configuration
// is invalid and [netcore.ErrBind] when we cannot bind the socket.
func Listen(ctx context.Context, config *Config) (*Server, error) {
	policy, err := impair.NewPolicy(&config.Impairment, config.Source)
	if err != nil {
		return nil, err
	}

	conn, err := config.network().ListenPacket(ctx, "udp", config.address())
	if err != nil {
		return nil, err
	}

	srv := &Server{
		conn:    conn,
		decoder: &packet.Decoder{Timestamps: config.Timestamps, TimeNow: config.TimeNow},
		logger:  config.Logger,
		metrics: config.Metrics,
		policy:  policy,
	}
	srv.engine = scheduler.New(scheduler.ForwarderFunc(srv.forward))
	srv.engine.Logger = config.Logger
	srv.engine.Metrics = config.Metrics
	srv.engine.TimeNow = config.TimeNow
	return srv, nil
}

// LocalAddr returns the address the server is listening on.
func (s *Server) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Pending returns the number of packets waiting to be forwarded.
func (s *Server) Pending() int {
	return s.engine.Pending()
}

// Serve runs the receive loop until ctx is done or the server is
// closed, in which case it returns nil.
//
// Malformed datagrams and transient read errors are logged and do not
// interrupt the loop. Consecutive read errors are spaced by an exponential
// backoff capped at one second. Packets scheduled before Serve returns are
// still forwarded as long as the server is not closed; use [*Server.Drain]
// to wait for them.
func (s *Server) Serve(ctx context.Context) error {
	// Unblock ReadFrom when the context is done
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	var backoff time.Duration
	buffer := make([]byte, packet.MaxDatagramSize)
	for {
		count, addr, err := s.conn.ReadFrom(buffer)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			backoff = min(max(2*backoff, minReadBackoff), maxReadBackoff)
			s.logReadError(ctx, err, backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			continue
		}
		backoff = 0
		s.handle(ctx, buffer[:count], netipx.AddrToAddrPort(addr))
	}
}

const (
	// minReadBackoff is the wait after the first failed read.
	minReadBackoff = 5 * time.Millisecond

	// maxReadBackoff bounds the wait between consecutive failed reads.
	maxReadBackoff = time.Second
)

// sleep waits for d and returns false if ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// handle processes a single datagram.
func (s *Server) handle(ctx context.Context, data []byte, source netip.AddrPort) {
	s.metrics.PacketReceived()
	s.logReceived(ctx, len(data), source)

	pkt, err := s.decoder.Decode(data, source)
	if err != nil {
		s.metrics.PacketMalformed()
		if s.logger != nil {
			s.logger.WarnContext(
				ctx,
				"packetMalformed",
				slog.Any("err", err),
				slog.Int("ioBytesCount", len(data)),
				slog.String("srcAddr", source.String()),
			)
		}
		return
	}

	s.engine.Schedule(ctx, pkt, s.policy.Decide())
}

// forward sends the payload to dst using the listening socket.
func (s *Server) forward(ctx context.Context, payload []byte, dst netip.AddrPort) error {
	if _, err := s.conn.WriteTo(payload, netipx.UDPAddr(dst)); err != nil {
		return fmt.Errorf("forward to %s: %w", dst, err)
	}
	return nil
}

// Drain waits for the pending packets to be forwarded or for the
// context to be done, whichever happens first.
func (s *Server) Drain(ctx context.Context) error {
	return s.engine.Wait(ctx)
}

// Close closes the socket. Packets still pending will fail to
// be forwarded. Close is idempotent.
func (s *Server) Close() (err error) {
	s.closeonce.Do(func() {
		err = s.conn.Close()
	})
	return
}

func (s *Server) logReceived(ctx context.Context, count int, source netip.AddrPort) {
	if s.logger != nil {
		s.logger.DebugContext(
			ctx,
			"packetReceived",
			slog.Int("ioBytesCount", count),
			slog.String("srcAddr", source.String()),
		)
	}
}

func (s *Server) logReadError(ctx context.Context, err error, backoff time.Duration) {
	if s.logger != nil {
		s.logger.WarnContext(
			ctx,
			"readFromFailed",
			slog.Duration("backoff", backoff),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
		)
	}
}
