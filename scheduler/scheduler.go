//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Scheduling engine.
//

/*
Package scheduler forwards packets after their own independent delay.

The [*Engine] arms one runtime timer per forwarded packet, so a packet
delayed by five seconds never holds back a packet delayed by one
millisecond. Packets therefore leave in the order in which their delays
expire, not in the order in which they arrived.

Each scheduled packet goes from pending to fired exactly once. There is
no cancellation and no retry: a failed send is logged and counted as an
additional loss.
*/
package scheduler

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/shuffler/impair"
	"github.com/rbmk-project/shuffler/metrics"
	"github.com/rbmk-project/shuffler/packet"
)

// Forwarder sends a payload to a destination.
type Forwarder interface {
	// Forward sends payload as a single datagram to dst.
	Forward(ctx context.Context, payload []byte, dst netip.AddrPort) error
}

// ForwarderFunc adapts a func to the [Forwarder] interface.
type ForwarderFunc func(ctx context.Context, payload []byte, dst netip.AddrPort) error

var _ Forwarder = ForwarderFunc(nil)

// Forward implements [Forwarder].
func (fx ForwarderFunc) Forward(ctx context.Context, payload []byte, dst netip.AddrPort) error {
	return fx(ctx, payload, dst)
}

// Engine schedules packets for delayed forwarding.
//
// Construct using [New]. Do not modify the exported fields after the first
// call to [*Engine.Schedule]. An [*Engine] is safe for concurrent use.
type Engine struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Metrics contains the optional collectors.
	Metrics *metrics.Metrics

	// TimeNow is an optional function that returns the current time.
	// If this field is nil, the [time.Now] function will be used.
	TimeNow func() time.Time

	// fwd is the forwarder.
	fwd Forwarder

	// idle is closed and replaced as pending goes to and from zero.
	idle chan struct{}

	// mu protects idle.
	mu sync.Mutex

	// pending counts the armed timers.
	pending atomic.Int64
}

// New creates a new [*Engine] using the given [Forwarder].
func New(fwd Forwarder) *Engine {
	runtimex.Assert(fwd != nil, "scheduler: nil forwarder")
	idle := make(chan struct{})
	close(idle)
	return &Engine{fwd: fwd, idle: idle}
}

// Pending returns the number of packets waiting for their delay to expire.
func (e *Engine) Pending() int {
	return int(e.pending.Load())
}

// Schedule applies the decision to the packet and returns immediately.
//
// When the decision is to forward, the packet payload is sent to the
// packet destination no sooner than the decision delay after this call. The
// ctx is only used for logging and is passed to the [Forwarder]; cancelling
// it does not unschedule the packet.
func (e *Engine) Schedule(ctx context.Context, pkt *packet.Packet, decision impair.Decision) {
	if decision.Drop {
		e.logDropped(ctx, pkt)
		e.Metrics.PacketDropped()
		return
	}

	delay := max(0, decision.Delay)
	e.begin()
	e.logScheduled(ctx, pkt, delay)
	e.Metrics.PacketScheduled(delay)

	ctx = context.WithoutCancel(ctx)
	t0 := e.timeNow()
	time.AfterFunc(delay, func() {
		defer e.end()
		e.fire(ctx, pkt, t0)
	})
}

// fire forwards a packet whose delay has expired.
func (e *Engine) fire(ctx context.Context, pkt *packet.Packet, t0 time.Time) {
	err := e.fwd.Forward(ctx, pkt.Payload, pkt.Destination)
	class := errclass.New(err)
	e.Metrics.PacketForwarded(len(pkt.Payload), class)
	if e.Logger == nil {
		return
	}
	if err != nil {
		e.Logger.WarnContext(
			ctx,
			"forwardDone",
			slog.Int("ioBytesCount", len(pkt.Payload)),
			slog.Any("err", err),
			slog.String("errClass", class),
			slog.String("dstAddr", pkt.Destination.String()),
			slog.Time("t0", t0),
			slog.Time("t", e.timeNow()),
		)
		return
	}
	e.Logger.InfoContext(
		ctx,
		"forwardDone",
		slog.Int("ioBytesCount", len(pkt.Payload)),
		slog.Any("err", nil),
		slog.String("errClass", ""),
		slog.String("dstAddr", pkt.Destination.String()),
		slog.Time("t0", t0),
		slog.Time("t", e.timeNow()),
	)
}

// Wait blocks until no packet is pending or the context is done.
func (e *Engine) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		idle := e.idle
		e.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
			if e.pending.Load() <= 0 {
				return nil
			}
		}
	}
}

// begin registers a pending packet.
func (e *Engine) begin() {
	e.mu.Lock()
	if e.pending.Add(1) == 1 {
		e.idle = make(chan struct{})
	}
	e.mu.Unlock()
}

// end unregisters a pending packet.
func (e *Engine) end() {
	e.mu.Lock()
	if e.pending.Add(-1) == 0 {
		close(e.idle)
	}
	e.mu.Unlock()
}

func (e *Engine) logDropped(ctx context.Context, pkt *packet.Packet) {
	if e.Logger != nil {
		e.Logger.LogAttrs(ctx, slog.LevelInfo, "packetDropped", packetAttrs(pkt)...)
	}
}

func (e *Engine) logScheduled(ctx context.Context, pkt *packet.Packet, delay time.Duration) {
	if e.Logger != nil {
		attrs := append([]slog.Attr{slog.Duration("delay", delay)}, packetAttrs(pkt)...)
		e.Logger.LogAttrs(ctx, slog.LevelInfo, "packetScheduled", attrs...)
	}
}

// packetAttrs returns the attributes describing pkt.
func packetAttrs(pkt *packet.Packet) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("srcAddr", pkt.Source.String()),
		slog.String("dstAddr", pkt.Destination.String()),
		slog.Int("ioBytesCount", len(pkt.Payload)),
	}
	if !pkt.ReceivedAt.IsZero() {
		attrs = append(attrs, slog.Time("receivedAt", pkt.ReceivedAt))
	}
	return attrs
}

func (e *Engine) timeNow() time.Time {
	if e.TimeNow != nil {
		return e.TimeNow()
	}
	return time.Now()
}
