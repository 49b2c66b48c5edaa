//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Binding UDP sockets.
//

package netcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/rbmk-project/common/errclass"
)

// ErrBind indicates that we could not bind the listening socket.
var ErrBind = errors.New("could not open listening socket")

// ListenPacket binds a UDP socket to the given address.
//
// The returned error wraps both [ErrBind] and the underlying error.
func (nx *Network) ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error) {
	// Emit structured event before binding
	t0 := nx.emitListenStart(ctx, network, address)

	// Bind the socket proper
	pconn, err := nx.listenNet(ctx, network, address)

	// Emit structured event after binding
	nx.emitListenDone(ctx, network, address, t0, pconn, err)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBind, err)
	}
	return nx.maybeWrapPacketConn(ctx, pconn), nil
}

func (nx *Network) listenNet(ctx context.Context, network, address string) (net.PacketConn, error) {
	// if there's an user provided listen func, use it
	if nx.ListenPacketFunc != nil {
		return nx.ListenPacketFunc(ctx, network, address)
	}

	// otherwise use the net package
	return nx.listenConfig().ListenPacket(ctx, network, address)
}

// listenConfig returns the [*net.ListenConfig] to use.
func (nx *Network) listenConfig() *net.ListenConfig {
	lc := &net.ListenConfig{}
	if size := nx.ReceiveBufferSize; size > 0 {
		lc.Control = func(network, address string, rc syscall.RawConn) error {
			var serr error
			if err := rc.Control(func(fd uintptr) { serr = setReceiveBufferSize(fd, size) }); err != nil {
				return err
			}
			return serr
		}
	}
	return lc
}

// emitListenStart emits a structured event before binding.
func (nx *Network) emitListenStart(ctx context.Context, network, address string) time.Time {
	t0 := nx.timeNow()
	if nx.Logger != nil {
		nx.Logger.InfoContext(
			ctx,
			"listenStart",
			slog.String("localAddr", address),
			slog.String("protocol", network),
			slog.Time("t", t0),
		)
	}
	return t0
}

// emitListenDone emits a structured event after binding.
func (nx *Network) emitListenDone(ctx context.Context,
	network, address string, t0 time.Time, pconn net.PacketConn, err error) {
	if nx.Logger != nil {
		laddr := address
		if pconn != nil && pconn.LocalAddr() != nil {
			laddr = pconn.LocalAddr().String()
		}
		nx.Logger.InfoContext(
			ctx,
			"listenDone",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", laddr),
			slog.String("protocol", network),
			slog.Time("t0", t0),
			slog.Time("t", nx.timeNow()),
		)
	}
}
