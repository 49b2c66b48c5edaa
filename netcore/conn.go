//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// PacketConn wrapper.
//

package netcore

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rbmk-project/common/errclass"
)

// addrString is a safe way to stringify a possibly-nil address.
func addrString(addr net.Addr) string {
	if addr != nil {
		return addr.String()
	}
	return ""
}

// maybeWrapPacketConn wraps a connection when it makes sense to do so.
func (nx *Network) maybeWrapPacketConn(ctx context.Context, pconn net.PacketConn) net.PacketConn {
	if pconn != nil && nx.Logger != nil {
		pconn = WrapPacketConn(ctx, nx, pconn)
	}
	return pconn
}

// WrapPacketConn wraps a given [net.PacketConn] to emit structured logs.
//
// ReadFrom and WriteTo events use the [slog.LevelDebug] level, since
// they happen once per datagram.
func WrapPacketConn(ctx context.Context, netx *Network, pconn net.PacketConn) net.PacketConn {
	laddr := pconn.LocalAddr()
	protocol := ""
	if laddr != nil {
		protocol = laddr.Network()
	}
	return &packetConnWrapper{
		ctx:       ctx,
		closeonce: sync.Once{},
		conn:      pconn,
		laddr:     addrString(laddr),
		netx:      netx,
		protocol:  protocol,
	}
}

// packetConnWrapper wraps a [net.PacketConn].
type packetConnWrapper struct {
	ctx       context.Context // only used for logging
	closeonce sync.Once
	conn      net.PacketConn
	laddr     string
	netx      *Network // may contain nil logger!
	protocol  string
}

var _ net.PacketConn = &packetConnWrapper{}

// Close implements [net.PacketConn].
func (c *packetConnWrapper) Close() (err error) {
	c.closeonce.Do(func() {
		t0 := c.netx.timeNow()
		if c.netx.Logger != nil {
			c.netx.Logger.InfoContext(
				c.ctx,
				"closeStart",
				slog.String("localAddr", c.laddr),
				slog.String("protocol", c.protocol),
				slog.Time("t", t0),
			)
		}

		err = c.conn.Close()

		if c.netx.Logger != nil {
			c.netx.Logger.InfoContext(
				c.ctx,
				"closeDone",
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
				slog.String("localAddr", c.laddr),
				slog.String("protocol", c.protocol),
				slog.Time("t0", t0),
				slog.Time("t", c.netx.timeNow()),
			)
		}
	})
	return
}

// LocalAddr implements [net.PacketConn].
func (c *packetConnWrapper) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// ReadFrom implements [net.PacketConn].
func (c *packetConnWrapper) ReadFrom(buf []byte) (int, net.Addr, error) {
	t0 := c.netx.timeNow()

	count, addr, err := c.conn.ReadFrom(buf)

	if c.netx.Logger != nil {
		c.netx.Logger.DebugContext(
			c.ctx,
			"readFromDone",
			slog.Int("ioBufferSize", len(buf)),
			slog.Int("ioBytesCount", count),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", addrString(addr)),
			slog.Time("t0", t0),
			slog.Time("t", c.netx.timeNow()),
		)
	}

	return count, addr, err
}

// SetDeadline implements [net.PacketConn].
func (c *packetConnWrapper) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline implements [net.PacketConn].
func (c *packetConnWrapper) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements [net.PacketConn].
func (c *packetConnWrapper) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// WriteTo implements [net.PacketConn].
func (c *packetConnWrapper) WriteTo(data []byte, addr net.Addr) (int, error) {
	t0 := c.netx.timeNow()

	count, err := c.conn.WriteTo(data, addr)

	if c.netx.Logger != nil {
		c.netx.Logger.DebugContext(
			c.ctx,
			"writeToDone",
			slog.Int("ioBufferSize", len(data)),
			slog.Int("ioBytesCount", count),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", addrString(addr)),
			slog.Time("t0", t0),
			slog.Time("t", c.netx.timeNow()),
		)
	}

	return count, err
}
