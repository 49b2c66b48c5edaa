// SPDX-License-Identifier: GPL-3.0-or-later

// Package shuffleconn contains client-side adapters that route
// datagrams through a redirector.
//
// Both adapters prepend the destination header to each written
// datagram and leave reads untouched, since the redirector forwards
// payloads without any header.
package shuffleconn

import (
	"context"
	"net"
	"net/netip"

	"github.com/rbmk-project/shuffler/netipx"
	"github.com/rbmk-project/shuffler/packet"
)

// Conn is a [net.Conn] connected to a redirector that sends
// every written datagram to a fixed destination.
type Conn struct {
	net.Conn
	destination netip.AddrPort
}

var _ net.Conn = &Conn{}

// Dial connects to the redirector listening at the given address
// and returns a [*Conn] writing to the given destination.
func Dial(ctx context.Context, redirector string, destination netip.AddrPort) (*Conn, error) {
	// Fail early if we cannot represent the destination
	if _, err := packet.Encode(destination, nil); err != nil {
		return nil, err
	}
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "udp", redirector)
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: conn, destination: destination}, nil
}

// Write implements [net.Conn].
func (c *Conn) Write(data []byte) (int, error) {
	frame, err := packet.Encode(c.destination, data)
	if err != nil {
		return 0, err
	}
	if _, err := c.Conn.Write(frame); err != nil {
		return 0, err
	}
	return len(data), nil
}

// RemoteAddr implements [net.Conn] and returns the destination.
func (c *Conn) RemoteAddr() net.Addr {
	return netipx.UDPAddr(c.destination)
}

// PacketConn is a [net.PacketConn] whose WriteTo sends through the
// redirector. Initialize all the fields before use.
type PacketConn struct {
	// PacketConn is the underlying socket.
	net.PacketConn

	// Redirector is the redirector address.
	Redirector net.Addr

	// Peer is the optional destination overriding the WriteTo address. This
	// is useful for replying to the peer of datagrams that the redirector
	// forwarded to us, since they appear to come from the redirector.
	Peer netip.AddrPort
}

var _ net.PacketConn = &PacketConn{}

// WriteTo implements [net.PacketConn].
func (pc *PacketConn) WriteTo(data []byte, addr net.Addr) (int, error) {
	dst := pc.Peer
	if !dst.IsValid() {
		dst = netipx.AddrToAddrPort(addr)
	}
	frame, err := packet.Encode(dst, data)
	if err != nil {
		return 0, err
	}
	if _, err := pc.PacketConn.WriteTo(frame, pc.Redirector); err != nil {
		return 0, err
	}
	return len(data), nil
}
