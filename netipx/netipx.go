// SPDX-License-Identifier: GPL-3.0-or-later

// Package netipx contains [net/netip] extensions.
package netipx

import (
	"net"
	"net/netip"
)

// AddrToAddrPort converts a [net.Addr] to a [netip.AddrPort].
//
// If the input is nil or neither a [*net.TCPAddr] nor [*net.UDPAddr],
// returns an unspecified IPv6 address with port 0.
//
// IPv4-mapped IPv6 addresses, which we read from dual-stack sockets,
// are converted to plain IPv4 addresses.
func AddrToAddrPort(addr net.Addr) netip.AddrPort {
	if addr == nil {
		return netip.AddrPortFrom(netip.IPv6Unspecified(), 0)
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return Unmap(tcp.AddrPort())
	}
	if udp, ok := addr.(*net.UDPAddr); ok {
		return Unmap(udp.AddrPort())
	}
	return netip.AddrPortFrom(netip.IPv6Unspecified(), 0)
}

// Unmap returns ap with any IPv4-mapped IPv6 prefix removed.
func Unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// UDPAddr converts a [netip.AddrPort] to the [*net.UDPAddr] that
// [net.PacketConn] WriteTo expects.
func UDPAddr(ap netip.AddrPort) *net.UDPAddr {
	return net.UDPAddrFromAddrPort(ap)
}
