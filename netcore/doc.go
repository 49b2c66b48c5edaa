// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netcore binds UDP sockets and instruments them.

This package is designed to facilitate observing UDP receive and send
events via the [log/slog] package.

# Features

- [*Network.ListenPacket] binds a [net.PacketConn] and reports bind
failures wrapping [ErrBind];

- when a logger is configured, the returned [net.PacketConn] emits
structured events for each ReadFrom, WriteTo, and Close;

- optional receive buffer sizing through [golang.org/x/sys].

# Design Documents

This package is experimental and has no design documents for now.
*/
package netcore
