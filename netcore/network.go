//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Definition of Network.
//

package netcore

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Network allows binding and observing UDP sockets.
//
// The zero value is ready to use.
//
// A [*Network] is safe for concurrent use by multiple goroutines as long as
// you don't modify its fields after construction and the underlying fields you
// may set (e.g., ListenPacketFunc) are also safe.
type Network struct {
	// ListenPacketFunc is the optional function for binding new
	// sockets. If this field is nil, we use a [*net.ListenConfig]
	// configured according to ReceiveBufferSize.
	ListenPacketFunc func(ctx context.Context, network, address string) (net.PacketConn, error)

	// Logger is the optional structured logger for emitting
	// structured diagnostic events. If this field is nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// ReceiveBufferSize is the optional socket receive buffer size
	// in bytes. When zero or negative, we use the system default.
	ReceiveBufferSize int

	// TimeNow is an optional function that returns the current time.
	// If this field is nil, the [time.Now] function will be used.
	TimeNow func() time.Time
}

// DefaultNetwork is the default [*Network] used by this package.
var DefaultNetwork = &Network{}

// timeNow is a function that returns the current time.
func (nx *Network) timeNow() time.Time {
	if nx.TimeNow != nil {
		return nx.TimeNow()
	}
	return time.Now()
}
