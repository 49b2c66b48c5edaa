//go:build !linux

// SPDX-License-Identifier: GPL-3.0-or-later

package netcore_test

import (
	"net"
	"testing"
)

func assertReceiveBufferAtLeast(t *testing.T, pconn net.PacketConn, size int) {
	t.Skip("receive buffer inspection is only implemented on linux")
}
