//go:build linux

// SPDX-License-Identifier: GPL-3.0-or-later

package netcore_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// assertReceiveBufferAtLeast checks SO_RCVBUF, which Linux doubles.
func assertReceiveBufferAtLeast(t *testing.T, pconn net.PacketConn, size int) {
	udpConn, ok := pconn.(*net.UDPConn)
	require.True(t, ok)
	rawConn, err := udpConn.SyscallConn()
	require.NoError(t, err)
	var (
		got  int
		gerr error
	)
	require.NoError(t, rawConn.Control(func(fd uintptr) {
		got, gerr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF)
	}))
	require.NoError(t, gerr)
	assert.GreaterOrEqual(t, got, size)
}
