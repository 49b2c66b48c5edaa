//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import "golang.org/x/sys/unix"

func setReceiveBufferSize(fd uintptr, size int) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size)
}
