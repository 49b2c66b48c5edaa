//go:build windows

// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import "golang.org/x/sys/windows"

func setReceiveBufferSize(fd uintptr, size int) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_RCVBUF, size)
}
