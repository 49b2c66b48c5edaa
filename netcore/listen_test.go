// SPDX-License-Identifier: GPL-3.0-or-later

package netcore_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/rbmk-project/shuffler/netcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenPacket(t *testing.T) {
	t.Run("loopback round trip", func(t *testing.T) {
		nx := &netcore.Network{}
		pconn, err := nx.ListenPacket(context.Background(), "udp", "127.0.0.1:0")
		require.NoError(t, err)
		defer pconn.Close()

		client, err := net.Dial("udp", pconn.LocalAddr().String())
		require.NoError(t, err)
		defer client.Close()
		_, err = client.Write([]byte("ping"))
		require.NoError(t, err)

		require.NoError(t, pconn.SetReadDeadline(time.Now().Add(5*time.Second)))
		buf := make([]byte, 64)
		count, addr, err := pconn.ReadFrom(buf)
		require.NoError(t, err)
		assert.Equal(t, "ping", string(buf[:count]))
		assert.Equal(t, client.LocalAddr().String(), addr.String())
	})

	t.Run("bind failure wraps ErrBind", func(t *testing.T) {
		expectedErr := errors.New("mocked bind error")
		nx := &netcore.Network{
			ListenPacketFunc: func(ctx context.Context, network, address string) (net.PacketConn, error) {
				return nil, expectedErr
			},
		}
		pconn, err := nx.ListenPacket(context.Background(), "udp", "127.0.0.1:0")
		assert.Nil(t, pconn)
		assert.ErrorIs(t, err, netcore.ErrBind)
		assert.ErrorIs(t, err, expectedErr)
	})

	t.Run("address already in use", func(t *testing.T) {
		nx := &netcore.Network{}
		first, err := nx.ListenPacket(context.Background(), "udp", "127.0.0.1:0")
		require.NoError(t, err)
		defer first.Close()

		second, err := nx.ListenPacket(context.Background(), "udp", first.LocalAddr().String())
		assert.Nil(t, second)
		assert.ErrorIs(t, err, netcore.ErrBind)
	})

	t.Run("invalid address", func(t *testing.T) {
		pconn, err := netcore.DefaultNetwork.ListenPacket(context.Background(), "udp", "not-an-address")
		assert.Nil(t, pconn)
		assert.ErrorIs(t, err, netcore.ErrBind)
	})

	t.Run("emits listen events", func(t *testing.T) {
		var buf bytes.Buffer
		nx := &netcore.Network{
			Logger: slog.New(slog.NewTextHandler(&buf, nil)),
		}
		pconn, err := nx.ListenPacket(context.Background(), "udp", "127.0.0.1:0")
		require.NoError(t, err)
		require.NoError(t, pconn.Close())
		out := buf.String()
		assert.Contains(t, out, "msg=listenStart")
		assert.Contains(t, out, "msg=listenDone")
		assert.Contains(t, out, "localAddr="+pconn.LocalAddr().String())
		assert.Contains(t, out, "msg=closeDone")
	})

	t.Run("receive buffer size", func(t *testing.T) {
		nx := &netcore.Network{ReceiveBufferSize: 1 << 16}
		pconn, err := nx.ListenPacket(context.Background(), "udp", "127.0.0.1:0")
		require.NoError(t, err)
		defer pconn.Close()
		assertReceiveBufferAtLeast(t, pconn, 1<<16)
	})
}
