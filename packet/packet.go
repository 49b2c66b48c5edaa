// SPDX-License-Identifier: GPL-3.0-or-later

// Package packet contains [*Packet] and the redirector wire format.
//
// An inbound datagram carries the destination in its first six bytes:
//
//	| 0..3 | destination IPv4 address | network byte order |
//	| 4..5 | destination port         | network byte order |
//	| 6..  | payload to forward       | opaque             |
//
// The outbound datagram is exactly the payload.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

const (
	// HeaderSize is the size of the destination header.
	HeaderSize = 6

	// MaxDatagramSize is the largest datagram we can receive.
	MaxDatagramSize = 65535
)

var (
	// ErrMalformedPacket indicates that a datagram is too short
	// to contain the destination header.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrNotIPv4 indicates that the destination is not an IPv4 address.
	ErrNotIPv4 = errors.New("destination is not an IPv4 address")
)

// Packet is a decoded inbound datagram.
type Packet struct {
	// Source is the endpoint that sent us the datagram.
	Source netip.AddrPort

	// Destination is the endpoint parsed from the header.
	Destination netip.AddrPort

	// Payload is the datagram with the header stripped.
	Payload []byte

	// ReceivedAt is the receive time, or the zero value when
	// timestamps are not enabled.
	ReceivedAt time.Time
}

// String returns the string representation of the packet.
func (p *Packet) String() string {
	return fmt.Sprintf("%s -> %s length=%d", p.Source, p.Destination, len(p.Payload))
}

// Decode parses a datagram received from source.
//
// The payload is copied, so the caller may reuse data.
func Decode(data []byte, source netip.AddrPort) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf(
			"%w: only %d bytes in received data, minimum is %d for IP + port",
			ErrMalformedPacket, len(data), HeaderSize)
	}
	addr := netip.AddrFrom4([4]byte(data[:4]))
	port := binary.BigEndian.Uint16(data[4:HeaderSize])
	pkt := &Packet{
		Source:      source,
		Destination: netip.AddrPortFrom(addr, port),
		Payload:     append([]byte{}, data[HeaderSize:]...),
	}
	return pkt, nil
}

// Encode builds a datagram that the redirector will forward to dst.
func Encode(dst netip.AddrPort, payload []byte) ([]byte, error) {
	addr := dst.Addr().Unmap()
	if !addr.Is4() {
		return nil, fmt.Errorf("%w: %s", ErrNotIPv4, dst)
	}
	data := make([]byte, HeaderSize, HeaderSize+len(payload))
	a4 := addr.As4()
	copy(data[:4], a4[:])
	binary.BigEndian.PutUint16(data[4:HeaderSize], dst.Port())
	return append(data, payload...), nil
}

// Decoder decodes datagrams and optionally records their receive time.
//
// The zero value is ready to use.
type Decoder struct {
	// Timestamps enables recording [Packet] ReceivedAt.
	Timestamps bool

	// TimeNow is the optional function returning the current time. If
	// this field is nil, we use [time.Now].
	TimeNow func() time.Time
}

// Decode is like [Decode] but also honours the Timestamps field.
func (d *Decoder) Decode(data []byte, source netip.AddrPort) (*Packet, error) {
	pkt, err := Decode(data, source)
	if err != nil {
		return nil, err
	}
	if d.Timestamps {
		pkt.ReceivedAt = d.timeNow()
	}
	return pkt, nil
}

func (d *Decoder) timeNow() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
