// Package transport unifies the two browser-reachable backends the
// gateway can terminate: a WebTransport session (one bidirectional
// reliable stream plus unreliable datagrams) and a pair of WebSocket
// connections used respectively as control and data channels. The proxy
// control loop is written once against the Session interface and never
// branches on which backend it is driving.
package transport

import (
	"bytes"
	"context"
)

// Session is the surface the proxy control loop drives. Exactly one
// goroutine may call ReadControl at a time (the control loop itself);
// WriteControl and the Sender returned by CloneSender may be used
// concurrently with it and with each other.
type Session interface {
	// ReadControl appends the next inbound control message's payload to
	// buf and returns the number of bytes appended. A return of 0 with a
	// nil error signals an orderly close. ctx cancellation unblocks a
	// pending read with ctx.Err().
	ReadControl(ctx context.Context, buf *bytes.Buffer) (n int, err error)

	// WriteControl delivers b as a single control message. Bytes written
	// here are observed by the peer in the order WriteControl was
	// called.
	WriteControl(ctx context.Context, b []byte) error

	// CloneSender returns a cheaply-cloneable handle capable of emitting
	// datagrams independently of the control path.
	CloneSender() Sender

	// Close releases the underlying connection(s).
	Close() error
}

// Sender emits unreliable, channel-tagged payloads to the browser. It is
// safe for concurrent use by multiple UDP relay tasks.
type Sender interface {
	// SendDatagram submits payload as a single datagram. The
	// WebTransport backend has no retransmission and may silently drop
	// it; the paired-WebSocket backend sends it as a binary frame on the
	// data channel, serialized under an internal lock.
	SendDatagram(payload []byte) error
}
