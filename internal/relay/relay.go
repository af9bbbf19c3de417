// Package relay runs the per-substream UDP-to-datagram forwarding task:
// one goroutine per SETUP'd media socket, reading UDP packets from the
// origin and re-emitting them as channel-tagged datagrams on the
// browser transport.
package relay

import (
	"context"
	"fmt"
	"net"

	"github.com/oakwood-labs/rtspgw/internal/logging"
	"github.com/oakwood-labs/rtspgw/internal/transport"
	"golang.org/x/time/rate"
)

// DefaultBufferSize is the receive buffer size for a relay's UDP socket,
// comfortably above typical RTP MTU.
const DefaultBufferSize = 2048

// Task owns one UDP socket for the lifetime of a media substream. It
// forwards every received packet to sender, prefixed with channelID, until
// cancellation, a receive error, or a send error.
type Task struct {
	Conn       *net.UDPConn
	Sender     transport.Sender
	ChannelID  byte
	BufferSize int
	Log        *logging.Logger

	// ErrorLogLimiter, when set, bounds how often this relay's I/O
	// errors are logged. Shared across every relay in a session so a
	// flapping origin or browser connection tearing down many relays at
	// once produces one log burst, not one line per channel.
	ErrorLogLimiter *rate.Limiter
}

func (t *Task) logError(msg string, err error) {
	if t.Log == nil {
		return
	}
	if t.ErrorLogLimiter != nil && !t.ErrorLogLimiter.Allow() {
		return
	}
	t.Log.DebugCategory(logging.CategoryRelay, msg, "channel", t.ChannelID, "error", err)
}

// Run blocks until ctx is cancelled or an I/O error occurs. Cancellation
// is reported as a nil error (orderly shutdown, per I4); receive and send
// failures are reported but are fatal only to this relay, never to the
// owning session.
func (t *Task) Run(ctx context.Context) error {
	bufSize := t.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	buf := make([]byte, bufSize)

	defer t.Conn.Close()

	// recv_from blocks without honoring ctx directly, so a watcher
	// goroutine closes the socket on cancellation to unblock it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			t.Conn.Close()
		case <-done:
		}
	}()

	for {
		n, _, err := t.Conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			t.logError("relay receive error", err)
			return fmt.Errorf("relay channel %d: recv: %w", t.ChannelID, err)
		}

		payload := make([]byte, n+1)
		payload[0] = t.ChannelID
		copy(payload[1:], buf[:n])

		if err := t.Sender.SendDatagram(payload); err != nil {
			t.logError("relay send error", err)
			return fmt.Errorf("relay channel %d: send: %w", t.ChannelID, err)
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}
