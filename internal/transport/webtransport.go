package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/quic-go/webtransport-go"
)

// WTSession implements Session over a single WebTransport session: a
// bidirectional reliable stream carries control, and the session's
// datagram primitive (inherently safe for concurrent senders) carries
// media.
type WTSession struct {
	session *webtransport.Session
	stream  webtransport.Stream
}

// NewWTSession accepts the gateway's one bidirectional stream on an
// already-established WebTransport session.
func NewWTSession(ctx context.Context, session *webtransport.Session) (*WTSession, error) {
	stream, err := session.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept bidirectional stream: %w", err)
	}
	return &WTSession{session: session, stream: stream}, nil
}

// ReadControl reads one chunk from the bidirectional stream. Unlike a
// framed WebSocket message, a QUIC stream has no message boundaries, so a
// single Read call's bytes are treated as one control delivery; the codec
// above us tolerates partial/pipelined input either way.
func (s *WTSession) ReadControl(ctx context.Context, buf *bytes.Buffer) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)

	go func() {
		tmp := make([]byte, 4096)
		n, err := s.stream.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err == io.EOF {
			done <- result{n, nil}
			return
		}
		done <- result{n, err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return 0, r.err
		}
		return r.n, nil
	}
}

// WriteControl writes b to the bidirectional stream's send half in full.
func (s *WTSession) WriteControl(ctx context.Context, b []byte) error {
	_ = ctx
	_, err := s.stream.Write(b)
	return err
}

// CloneSender returns a handle over the shared session; quic-go sessions
// support concurrent SendDatagram calls natively, so no internal lock is
// needed here (contrast wsDataSender).
func (s *WTSession) CloneSender() Sender {
	return &wtSender{session: s.session}
}

// Close ends the WebTransport session.
func (s *WTSession) Close() error {
	return s.session.CloseWithError(0, "session closed")
}

type wtSender struct {
	session *webtransport.Session
}

func (s *wtSender) SendDatagram(payload []byte) error {
	if err := s.session.SendDatagram(payload); err != nil {
		return fmt.Errorf("send datagram: %w", err)
	}
	return nil
}
