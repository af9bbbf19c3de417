package transport

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// WSPairSession implements Session over two already-paired WebSocket
// connections: control carries serialized RTSP as text frames, data
// carries channel-tagged media as binary frames. The rendezvous that
// matches the two connections by session id lives outside this package.
type WSPairSession struct {
	control *websocket.Conn
	sender  *wsDataSender
}

// NewWSPairSession wraps an already-matched control/data connection pair.
func NewWSPairSession(control, data *websocket.Conn) *WSPairSession {
	return &WSPairSession{
		control: control,
		sender:  &wsDataSender{conn: data},
	}
}

// ReadControl loops internally past non-text, non-close frames (the
// source's documented lossy behavior, per the open question the gateway
// resolves by skipping explicitly rather than silently dropping) until it
// has a usable payload, a close, or an error.
func (s *WSPairSession) ReadControl(ctx context.Context, buf *bytes.Buffer) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)

	go func() {
		for {
			msgType, payload, err := s.control.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					done <- result{0, nil}
					return
				}
				done <- result{0, err}
				return
			}
			switch msgType {
			case websocket.TextMessage:
				n, werr := buf.Write(payload)
				done <- result{n, werr}
				return
			case websocket.CloseMessage:
				done <- result{0, nil}
				return
			default:
				// Non-text, non-close frame: explicitly skipped rather
				// than silently losing bytes. Keep looping for the next
				// frame.
				continue
			}
		}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		return r.n, r.err
	}
}

// WriteControl sends b as a single text frame. RTSP/1.0 is ASCII in
// practice; this is a lossy interpretation for non-UTF-8 body bytes, a
// documented limitation of the paired-socket backend.
func (s *WSPairSession) WriteControl(ctx context.Context, b []byte) error {
	_ = ctx
	text := strings.ToValidUTF8(string(b), "�")
	return s.control.WriteMessage(websocket.TextMessage, []byte(text))
}

// CloneSender returns a handle sharing the data connection's write lock.
func (s *WSPairSession) CloneSender() Sender {
	return s.sender
}

// Close tears down both connections.
func (s *WSPairSession) Close() error {
	err1 := s.control.Close()
	err2 := s.sender.conn.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// wsDataSender serializes writes to the data connection so multiple UDP
// relays can share it safely; gorilla/websocket forbids concurrent
// writers on a single connection.
type wsDataSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsDataSender) SendDatagram(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("write data frame: %w", err)
	}
	return nil
}
