// Package proxy drives the gateway's per-client control loop: the
// component that intercepts SETUP, rewrites Transport, allocates UDP
// endpoints, correlates pending setups with their responses, injects
// channel identifiers, spawns UDP relays, and performs TEARDOWN cleanup
// on close.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/oakwood-labs/rtspgw/internal/logging"
	"github.com/oakwood-labs/rtspgw/internal/relay"
	"github.com/oakwood-labs/rtspgw/internal/rtsp"
	"github.com/oakwood-labs/rtspgw/internal/transport"
	"golang.org/x/time/rate"
)

// relayErrorLogQPS bounds how often this session's relays can log I/O
// errors; a single flapping UDP path or a browser connection tearing
// down many relays at once should produce one log burst, not one line
// per channel.
const relayErrorLogQPS = 2

// PendingSetup is an in-order record awaiting correlation with the
// matching SETUP response. It holds the two UDP sockets and channel ids
// reserved when the SETUP was intercepted on its way to the origin.
type PendingSetup struct {
	RTPChannelID  byte
	RTCPChannelID byte
	RTPConn       *net.UDPConn
	RTCPConn      *net.UDPConn
}

// Session is the control loop for one client: one browser Transport, one
// TCP connection to an RTSP origin, and the state that correlates the two.
type Session struct {
	trans           transport.Session
	origin          net.Conn
	originURL       string // full rtsp:// URL, used verbatim in TEARDOWN
	bufferSize      int
	log             *logging.Logger
	relayErrLimiter *rate.Limiter

	mu            sync.Mutex
	nextChannelID int
	pending       []*PendingSetup
	sessionID     string

	cancel    context.CancelFunc
	relayWG   sync.WaitGroup
	relayCtx  context.Context
}

// NewSession constructs a Session ready to Run. originURL is the RTSP URL
// the browser asked to proxy to; origin is an already-dialed TCP (or TLS)
// connection to that URL's host:port.
func NewSession(trans transport.Session, origin net.Conn, originURL string, bufferSize int, log *logging.Logger) *Session {
	if bufferSize <= 0 {
		bufferSize = relay.DefaultBufferSize
	}
	return &Session{
		trans:           trans,
		origin:          origin,
		originURL:       originURL,
		bufferSize:      bufferSize,
		log:             log,
		relayErrLimiter: rate.NewLimiter(rate.Limit(relayErrorLogQPS), 1),
	}
}

// Run enters the bidirectional relay loop and blocks until either side
// closes, a codec error occurs, or ctx is cancelled. On return, every
// spawned UDP relay has been cancelled and, if a session id was captured,
// a best-effort TEARDOWN has been written to the origin.
func (s *Session) Run(ctx context.Context) error {
	relayCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.relayCtx = relayCtx
	defer s.shutdown()

	browserCh := make(chan readResult, 1)
	originCh := make(chan readResult, 1)

	go s.readBrowserLoop(relayCtx, browserCh)
	go s.readOriginLoop(relayCtx, originCh)

	var browserBuf, originBuf bytes.Buffer

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r := <-browserCh:
			if r.err != nil {
				return r.err
			}
			if r.n == 0 {
				return nil // orderly close
			}
			browserBuf.Write(r.data)
			if err := s.drainBrowser(&browserBuf); err != nil {
				return err
			}

		case r := <-originCh:
			if r.err != nil {
				return r.err
			}
			if r.n == 0 {
				return nil
			}
			originBuf.Write(r.data)
			if err := s.drainOrigin(&originBuf); err != nil {
				return err
			}
		}
	}
}

type readResult struct {
	n    int
	data []byte
	err  error
}

func (s *Session) readBrowserLoop(ctx context.Context, out chan<- readResult) {
	for {
		var buf bytes.Buffer
		n, err := s.trans.ReadControl(ctx, &buf)
		select {
		case out <- readResult{n: n, data: buf.Bytes(), err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil || n == 0 {
			return
		}
	}
}

func (s *Session) readOriginLoop(ctx context.Context, out chan<- readResult) {
	buf := make([]byte, 65536)
	for {
		n, err := s.origin.Read(buf)
		var data []byte
		if n > 0 {
			data = append([]byte(nil), buf[:n]...)
		}
		select {
		case out <- readResult{n: n, data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil || n == 0 {
			return
		}
	}
}

// drainBrowser parses and handles every complete message currently
// buffered from the browser, advancing buf past each one (browser →
// origin path).
func (s *Session) drainBrowser(buf *bytes.Buffer) error {
	for {
		msg, consumed, err := rtsp.Parse(buf.Bytes())
		if err == rtsp.ErrIncomplete {
			return nil
		}
		if err != nil {
			return fmt.Errorf("proxy: malformed request from browser: %w", err)
		}

		advance(buf, consumed)

		if err := s.handleBrowserRequest(msg); err != nil {
			return err
		}

		if _, err := s.origin.Write(msg.Serialize()); err != nil {
			return fmt.Errorf("proxy: write to origin: %w", err)
		}
	}
}

// drainOrigin parses and handles every complete message currently
// buffered from the origin (origin → browser path).
func (s *Session) drainOrigin(buf *bytes.Buffer) error {
	for {
		msg, consumed, err := rtsp.Parse(buf.Bytes())
		if err == rtsp.ErrIncomplete {
			return nil
		}
		if err != nil {
			return fmt.Errorf("proxy: malformed response from origin: %w", err)
		}

		advance(buf, consumed)

		if err := s.handleOriginResponse(msg); err != nil {
			return err
		}

		if err := s.trans.WriteControl(s.relayCtx, msg.Serialize()); err != nil {
			return fmt.Errorf("proxy: write to transport: %w", err)
		}
	}
}

func advance(buf *bytes.Buffer, n int) {
	buf.Next(n)
}

// handleBrowserRequest implements the browser → origin path: SETUP
// interception, UDP socket allocation, Transport rewrite, and channel id
// reservation. Every other method passes through unmodified.
func (s *Session) handleBrowserRequest(msg *rtsp.Message) error {
	if !msg.IsRequest || !strings.EqualFold(msg.Method, "SETUP") {
		return nil
	}

	rtpConn, rtcpConn, err := bindUDPPair()
	if err != nil {
		return fmt.Errorf("proxy: bind UDP pair for SETUP: %w", err)
	}

	rtpPort := rtpConn.LocalAddr().(*net.UDPAddr).Port
	rtcpPort := rtcpConn.LocalAddr().(*net.UDPAddr).Port

	s.mu.Lock()
	rtpID, rtcpID, allocErr := s.allocateChannelIDsLocked()
	if allocErr != nil {
		s.mu.Unlock()
		rtpConn.Close()
		rtcpConn.Close()
		return allocErr
	}
	s.pending = append(s.pending, &PendingSetup{
		RTPChannelID:  rtpID,
		RTCPChannelID: rtcpID,
		RTPConn:       rtpConn,
		RTCPConn:      rtcpConn,
	})
	s.mu.Unlock()

	msg.Headers.Set("Transport", fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d", rtpPort, rtcpPort))

	if s.log != nil {
		s.log.DebugCategory(logging.CategoryRTSP, "intercepted SETUP",
			"rtp_port", rtpPort, "rtcp_port", rtcpPort,
			"rtp_channel", rtpID, "rtcp_channel", rtcpID)
	}
	return nil
}

// allocateChannelIDsLocked reserves the next channel id pair. Callers
// must hold s.mu.
func (s *Session) allocateChannelIDsLocked() (rtp, rtcp byte, err error) {
	n := s.nextChannelID
	if n < 0 || n+1 > 255 {
		return 0, 0, fmt.Errorf("proxy: channel id space exhausted")
	}
	s.nextChannelID = n + 2
	return byte(n), byte(n + 1), nil
}

// handleOriginResponse implements the origin → browser path: Session id
// capture, and for 200+Transport SETUP responses, FIFO correlation,
// channel id injection, and relay spawning.
func (s *Session) handleOriginResponse(msg *rtsp.Message) error {
	if msg.IsRequest {
		return nil
	}

	if sessionHeader, ok := msg.Headers.Get("Session"); ok {
		s.mu.Lock()
		if s.sessionID == "" {
			s.sessionID = strings.TrimSpace(strings.SplitN(sessionHeader, ";", 2)[0])
		}
		s.mu.Unlock()
	}

	transportHeader, hasTransport := msg.Headers.Get("Transport")
	if msg.StatusCode != 200 || !hasTransport {
		return nil
	}

	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("proxy: origin sent SETUP response with no matching pending setup")
	}
	popped := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	msg.Headers.Set("Transport", fmt.Sprintf("%s;x-wt-channel-id=%d-%d",
		transportHeader, popped.RTPChannelID, popped.RTCPChannelID))

	s.spawnRelay(popped.RTPConn, popped.RTPChannelID)
	s.spawnRelay(popped.RTCPConn, popped.RTCPChannelID)

	return nil
}

func (s *Session) spawnRelay(conn *net.UDPConn, channelID byte) {
	task := &relay.Task{
		Conn:            conn,
		Sender:          s.trans.CloneSender(),
		ChannelID:       channelID,
		BufferSize:      s.bufferSize,
		Log:             s.log,
		ErrorLogLimiter: s.relayErrLimiter,
	}
	s.relayWG.Add(1)
	go func() {
		defer s.relayWG.Done()
		if err := task.Run(s.relayCtx); err != nil && s.log != nil {
			s.log.DebugCategory(logging.CategoryRelay, "relay terminated", "channel", channelID, "error", err)
		}
	}()
}

// shutdown cancels every relay spawned by this session, attempts a
// best-effort TEARDOWN if a session id was ever captured, and releases
// the origin connection. Called exactly once, from Run's defer.
func (s *Session) shutdown() {
	s.cancel()
	s.relayWG.Wait()

	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	if sessionID != "" {
		teardown := fmt.Sprintf("TEARDOWN %s RTSP/1.0\r\nCSeq: 99\r\nSession: %s\r\n\r\n", s.originURL, sessionID)
		_, _ = s.origin.Write([]byte(teardown)) // best-effort; failures ignored
	}

	s.origin.Close()
	s.trans.Close()
}

func bindUDPPair() (rtp, rtcp *net.UDPConn, err error) {
	rtp, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(0, 0, 0, 0)})
	if err != nil {
		return nil, nil, err
	}
	rtcp, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(0, 0, 0, 0)})
	if err != nil {
		rtp.Close()
		return nil, nil, err
	}
	return rtp, rtcp, nil
}
