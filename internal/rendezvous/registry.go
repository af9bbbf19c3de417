// Package rendezvous matches pairs of WebSocket connections that share a
// session id but arrive as two separate HTTP upgrades: a "control"
// connection (which alone carries the origin RTSP URL) and a "data"
// connection. Neither the RTSP codec nor the proxy control loop know
// this package exists; once a pair is matched, they are handed two plain
// *websocket.Conn values.
package rendezvous

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/oakwood-labs/rtspgw/internal/logging"
	"golang.org/x/time/rate"
)

// rejectionLogQPS bounds how often a misbehaving browser (duplicate
// connections for the same session id, arriving faster than any real
// client would reconnect) can cause a log line.
const rejectionLogQPS = 2

// ConnType distinguishes the two legs of a paired-socket session.
type ConnType string

const (
	ConnControl ConnType = "control"
	ConnData    ConnType = "data"
)

// Pair is a matched control/data connection, along with the RTSP URL
// captured from the control leg's query parameters.
type Pair struct {
	Control  *websocket.Conn
	Data     *websocket.Conn
	RTSPURL  string
	Session  string
}

type waitingControl struct {
	conn    *websocket.Conn
	rtspURL string
}

// Registry holds the connections waiting for their other half, keyed by
// session id. It is safe for concurrent use across the gateway's HTTP
// handlers.
type Registry struct {
	mu              sync.Mutex
	waitingControls map[string]waitingControl
	waitingData     map[string]*websocket.Conn
	log             *logging.Logger
	rejectLimiter   *rate.Limiter
}

// NewRegistry returns an empty Registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		waitingControls: make(map[string]waitingControl),
		waitingData:     make(map[string]*websocket.Conn),
		log:             log,
		rejectLimiter:   rate.NewLimiter(rate.Limit(rejectionLogQPS), 1),
	}
}

func (r *Registry) logRejection(msg string, args ...any) {
	if r.log == nil || !r.rejectLimiter.Allow() {
		return
	}
	r.log.Warn(msg, args...)
}

// Arrive registers one leg of a session and returns the matched Pair as
// soon as both legs are present. A nil Pair with a nil error means this
// leg is now waiting for its counterpart. rtspURL must be non-empty when
// connType is ConnControl and is ignored otherwise.
func (r *Registry) Arrive(sessionID string, connType ConnType, conn *websocket.Conn, rtspURL string) (*Pair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch connType {
	case ConnData:
		if waiting, ok := r.waitingControls[sessionID]; ok {
			delete(r.waitingControls, sessionID)
			if r.log != nil {
				r.log.DebugCategory(logging.CategorySession, "paired data with waiting control", "session_id", sessionID)
			}
			return &Pair{Control: waiting.conn, Data: conn, RTSPURL: waiting.rtspURL, Session: sessionID}, nil
		}
		if _, dup := r.waitingData[sessionID]; dup {
			r.logRejection("duplicate data connection rejected", "session_id", sessionID)
			return nil, fmt.Errorf("rendezvous: duplicate data connection for session %s", sessionID)
		}
		r.waitingData[sessionID] = conn
		return nil, nil

	case ConnControl:
		if rtspURL == "" {
			return nil, fmt.Errorf("rendezvous: control connection for session %s missing rtsp URL", sessionID)
		}
		if dataConn, ok := r.waitingData[sessionID]; ok {
			delete(r.waitingData, sessionID)
			if r.log != nil {
				r.log.DebugCategory(logging.CategorySession, "paired control with waiting data", "session_id", sessionID)
			}
			return &Pair{Control: conn, Data: dataConn, RTSPURL: rtspURL, Session: sessionID}, nil
		}
		if _, dup := r.waitingControls[sessionID]; dup {
			r.logRejection("duplicate control connection rejected", "session_id", sessionID)
			return nil, fmt.Errorf("rendezvous: duplicate control connection for session %s", sessionID)
		}
		r.waitingControls[sessionID] = waitingControl{conn: conn, rtspURL: rtspURL}
		return nil, nil

	default:
		return nil, fmt.Errorf("rendezvous: unknown connection type %q", connType)
	}
}

// Forget removes any half-open waiting entry for sessionID, e.g. after the
// waiting connection closes before its counterpart arrives.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waitingControls, sessionID)
	delete(r.waitingData, sessionID)
}
