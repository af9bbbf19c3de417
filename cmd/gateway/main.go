// Command gateway runs the browser-facing RTSP gateway: a WebTransport
// listener and a paired-WebSocket listener, both feeding the same proxy
// session machinery that bridges a browser to a classical RTSP origin.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oakwood-labs/rtspgw/internal/config"
	"github.com/oakwood-labs/rtspgw/internal/logging"
	"github.com/oakwood-labs/rtspgw/internal/proxy"
	"github.com/oakwood-labs/rtspgw/internal/rendezvous"
	"github.com/oakwood-labs/rtspgw/internal/transport"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
)

func main() {
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
	logFlags := logging.RegisterFlags(fs)
	envPath := fs.String("config", "", "path to a .env-style static config file (flags above take precedence when set)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Browser-to-RTSP tunneling gateway\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logCfg, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	var cfg *config.Config
	if *envPath != "" {
		cfg, err = config.Load(*envPath)
		if err != nil {
			log.Error("failed to load configuration", "error", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}
	log.Info("configuration loaded",
		"webtransport_addr", cfg.WebTransportAddr,
		"websocket_addr", cfg.WebSocketAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	registry := rendezvous.NewRegistry(log.With("component", "rendezvous"))
	tlsConfig, err := loadOrGenerateTLSConfig(cfg)
	if err != nil {
		log.Error("failed to prepare TLS identity", "error", err)
		os.Exit(1)
	}

	gw := &gateway{cfg: cfg, log: log, registry: registry, tlsConfig: tlsConfig}

	errCh := make(chan error, 2)
	go func() { errCh <- gw.serveWebTransport(ctx) }()
	go func() { errCh <- gw.serveWebSocket(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("listener failed", "error", err)
		cancel()
	}
}

type gateway struct {
	cfg       *config.Config
	log       *logging.Logger
	registry  *rendezvous.Registry
	tlsConfig *tls.Config
}

func loadOrGenerateTLSConfig(cfg *config.Config) (*tls.Config, error) {
	if cfg.TLSCertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load TLS identity: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	}
	return generateSelfSignedTLSConfig()
}

// serveWebTransport accepts HTTP/3 WebTransport sessions. Each session's
// path must carry ?rtsp=<origin-url>; the gateway dials that origin and
// runs a proxy.Session over the session's bidirectional stream and
// datagrams.
func (g *gateway) serveWebTransport(ctx context.Context) error {
	wtServer := &webtransport.Server{
		H3: http3.Server{
			Addr:      g.cfg.WebTransportAddr,
			TLSConfig: g.tlsConfig,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		rtspURL := r.URL.Query().Get("rtsp")
		if rtspURL == "" {
			http.Error(w, "missing rtsp query parameter", http.StatusBadRequest)
			return
		}

		session, err := wtServer.Upgrade(w, r)
		if err != nil {
			g.log.Warn("webtransport upgrade failed", "error", err)
			return
		}

		go g.runWebTransportSession(ctx, session, rtspURL)
	})
	wtServer.H3.Handler = mux

	g.log.Info("webtransport listener ready", "addr", g.cfg.WebTransportAddr)
	return wtServer.ListenAndServe()
}

func (g *gateway) runWebTransportSession(ctx context.Context, session *webtransport.Session, rtspURL string) {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wtSession, err := transport.NewWTSession(sessCtx, session)
	if err != nil {
		g.log.Warn("failed to accept bidirectional stream", "error", err)
		return
	}

	g.runProxySession(sessCtx, wtSession, rtspURL)
}

// serveWebSocket accepts the paired-WebSocket backend: a "control" and a
// "data" connection sharing a session_id query parameter, matched via the
// rendezvous registry before a proxy.Session starts.
func (g *gateway) serveWebSocket(ctx context.Context) error {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sessionID := q.Get("session_id")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		connType := rendezvous.ConnType(q.Get("type"))
		if connType == "" {
			connType = rendezvous.ConnControl
		}
		rtspURL := q.Get("rtsp")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.log.Warn("websocket upgrade failed", "error", err)
			return
		}

		pair, err := g.registry.Arrive(sessionID, connType, conn, rtspURL)
		if err != nil {
			g.log.Warn("rendezvous failed", "session_id", sessionID, "error", err)
			conn.Close()
			return
		}
		if pair == nil {
			// Waiting for the counterpart connection; this connection is
			// parked in the registry, not owned by this handler anymore.
			return
		}

		go g.runWebSocketPairSession(ctx, pair)
	})

	srv := &http.Server{Addr: g.cfg.WebSocketAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	g.log.Info("websocket listener ready", "addr", g.cfg.WebSocketAddr)
	return srv.ListenAndServe()
}

func (g *gateway) runWebSocketPairSession(ctx context.Context, pair *rendezvous.Pair) {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wsSession := transport.NewWSPairSession(pair.Control, pair.Data)
	g.runProxySession(sessCtx, wsSession, pair.RTSPURL)
}

// runProxySession dials the RTSP origin and drives a proxy.Session to
// completion. Shared by both transport backends.
func (g *gateway) runProxySession(ctx context.Context, trans transport.Session, rtspURL string) {
	sessionLog := g.log.With("rtsp_url", rtspURL)

	origin, err := dialOrigin(ctx, rtspURL, g.cfg.DefaultOriginPort)
	if err != nil {
		sessionLog.Error("failed to dial RTSP origin", "error", err)
		trans.Close()
		return
	}

	session := proxy.NewSession(trans, origin, rtspURL, g.cfg.UDPRelayBufferBytes, sessionLog)
	if err := session.Run(ctx); err != nil {
		sessionLog.Info("session ended", "error", err)
	} else {
		sessionLog.Info("session ended")
	}
}

func dialOrigin(ctx context.Context, rtspURL string, defaultPort int) (net.Conn, error) {
	u, err := url.Parse(rtspURL)
	if err != nil {
		return nil, fmt.Errorf("parse origin URL: %w", err)
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(defaultPort)
	}
	addr := net.JoinHostPort(host, port)

	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var conn net.Conn
	if u.Scheme == "rtsps" {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial origin %s: %w", addr, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	return conn, nil
}
