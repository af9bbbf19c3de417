// Package config loads the gateway's static deployment settings: where to
// listen, which TLS identity to present, and the knobs governing origin
// connections and UDP relaying. Per-session input (the origin RTSP URL, the
// WebSocket pairing session id) never lives here — it arrives on the wire,
// per §6 of the spec.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds the gateway's static configuration.
type Config struct {
	// WebTransportAddr is the UDP/QUIC bind address for the HTTP/3
	// WebTransport listener, e.g. ":4433".
	WebTransportAddr string
	// WebSocketAddr is the TCP bind address for the paired-WebSocket
	// listener, e.g. ":8080".
	WebSocketAddr string
	// TLSCertFile and TLSKeyFile identify the gateway to browsers. When
	// both are empty the gateway falls back to a self-signed identity.
	TLSCertFile string
	TLSKeyFile  string

	// DefaultOriginPort is used when an RTSP URL omits an explicit port.
	DefaultOriginPort int
	// UDPRelayBufferBytes sizes the per-packet receive buffer used by
	// the UDP relay task.
	UDPRelayBufferBytes int
}

// Default returns the configuration a bare invocation of the gateway
// should use.
func Default() *Config {
	return &Config{
		WebTransportAddr:    ":4433",
		WebSocketAddr:       ":8080",
		DefaultOriginPort:   8554,
		UDPRelayBufferBytes: 2048,
	}
}

// Load reads key=value configuration from envPath, overriding the defaults
// returned by Default for any key present in the file.
func Load(envPath string) (*Config, error) {
	file, err := os.Open(envPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}

		switch key {
		case "webtransport_addr":
			cfg.WebTransportAddr = value
		case "websocket_addr":
			cfg.WebSocketAddr = value
		case "tls_cert_file":
			cfg.TLSCertFile = value
		case "tls_key_file":
			cfg.TLSKeyFile = value
		case "default_origin_port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid default_origin_port: %w", err)
			}
			cfg.DefaultOriginPort = port
		case "udp_relay_buffer_bytes":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid udp_relay_buffer_bytes: %w", err)
			}
			cfg.UDPRelayBufferBytes = n
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan config file: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.WebTransportAddr == "" && c.WebSocketAddr == "" {
		return fmt.Errorf("at least one of webtransport_addr or websocket_addr must be set")
	}
	if c.DefaultOriginPort <= 0 || c.DefaultOriginPort > 65535 {
		return fmt.Errorf("default_origin_port out of range: %d", c.DefaultOriginPort)
	}
	if c.UDPRelayBufferBytes <= 0 {
		return fmt.Errorf("udp_relay_buffer_bytes must be positive")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("tls_cert_file and tls_key_file must both be set or both be empty")
	}
	return nil
}
