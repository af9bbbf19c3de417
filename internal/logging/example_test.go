package logging_test

import (
	"os"

	"github.com/oakwood-labs/rtspgw/internal/logging"
)

// Example showing basic logger usage.
func ExampleLogger_basic() {
	cfg := logging.NewConfig()
	cfg.Level = logging.LevelInfo
	cfg.Format = logging.FormatText

	log, err := logging.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.Info("gateway started", "version", "1.0.0")
	log.Warn("origin closed before TEARDOWN ack", "session", "abc123")
}

// Example showing category-gated debug logging.
func ExampleLogger_categories() {
	cfg := logging.NewConfig()
	cfg.Level = logging.LevelDebug
	cfg.EnableCategory(logging.CategoryRelay)

	log, err := logging.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	// Only logged because CategoryRelay is enabled above.
	log.DebugCategory(logging.CategoryRelay, "forwarded datagram", "channel", 0, "bytes", 188)

	// Not logged: CategoryTransport was never enabled.
	log.DebugCategory(logging.CategoryTransport, "control write", "bytes", 64)
}

// Example showing JSON output to a file.
func ExampleLogger_json() {
	cfg := logging.NewConfig()
	cfg.Format = logging.FormatJSON
	cfg.OutputFile = "gateway.json"

	log, err := logging.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()
	defer os.Remove("gateway.json")

	log.Info("session opened", "origin", "rtsp://cam.local/stream")
}
