package logging

import "flag"

// Flags holds the command-line flags that configure a Logger.
type Flags struct {
	Level          string
	Format         string
	File           string
	DebugSession   bool
	DebugRTSP      bool
	DebugRelay     bool
	DebugTransport bool
	DebugAll       bool
}

// RegisterFlags registers logging flags on fs and returns the struct they
// populate.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.Level, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&f.Format, "log-format", "text", "log output format: text, json")
	fs.StringVar(&f.File, "log-file", "", "log output file path (default: stdout)")

	fs.BoolVar(&f.DebugSession, "debug-session", false, "enable per-session lifecycle debugging")
	fs.BoolVar(&f.DebugRTSP, "debug-rtsp", false, "enable RTSP message debugging")
	fs.BoolVar(&f.DebugRelay, "debug-relay", false, "enable UDP relay debugging")
	fs.BoolVar(&f.DebugTransport, "debug-transport", false, "enable browser transport debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false, "enable all debug categories")

	return f
}

// ToConfig converts Flags into a Config.
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.Level)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.Format)
	if err != nil {
		return nil, err
	}
	cfg.Format = format
	cfg.OutputFile = f.File

	switch {
	case f.DebugAll:
		cfg.EnableCategory(CategoryAll)
		cfg.Level = LevelDebug
	default:
		if f.DebugSession {
			cfg.EnableCategory(CategorySession)
			cfg.Level = LevelDebug
		}
		if f.DebugRTSP {
			cfg.EnableCategory(CategoryRTSP)
			cfg.Level = LevelDebug
		}
		if f.DebugRelay {
			cfg.EnableCategory(CategoryRelay)
			cfg.Level = LevelDebug
		}
		if f.DebugTransport {
			cfg.EnableCategory(CategoryTransport)
			cfg.Level = LevelDebug
		}
	}

	return cfg, nil
}
