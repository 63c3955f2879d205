// Package logging provides per-module structured logging for the daemon.
//
// Records go to stdout (text or json), to the systemd journal when one is
// listening, and into an in-memory ring buffer that the control API serves
// for `asciinode status --logs` style queries.
//
//	logging.Initialize(logging.Config{Level: "info", Format: "text"})
//	log := logging.GetLogger("capture")
//	log.Info("camera opened", "device", "/dev/video0")
//
// Per-module levels override the global one:
//
//	[logging.modules]
//	render = "debug"
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const historySize = 500

var (
	mu           sync.RWMutex
	cfg          Config
	initialized  bool
	moduleLogs   = make(map[string]*slog.Logger)
	moduleLevels = make(map[string]*slog.LevelVar)
	history      *Ring
)

// Config controls log level, output format and per-module overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// Initialize sets up the logging system. Loggers handed out before
// Initialize get their handlers rebuilt so they pick up the format and the
// ring buffer.
func Initialize(c Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = c
	initialized = true
	history = NewRing(historySize)

	base := levelOrDefault(c.Level, slog.LevelInfo)

	for module, lv := range moduleLevels {
		lv.Set(moduleLevel(module, base))
		moduleLogs[module] = slog.New(buildHandler(c.Format, lv)).With("module", module)
	}

	global := &slog.LevelVar{}
	global.Set(base)
	slog.SetDefault(slog.New(buildHandler(c.Format, global)))
}

// GetLogger returns the logger for a module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	if l, ok := moduleLogs[module]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := moduleLogs[module]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	format := "text"
	level := slog.LevelInfo
	if initialized {
		format = cfg.Format
		level = moduleLevel(module, levelOrDefault(cfg.Level, slog.LevelInfo))
	}
	lv.Set(level)

	l := slog.New(buildHandler(format, lv)).With("module", module)
	moduleLogs[module] = l
	moduleLevels[module] = lv
	return l
}

// History returns the ring buffer of recent entries, nil before Initialize.
func History() *Ring {
	mu.RLock()
	defer mu.RUnlock()
	return history
}

func moduleLevel(module string, base slog.Level) slog.Level {
	if s, ok := cfg.Modules[module]; ok {
		if l, ok := parseLevel(s); ok {
			return l
		}
	}
	return base
}

func buildHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	handlers := []slog.Handler{stdout}
	if journalAvailable() {
		handlers = append(handlers, newJournalHandler(level))
	}
	// Ring buffer fills in lazily; the handler checks History() per record.
	handlers = append(handlers, newRingHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return newMultiHandler(handlers...)
}

func levelOrDefault(s string, def slog.Level) slog.Level {
	if l, ok := parseLevel(s); ok {
		return l
	}
	return def
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
