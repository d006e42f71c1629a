// Package logging provides structured logging with console and optional file output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one line of in-memory history, served to the stream feed's
// diagnostics endpoint.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Data      string `json:"data,omitempty"`
}

// Logger wraps zerolog with optional file output and a bounded history.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
	mu      sync.RWMutex
	history []LogEntry
	maxHist int
	onLog   func(LogEntry)
}

// Config holds logger configuration
type Config struct {
	Dir        string    `mapstructure:"dir"`         // log file directory; empty disables the file
	Level      LogLevel  `mapstructure:"level"`       // minimum level (default: info)
	MaxHistory int       `mapstructure:"max_history"` // entries kept in memory (default: 500)
	Console    bool      `mapstructure:"console"`     // also write human-readable lines
	Output     io.Writer `mapstructure:"-"`           // console destination (default: stderr)
}

// DefaultDir is ~/.lipsync/logs.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".lipsync", "logs")
}

// DefaultConfig returns console-only logging at info level.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		MaxHistory: 500,
		Console:    true,
	}
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(l LogLevel) zerolog.Level {
	switch LogLevel(strings.ToLower(string(l))) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a Logger. The level is applied to this logger only, not
// globally, so several pipelines can log at different levels.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 500
	}

	var writers []io.Writer
	var file *os.File
	var logPath string

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logPath = filepath.Join(cfg.Dir, fmt.Sprintf("lipsync_%s.log", time.Now().Format("2006-01-02")))
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}

	if cfg.Console {
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}

	var sink io.Writer = io.Discard
	if len(writers) > 0 {
		sink = io.MultiWriter(writers...)
	}

	zlog := zerolog.New(sink).Level(ParseLevel(cfg.Level)).With().
		Timestamp().
		Str("app", "lipsync").
		Logger()

	logger := &Logger{
		zlog:    zlog,
		file:    file,
		logPath: logPath,
		history: make([]LogEntry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}

	logger.Debug("logging", "Logger initialized", map[string]any{
		"logFile": logPath,
		"level":   string(cfg.Level),
	})
	return logger, nil
}

// SetOnLog registers a callback for every recorded entry.
func (l *Logger) SetOnLog(fn func(LogEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLog = fn
}

func (l *Logger) record(level zerolog.Level, component, msg, data string) {
	if level < l.zlog.GetLevel() {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().Format("15:04:05.000"),
		Level:     level.String(),
		Component: component,
		Message:   msg,
		Data:      data,
	}

	l.mu.Lock()
	l.history = append(l.history, entry)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
	cb := l.onLog
	l.mu.Unlock()

	if cb != nil {
		go cb(entry)
	}
}

// History returns up to limit of the most recent entries, oldest first.
func (l *Logger) History(limit int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}
	out := make([]LogEntry, limit)
	copy(out, l.history[len(l.history)-limit:])
	return out
}

// Path returns the log file path, or "" when logging to console only.
func (l *Logger) Path() string {
	return l.logPath
}

// Close closes the log file
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// formatData renders data as sorted key=value pairs.
func formatData(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, data[k])
	}
	return b.String()
}

func (l *Logger) log(ev *zerolog.Event, component, msg string, data map[string]any) string {
	ev = ev.Str("component", component)
	for k, v := range data {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
	return formatData(data)
}

// Debug logs a debug message
func (l *Logger) Debug(component, msg string, data map[string]any) {
	l.record(zerolog.DebugLevel, component, msg, l.log(l.zlog.Debug(), component, msg, data))
}

// Info logs an info message
func (l *Logger) Info(component, msg string, data map[string]any) {
	l.record(zerolog.InfoLevel, component, msg, l.log(l.zlog.Info(), component, msg, data))
}

// Warn logs a warning message
func (l *Logger) Warn(component, msg string, data map[string]any) {
	l.record(zerolog.WarnLevel, component, msg, l.log(l.zlog.Warn(), component, msg, data))
}

// Error logs an error message
func (l *Logger) Error(component, msg string, err error, data map[string]any) {
	ev := l.zlog.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	formatted := l.log(ev, component, msg, data)
	if err != nil {
		formatted = strings.TrimPrefix(formatted+", error="+err.Error(), ", ")
	}
	l.record(zerolog.ErrorLevel, component, msg, formatted)
}

// Component returns a zerolog.Logger with the component field set.
// Pipeline packages take this rather than *Logger.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}
