// Package logx provides structured logging with component prefixes and
// env-driven debug domain filtering.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes leveled log lines tagged with a component name.
type Logger struct {
	component string
	logger    *log.Logger
}

// Entry is a captured log record kept in the in-memory buffer.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// debugConfig controls debug logging, initialized from the environment:
//
//	DEBUG=1                        enable debug for all domains
//	DEBUG=1 DEBUG_DOMAINS=discord  enable debug only for the discord domain
//
//nolint:gochecknoglobals // package-level logging configuration
var (
	debugEnabled bool
	debugDomains map[string]bool // nil = all domains
	debugMu      sync.RWMutex
)

// buffer keeps the most recent log entries for diagnostics endpoints.
//
//nolint:gochecknoglobals // package-level log capture
var (
	bufMu      sync.Mutex
	bufEntries []Entry
)

const bufferMax = 500

func init() { //nolint:gochecknoinits // env var initialization
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugEnabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugDomains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugDomains[strings.TrimSpace(d)] = true
		}
	}
}

// SetDebug enables or disables debug logging for the given domains
// (empty = all).
func SetDebug(enabled bool, domains []string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugEnabled = enabled
	if len(domains) == 0 {
		debugDomains = nil
		return
	}
	debugDomains = make(map[string]bool)
	for _, d := range domains {
		debugDomains[strings.TrimSpace(d)] = true
	}
}

// DebugEnabledFor reports whether debug logging is active for a domain.
func DebugEnabledFor(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugEnabled {
		return false
	}
	if debugDomains == nil {
		return true
	}
	return debugDomains[domain]
}

// NewLogger creates a logger tagged with a component name. Output goes to
// stderr so stdout stays clean for CLI use.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0),
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s: %s", timestamp, l.component, level, message)

	bufMu.Lock()
	bufEntries = append(bufEntries, Entry{
		Timestamp: timestamp,
		Component: l.component,
		Level:     string(level),
		Message:   message,
	})
	if len(bufEntries) > bufferMax {
		bufEntries = bufEntries[len(bufEntries)-bufferMax:]
	}
	bufMu.Unlock()
}

// Debug logs only when debug is enabled for this logger's component domain.
func (l *Logger) Debug(format string, args ...any) {
	if !DebugEnabledFor(l.component) {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Component returns the component name this logger is tagged with.
func (l *Logger) Component() string {
	return l.component
}

// Recent returns a copy of the buffered log entries, newest last.
func Recent() []Entry {
	bufMu.Lock()
	defer bufMu.Unlock()
	out := make([]Entry, len(bufEntries))
	copy(out, bufEntries)
	return out
}

// Global convenience logger.
//
//nolint:gochecknoglobals
var defaultLogger = NewLogger("system")

func Debugf(format string, args ...any) { defaultLogger.Debug(format, args...) }
func Infof(format string, args ...any)  { defaultLogger.Info(format, args...) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(format, args...) }

// Errorf logs and returns the formatted error.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err and returns the wrapped error. Returns nil when
// err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
