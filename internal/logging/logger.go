// Package logging provides structured JSON logging for the collab engine.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Level represents a log severity level.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Fields carries structured context attached to a log entry.
type Fields map[string]interface{}

// Logger writes structured JSON log lines.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	minLevel Level
}

var (
	global *Logger
	once   sync.Once
)

// Init initializes the global logger. Subsequent calls are no-ops.
func Init(out io.Writer, minLevel Level) {
	once.Do(func() {
		global = &Logger{out: out, minLevel: minLevel}
	})
}

// Get returns the global logger, initializing it to stdout/INFO if needed.
func Get() *Logger {
	if global == nil {
		Init(os.Stdout, LevelInfo)
	}
	return global
}

// New creates a standalone logger, useful in tests.
func New(out io.Writer, minLevel Level) *Logger {
	return &Logger{out: out, minLevel: minLevel}
}

// Entry is the JSON shape of one log line.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	Fields    Fields `json:"fields,omitempty"`
}

func (l *Logger) write(level Level, message string, err error, fields Fields) {
	if levelRank[level] < levelRank[l.minLevel] {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(level),
		Message:   message,
		Fields:    fields,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	data, jsonErr := json.Marshal(entry)
	if jsonErr != nil {
		log.Printf("logging: marshal failed: %v", jsonErr)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(message string, fields Fields) {
	l.write(LevelDebug, message, nil, fields)
}

// Info logs at INFO level.
func (l *Logger) Info(message string, fields Fields) {
	l.write(LevelInfo, message, nil, fields)
}

// Warn logs at WARN level.
func (l *Logger) Warn(message string, fields Fields) {
	l.write(LevelWarn, message, nil, fields)
}

// Error logs at ERROR level with an error value.
func (l *Logger) Error(message string, err error, fields Fields) {
	l.write(LevelError, message, err, fields)
}

// Package-level helpers using the global logger.

func Debug(message string, fields Fields) { Get().Debug(message, fields) }
func Info(message string, fields Fields)  { Get().Info(message, fields) }
func Warn(message string, fields Fields)  { Get().Warn(message, fields) }
func Error(message string, err error, fields Fields) {
	Get().Error(message, err, fields)
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}
