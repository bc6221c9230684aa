package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity, ordered so that Level >= threshold gates output.
type Level int

const (
	Trace Level = iota
	Debug
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Trace:
		return "TRACE"
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Format selects the on-disk record shape.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// entry is a single structured log record.
type entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger is a level-gated, field-carrying logger writing to an io.Writer
// (typically a *LogRotator for per-child logs, or os.Stdout/Stderr for
// CLI-facing use via the logrus bridge in operational.go).
type Logger struct {
	mu     sync.Mutex
	level  Level
	output io.Writer
	format Format
	fields map[string]interface{}
}

// New creates a Logger writing to output at the given level/format.
func New(output io.Writer, level Level, format Format) *Logger {
	return &Logger{output: output, level: level, format: format, fields: map[string]interface{}{}}
}

// WithFields returns a derived Logger carrying additional context fields.
// Per spec §7, supervisors write structured log records with kind, child
// PID, and context — this is how that context accumulates.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{output: l.output, level: l.level, format: l.format, fields: merged}
}

func (l *Logger) log(level Level, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	e := entry{Timestamp: time.Now(), Level: level.String(), Message: msg, Fields: map[string]interface{}{}}
	for k, v := range l.fields {
		e.Fields[k] = v
	}
	for k, v := range fields {
		e.Fields[k] = v
	}

	var out string
	if l.format == FormatJSON {
		b, err := json.Marshal(e)
		if err != nil {
			out = l.formatText(e)
		} else {
			out = string(b) + "\n"
		}
	} else {
		out = l.formatText(e)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.output.Write([]byte(out))
}

func (l *Logger) formatText(e entry) string {
	var sb strings.Builder
	sb.WriteString(e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
	sb.WriteString(" [")
	sb.WriteString(e.Level)
	sb.WriteString("] ")
	sb.WriteString(e.Message)
	if len(e.Fields) > 0 {
		sb.WriteString(" {")
		first := true
		for k, v := range e.Fields {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			fmt.Fprintf(&sb, "%s=%v", k, v)
		}
		sb.WriteString("}")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (l *Logger) Trace(msg string, fields map[string]interface{}) { l.log(Trace, msg, fields) }
func (l *Logger) Debug(msg string, fields map[string]interface{}) { l.log(Debug, msg, fields) }
func (l *Logger) Info(msg string, fields map[string]interface{})  { l.log(Info, msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]interface{})  { l.log(Warn, msg, fields) }
func (l *Logger) Error(msg string, fields map[string]interface{}) { l.log(Error, msg, fields) }

// Sync flushes the underlying writer if it supports syncing.
func (l *Logger) Sync() error {
	if s, ok := l.output.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// Close closes the underlying writer if it supports closing.
func (l *Logger) Close() error {
	if c, ok := l.output.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewChildLogger builds the per-child rotating logger a supervisor attaches
// to one forwarded stdout/stderr stream (spec §4.H, §6).
func NewChildLogger(logDir, prefix, sandbox string, pid int, epochSeconds int64) (*Logger, error) {
	rotator, err := NewLogRotator(&RotationConfig{
		Filename:   ChildLogName(logDir, prefix, sandbox, epochSeconds, pid),
		MaxSizeMB:  50,
		MaxAgeDays: 14,
		MaxBackups: 5,
		Compress:   true,
	})
	if err != nil {
		return nil, err
	}
	return New(rotator, Info, FormatJSON).WithFields(map[string]interface{}{
		"sandbox": sandbox,
		"pid":     pid,
	}), nil
}

// Stdout is a convenience text-format logger for components with no
// rotation requirement (e.g. tests, short-lived CLI invocations).
func Stdout(level Level) *Logger {
	return New(os.Stdout, level, FormatText)
}
