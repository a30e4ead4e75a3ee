// Package logging provides a small multi-sink, level-filtered logger used by
// both the manager and client. It follows the structure of the console/file
// log handlers in the McPatch2 manager and client (manager/src/web/log.rs,
// client's log module): a set of sinks, each with its own level threshold,
// fed by a single set of package-level calls so callers never need to know
// which sinks are currently attached.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Sink receives formatted log lines at or above its configured level.
type Sink interface {
	// Level reports the minimum level this sink accepts.
	Level() Level
	// Write delivers a single formatted, already-leveled log line (without a
	// trailing newline) to the sink.
	Write(level Level, line string)
}

// Logger multiplexes log calls out to a set of registered sinks.
type Logger struct {
	mu     sync.Mutex
	sinks  []Sink
	prefix string
}

// Root is the default package-level logger used by the free functions below.
var Root = &Logger{}

// AddSink registers a sink with the logger. It is safe for concurrent use.
func (l *Logger) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Sublogger returns a new Logger that shares this logger's sinks but adds a
// dotted prefix to every line it emits, mirroring the teacher's
// Logger.Sublogger.
func (l *Logger) Sublogger(name string) *Logger {
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}

	return &Logger{sinks: l.sinks, prefix: prefix}
}

func (l *Logger) emit(level Level, line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}

	l.mu.Lock()
	sinks := l.sinks
	l.mu.Unlock()

	for _, s := range sinks {
		if level <= s.Level() {
			s.Write(level, line)
		}
	}
}

// Error logs a fatal-severity message.
func (l *Logger) Error(v ...interface{}) { l.emit(LevelError, fmt.Sprint(v...)) }

// Errorf logs a fatal-severity message with formatting.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.emit(LevelError, fmt.Sprintf(format, v...))
}

// Warn logs a non-fatal warning.
func (l *Logger) Warn(v ...interface{}) { l.emit(LevelWarn, fmt.Sprint(v...)) }

// Warnf logs a non-fatal warning with formatting.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.emit(LevelWarn, fmt.Sprintf(format, v...))
}

// Info logs a basic execution-progress message.
func (l *Logger) Info(v ...interface{}) { l.emit(LevelInfo, fmt.Sprint(v...)) }

// Infof logs a basic execution-progress message with formatting.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.emit(LevelInfo, fmt.Sprintf(format, v...))
}

// Debug logs detailed execution information.
func (l *Logger) Debug(v ...interface{}) { l.emit(LevelDebug, fmt.Sprint(v...)) }

// Debugf logs detailed execution information with formatting.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.emit(LevelDebug, fmt.Sprintf(format, v...))
}

// Trace logs high-volume, low-level information such as per-file transfer
// progress lines.
func (l *Logger) Trace(v ...interface{}) { l.emit(LevelTrace, fmt.Sprint(v...)) }

// Tracef logs high-volume, low-level information with formatting.
func (l *Logger) Tracef(format string, v ...interface{}) {
	l.emit(LevelTrace, fmt.Sprintf(format, v...))
}

// Package-level convenience wrappers against Root, mirroring the teacher's
// package-level logging entry points.
func Error(v ...interface{})                        { Root.Error(v...) }
func Errorf(format string, v ...interface{})         { Root.Errorf(format, v...) }
func Warn(v ...interface{})                          { Root.Warn(v...) }
func Warnf(format string, v ...interface{})          { Root.Warnf(format, v...) }
func Info(v ...interface{})                          { Root.Info(v...) }
func Infof(format string, v ...interface{})          { Root.Infof(format, v...) }
func Debug(v ...interface{})                         { Root.Debug(v...) }
func Debugf(format string, v ...interface{})         { Root.Debugf(format, v...) }
func Trace(v ...interface{})                         { Root.Trace(v...) }
func Tracef(format string, v ...interface{})         { Root.Tracef(format, v...) }

// ConsoleSink writes colored lines to an io.Writer (normally os.Stdout),
// coloring warnings yellow and errors red, matching the teacher's use of
// fatih/color in pkg/logging/logger.go's Warn/Error methods.
type ConsoleSink struct {
	level  Level
	writer io.Writer
}

// NewConsoleSink creates a console sink that accepts messages at or below
// level (i.e. at or above the given severity).
func NewConsoleSink(level Level) *ConsoleSink {
	return &ConsoleSink{level: level, writer: os.Stdout}
}

// Level implements Sink.Level.
func (c *ConsoleSink) Level() Level { return c.level }

// Write implements Sink.Write.
func (c *ConsoleSink) Write(level Level, line string) {
	switch level {
	case LevelError:
		fmt.Fprintln(c.writer, color.RedString(line))
	case LevelWarn:
		fmt.Fprintln(c.writer, color.YellowString(line))
	default:
		fmt.Fprintln(c.writer, line)
	}
}

// FileSink appends timestamped lines to a log file, mirroring the original
// FileHandler from the McPatch2 client/manager loggers.
type FileSink struct {
	level Level
	file  *os.File
	mu    sync.Mutex
}

// NewFileSink opens (creating or appending to) the file at path.
func NewFileSink(path string, level Level) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &FileSink{level: level, file: f}, nil
}

// Level implements Sink.Level.
func (f *FileSink) Level() Level { return f.level }

// Write implements Sink.Write.
func (f *FileSink) Write(level Level, line string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(f.file, "[%s] [%s] %s\n", timestamp, level, line)
}

// Close closes the underlying file.
func (f *FileSink) Close() error {
	return f.file.Close()
}
