package fluid

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
)

// Logger is the leveled logger every renderer package accepts.
type Logger = gpu.Logger

// logSink is shared by a logger and the component loggers derived from it.
type logSink struct {
	mu    sync.Mutex
	debug bool
	out   *log.Logger
	err   *log.Logger
}

// DefaultLogger writes INFO and DEBUG to stdout and WARN and ERROR to
// stderr, one "[prefix] LEVEL: message" line each.
type DefaultLogger struct {
	sink   *logSink
	prefix string
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return newDefaultLogger(prefix, debug, os.Stdout, os.Stderr)
}

func newDefaultLogger(prefix string, debug bool, out, err io.Writer) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &DefaultLogger{
		sink: &logSink{
			debug: debug,
			out:   log.New(out, "", flags),
			err:   log.New(err, "", flags),
		},
		prefix: prefix,
	}
}

// Named returns a component logger tagged prefix/name. It shares l's
// outputs and debug switch.
func (l *DefaultLogger) Named(name string) *DefaultLogger {
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "/" + name
	}
	return &DefaultLogger{sink: l.sink, prefix: prefix}
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.sink.mu.Lock()
	l.sink.debug = enabled
	l.sink.mu.Unlock()
}

func (l *DefaultLogger) prefixf(level string, format string, args ...any) string {
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s: %s", l.prefix, level, fmt.Sprintf(format, args...))
	}
	return fmt.Sprintf("%s: %s", level, fmt.Sprintf(format, args...))
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.sink.out.Print(l.prefixf("DEBUG", format, args...))
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.sink.out.Print(l.prefixf("INFO", format, args...))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.sink.err.Print(l.prefixf("WARN", format, args...))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.sink.err.Print(l.prefixf("ERROR", format, args...))
}

func NewNopLogger() Logger { return gpu.NewNopLogger() }

// NewLogger builds the logger described by a config section.
func NewLogger(c LogConfig) Logger {
	if c.Quiet {
		return NewNopLogger()
	}
	return NewDefaultLogger(c.Prefix, c.Debug)
}

// Named derives a component logger when l supports it and returns l
// unchanged otherwise.
func Named(l Logger, name string) Logger {
	if dl, ok := l.(*DefaultLogger); ok {
		return dl.Named(name)
	}
	return l
}
