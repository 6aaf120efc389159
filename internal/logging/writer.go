// Package logging configures the global zerolog logger and adapts raw
// process output into structured log lines.
package logging

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Options controls the global logger.
type Options struct {
	Level  string    // trace, debug, info, warn, error
	Format string    // console, json or auto (console on a terminal)
	Out    io.Writer // defaults to os.Stderr
}

// Setup installs the global zerolog logger.
func Setup(opts Options) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(opts.Level))

	if useConsole(opts.Format, out) {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal(out),
		}).With().Timestamp().Logger()
		return
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func useConsole(format string, out io.Writer) bool {
	switch strings.ToLower(format) {
	case "console":
		return true
	case "json":
		return false
	default:
		return isTerminal(out)
	}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// parseLogLevel converts a level string to a zerolog level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// Writer is an io.Writer that turns every complete line written to it into
// one log event tagged with a component name. Partial lines are buffered
// until the next newline or Flush.
type Writer struct {
	logger    zerolog.Logger
	level     zerolog.Level
	component string

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewWriter creates a line-logging writer on top of logger.
func NewWriter(logger zerolog.Logger, component string, level zerolog.Level) *Writer {
	return &Writer{
		logger:    logger,
		level:     level,
		component: component,
	}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// incomplete line, keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *Writer) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	w.logger.WithLevel(w.level).Str("component", w.component).Msg(line)
}
