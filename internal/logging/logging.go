// Package logging provides the structured logging interface cargo-hold's
// state-engine, GC, and CLI packages use.
//
// Logger keeps a five-level shape (Error, Warn, Info, Debug, Fatal) so call
// sites read the same regardless of which component emits the message, but
// the concrete implementation wraps github.com/rs/zerolog: component
// identity and per-call key/value pairs ride as structured fields instead of
// a bracketed "[component]" string prefix, so a log aggregator can filter
// and query on them directly.
//
// Fatalf logs at the fatal level and invokes a configured FatalHandler; it
// does not call os.Exit itself, so a command's own cleanup (e.g. releasing
// a manifest lock) always runs before the process actually exits.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrFatal is the sentinel wrapped by fatal conditions. Use errors.Is(err,
// ErrFatal) to detect them.
var ErrFatal = errors.New("fatal error")

// FatalHandler is invoked when Fatalf is called. It must be safe for
// concurrent use and must not itself call Fatalf.
type FatalHandler func(msg string)

// Level is a logging verbosity level, ordered least to most verbose.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelError:
		return zerolog.ErrorLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// Field is one structured key/value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// F builds a Field, shortening call sites: logging.F("path", p).
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Logger is the logging surface every cargo-hold component depends on.
// Implementations must be safe for concurrent use.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
	Fatalf(format string, args ...any)

	// With returns a Logger that attaches component and any extra fields to
	// every message it logs, without mutating the receiver.
	With(component string, fields ...Field) Logger
}

// zlogger wraps a zerolog.Logger behind the Logger interface. It is
// stateless after construction and safe for concurrent use, since
// zerolog.Logger itself is.
type zlogger struct {
	z            zerolog.Logger
	fatalHandler *atomic.Pointer[FatalHandler]
}

// New constructs a Logger writing one JSON object per line to w at the
// given level.
func New(w io.Writer, level Level) Logger {
	z := zerolog.New(w).With().Timestamp().Logger().Level(level.zerolog())
	return &zlogger{z: z, fatalHandler: new(atomic.Pointer[FatalHandler])}
}

// NewDefault returns a Logger writing to stderr at level.
func NewDefault(level Level) Logger {
	return New(os.Stderr, level)
}

// Discard is a Logger that drops every message.
var Discard Logger = &zlogger{z: zerolog.Nop(), fatalHandler: new(atomic.Pointer[FatalHandler])}

// SetFatalHandler installs h to run whenever Fatalf is called on l or any
// Logger derived from it via With.
func SetFatalHandler(l Logger, h FatalHandler) {
	if zl, ok := l.(*zlogger); ok {
		zl.fatalHandler.Store(&h)
	}
}

func (l *zlogger) With(component string, fields ...Field) Logger {
	ctx := l.z.With().Str("component", component)
	for _, f := range fields {
		ctx = addField(ctx, f)
	}
	return &zlogger{z: ctx.Logger(), fatalHandler: l.fatalHandler}
}

func addField(ctx zerolog.Context, f Field) zerolog.Context {
	switch v := f.Value.(type) {
	case string:
		return ctx.Str(f.Key, v)
	case int:
		return ctx.Int(f.Key, v)
	case int64:
		return ctx.Int64(f.Key, v)
	case uint64:
		return ctx.Uint64(f.Key, v)
	case bool:
		return ctx.Bool(f.Key, v)
	case error:
		return ctx.AnErr(f.Key, v)
	default:
		return ctx.Interface(f.Key, v)
	}
}

func (l *zlogger) Errorf(format string, args ...any) { l.z.Error().Msgf(format, args...) }
func (l *zlogger) Warnf(format string, args ...any)  { l.z.Warn().Msgf(format, args...) }
func (l *zlogger) Infof(format string, args ...any)  { l.z.Info().Msgf(format, args...) }
func (l *zlogger) Debugf(format string, args ...any) { l.z.Debug().Msgf(format, args...) }

func (l *zlogger) Fatalf(format string, args ...any) {
	l.z.WithLevel(zerolog.FatalLevel).Bool("fatal", true).Msgf(format, args...)
	if h := l.fatalHandler.Load(); h != nil {
		(*h)(fatalMessage(format, args...))
	}
}

func fatalMessage(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
