// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package southbound

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// MaxLogValueLength limits the length of log values. Longer values are
// truncated.
const MaxLogValueLength = 1024

// Logger is the pluggable logging interface used by the manager and by
// device connections.
//
// Implementations receive structured key-value pairs. Three
// implementations are provided:
//   - DefaultLogger: Go's standard log package with a level threshold
//   - ZerologLogger: forwards to a zerolog.Logger
//   - NoOpLogger: discards everything (default)
//
// Example custom logger integration:
//
//	type SlogAdapter struct {
//	    logger *slog.Logger
//	}
//
//	func (s *SlogAdapter) Debug(ctx context.Context, msg string, keysAndValues ...any) {
//	    s.logger.DebugContext(ctx, msg, keysAndValues...)
//	}
//	// ... implement Info, Warn, Error
//
//	mgr := southbound.NewManager(southbound.WithLogger(&SlogAdapter{logger: slog.Default()}))
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Warn(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// LogLevel represents the severity threshold for logging
type LogLevel int

const (
	// LogLevelDebug enables all log levels (most verbose)
	LogLevelDebug LogLevel = iota

	// LogLevelInfo enables Info, Warn, and Error logs
	LogLevelInfo

	// LogLevelWarn enables Warn and Error logs
	LogLevelWarn

	// LogLevelError enables only Error logs
	LogLevelError

	// LogLevelNone disables all logging
	LogLevelNone
)

// String returns the string representation of a LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// ParseLogLevel converts a level name (debug, info, warn, error, none) to
// a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug, nil
	case "INFO", "":
		return LogLevelInfo, nil
	case "WARN", "WARNING":
		return LogLevelWarn, nil
	case "ERROR":
		return LogLevelError, nil
	case "NONE", "OFF":
		return LogLevelNone, nil
	}
	return LogLevelNone, fmt.Errorf("invalid log level: %s (valid values: debug, info, warn, error, none)", s)
}

// DefaultLogger wraps Go's standard log package with a level threshold.
//
// Log output format: [LEVEL] message key1=value1 key2=value2
type DefaultLogger struct {
	level LogLevel
}

// NewDefaultLogger creates a DefaultLogger with the specified log level
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return &DefaultLogger{level: level}
}

func (l *DefaultLogger) Debug(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelDebug, msg, keysAndValues...)
}

func (l *DefaultLogger) Info(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelInfo, msg, keysAndValues...)
}

func (l *DefaultLogger) Warn(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelWarn, msg, keysAndValues...)
}

func (l *DefaultLogger) Error(_ context.Context, msg string, keysAndValues ...any) {
	l.log(LogLevelError, msg, keysAndValues...)
}

// log formats one line. Keys and values are sanitized, the message comes
// from this package and is written as is.
func (l *DefaultLogger) log(level LogLevel, msg string, keysAndValues ...any) {
	if level < l.level {
		return
	}

	var builder strings.Builder
	builder.Grow(len(msg) + 10 + len(keysAndValues)*25)

	builder.WriteString("[")
	builder.WriteString(level.String())
	builder.WriteString("] ")
	builder.WriteString(msg)

	for i := 0; i < len(keysAndValues); i += 2 {
		builder.WriteString(" ")
		builder.WriteString(sanitizeLogValue(keysAndValues[i]))
		if i+1 < len(keysAndValues) {
			builder.WriteString("=")
			builder.WriteString(sanitizeLogValue(keysAndValues[i+1]))
		} else {
			builder.WriteString("=<MISSING>")
		}
	}

	log.Println(builder.String())
}

// sanitizeLogValue neutralizes control characters, ANSI escapes and
// invisible Unicode in a log value and truncates it to MaxLogValueLength.
//
// Example:
//
//	Input:  "user\n[ERROR] Fake attack message"
//	Output: "user [ERROR] Fake attack message"
func sanitizeLogValue(val any) string {
	str := fmt.Sprintf("%v", val)

	if len(str) > MaxLogValueLength {
		str = str[:MaxLogValueLength] + "...[TRUNCATED]"
	}

	var builder strings.Builder
	builder.Grow(len(str))

	for i := 0; i < len(str); {
		r, size := utf8.DecodeRuneInString(str[i:])
		i += size

		switch {
		case r == utf8.RuneError && size <= 1:
			builder.WriteRune('.')
		case r == 0x200B, r == 0x200C, r == 0x200D, r == 0xFEFF:
			// zero-width characters are dropped
		case r == 0x202E:
			builder.WriteRune(' ')
		case r == '\n', r == '\r', r == '\t', r == 0x0C:
			builder.WriteRune(' ')
		case r < 32 || r == 127:
			builder.WriteRune('.')
		default:
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// ZerologLogger forwards log calls to a zerolog.Logger. Key-value pairs
// become fields; a context carrying a zerolog logger (zerolog.Ctx) takes
// precedence over the wrapped one.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps l.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: l}
}

func (z *ZerologLogger) Debug(ctx context.Context, msg string, keysAndValues ...any) {
	z.event(ctx, zerolog.DebugLevel, msg, keysAndValues)
}

func (z *ZerologLogger) Info(ctx context.Context, msg string, keysAndValues ...any) {
	z.event(ctx, zerolog.InfoLevel, msg, keysAndValues)
}

func (z *ZerologLogger) Warn(ctx context.Context, msg string, keysAndValues ...any) {
	z.event(ctx, zerolog.WarnLevel, msg, keysAndValues)
}

func (z *ZerologLogger) Error(ctx context.Context, msg string, keysAndValues ...any) {
	z.event(ctx, zerolog.ErrorLevel, msg, keysAndValues)
}

func (z *ZerologLogger) event(ctx context.Context, level zerolog.Level, msg string, kv []any) {
	l := &z.logger
	if ctx != nil {
		if cl := zerolog.Ctx(ctx); cl != zerolog.DefaultContextLogger && cl.GetLevel() != zerolog.Disabled {
			l = cl
		}
	}
	e := l.WithLevel(level)
	if e == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		if i+1 >= len(kv) {
			e = e.Str(key, "<MISSING>")
			break
		}
		switch v := kv[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case string:
			e = e.Str(key, sanitizeLogValue(v))
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}

// NoOpLogger discards all log messages. It is the default logger.
type NoOpLogger struct{}

func (NoOpLogger) Debug(context.Context, string, ...any) {}
func (NoOpLogger) Info(context.Context, string, ...any)  {}
func (NoOpLogger) Warn(context.Context, string, ...any)  {}
func (NoOpLogger) Error(context.Context, string, ...any) {}
