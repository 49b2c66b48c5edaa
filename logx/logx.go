// SPDX-License-Identifier: GPL-3.0-or-later

// Package logx creates the [log/slog] handlers used by the command.
//
// The verbosity is a counter (as in `-vvv`) mapped to a [slog.Level] and
// the [TimestampMode] selects the precision of the log timestamps.
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// TimestampMode is the precision of log timestamps.
type TimestampMode string

const (
	// TimestampNone disables timestamps.
	TimestampNone = TimestampMode("none")

	// TimestampSec uses a second precision.
	TimestampSec = TimestampMode("sec")

	// TimestampMillis uses a millisecond precision.
	TimestampMillis = TimestampMode("ms")

	// TimestampNanos uses a nanosecond precision.
	TimestampNanos = TimestampMode("ns")
)

// ParseTimestampMode parses a [TimestampMode]. The empty string
// is equivalent to [TimestampNone].
func ParseTimestampMode(value string) (TimestampMode, error) {
	switch mode := TimestampMode(strings.ToLower(value)); mode {
	case "":
		return TimestampNone, nil
	case TimestampNone, TimestampSec, TimestampMillis, TimestampNanos:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid timestamp mode %q (valid: sec, ms, ns, none)", value)
	}
}

var _ pflag.Value = new(TimestampMode)

// String implements [pflag.Value].
func (m TimestampMode) String() string {
	if m == "" {
		return string(TimestampNone)
	}
	return string(m)
}

// Set implements [pflag.Value].
func (m *TimestampMode) Set(value string) error {
	mode, err := ParseTimestampMode(value)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Type implements [pflag.Value].
func (m TimestampMode) Type() string {
	return "sec|ms|ns|none"
}

// Enabled returns whether the mode records timestamps.
func (m TimestampMode) Enabled() bool {
	return m != "" && m != TimestampNone
}

// layout returns the [time] layout for the mode.
func (m TimestampMode) layout() string {
	switch m {
	case TimestampMillis:
		return "2006-01-02T15:04:05.000Z07:00"
	case TimestampNanos:
		return "2006-01-02T15:04:05.000000000Z07:00"
	default:
		return time.RFC3339
	}
}

// Level maps a verbosity counter to a [slog.Level]: zero shows
// errors, one warnings, two informational events, and three or
// more debug events.
func Level(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelError
	case verbosity == 1:
		return slog.LevelWarn
	case verbosity == 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// NewHandler returns a text [slog.Handler] writing to w.
func NewHandler(w io.Writer, verbosity int, mode TimestampMode) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: Level(verbosity),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 || a.Key != slog.TimeKey {
				return a
			}
			if !mode.Enabled() {
				return slog.Attr{}
			}
			return slog.String(slog.TimeKey, a.Value.Time().Format(mode.layout()))
		},
	})
}

// NewLogger is like [NewHandler] but returns a [*slog.Logger].
func NewLogger(w io.Writer, verbosity int, mode TimestampMode) *slog.Logger {
	return slog.New(NewHandler(w, verbosity, mode))
}
