// Package logging builds the diagnostic logger. Diagnostics never share a
// stream with the report.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// ParseLevel maps a level name to a log level: debug, info, warn, error.
func ParseLevel(name string) (log.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	}
	return log.InfoLevel, fmt.Errorf("logging: unknown level %q", name)
}

// New creates a logger writing to w at the given level.
func New(w io.Writer, level log.Level) *log.Logger {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: false,
		Prefix:          "loopdepth",
	})
	lg.SetLevel(level)
	return lg
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return New(io.Discard, log.FatalLevel)
}
