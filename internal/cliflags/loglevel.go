// Package cliflags holds small pflag.Value implementations shared by
// cmd/engine and cmd/backtest, so both binaries reject a bad --log-level
// at flag-parse time instead of surfacing it later as a config error.
package cliflags

import (
	"fmt"

	"github.com/spf13/pflag"
)

var validLevels = map[string]bool{"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true}

// LogLevel is a pflag.Value that only accepts DEBUG/INFO/WARN/ERROR,
// defaulting to INFO.
type LogLevel struct {
	value string
}

// NewLogLevel builds a LogLevel flag defaulting to INFO.
func NewLogLevel() *LogLevel {
	return &LogLevel{value: "INFO"}
}

func (l *LogLevel) String() string {
	if l.value == "" {
		return "INFO"
	}
	return l.value
}

func (l *LogLevel) Set(s string) error {
	if !validLevels[s] {
		return fmt.Errorf("must be one of DEBUG, INFO, WARN, ERROR, got %q", s)
	}
	l.value = s
	return nil
}

// Type implements pflag.Value.Type.
func (l *LogLevel) Type() string { return "level" }

var _ pflag.Value = (*LogLevel)(nil)
