package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Severity is the level of a structured log entry.
type Severity int

const (
	Finest Severity = iota
	Fine
	Config
	Info
	Warning
	Severe
)

var severityNames = [...]string{"FINEST", "FINE", "CONFIG", "INFO", "WARNING", "SEVERE"}

func (s Severity) String() string {
	if s < Finest || s > Severe {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity parses a severity name, ignoring case.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// Level maps the severity onto the local zap level.
func (s Severity) Level() zapcore.Level {
	switch s {
	case Finest, Fine:
		return zapcore.DebugLevel
	case Config, Info:
		return zapcore.InfoLevel
	case Warning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
