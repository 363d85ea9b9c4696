// Package log provides the structured logger used along the adapter call
// chain. Every entry goes to a local zap sink; entries whose severity the
// Shipper accepts (INFO by default) are additionally delivered to a remote
// log service.
package log

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/invocation"
)

// LogName is the remote log channel shared by every fsbridge logger.
const LogName = "gcs-connector"

// Entry is a single structured log record bound for the remote service.
type Entry struct {
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	LogName      string    `json:"logName"`
	Timestamp    time.Time `json:"timestamp"`
	InvocationID string    `json:"invocationId,omitempty"`
}

// Logger writes formatted messages to a local zap logger and forwards the
// entries its Shipper accepts.
type Logger struct {
	name    string
	raw     *zap.Logger
	local   *zap.Logger
	shipper *Shipper
}

// New creates a logger for the named channel. A nil shipper disables remote
// delivery; a nil local logger discards local output.
func New(name string, local *zap.Logger, shipper *Shipper) *Logger {
	if local == nil {
		local = zap.NewNop()
	}
	return newLogger(name, local.Named(name), shipper)
}

func newLogger(name string, raw *zap.Logger, shipper *Shipper) *Logger {
	return &Logger{
		name: name,
		raw:  raw,
		// emit is two frames below the caller of the public methods.
		local:   raw.WithOptions(zap.AddCallerSkip(2)),
		shipper: shipper,
	}
}

// Name returns the channel name.
func (l *Logger) Name() string {
	return l.name
}

// Named returns a logger for a sub-channel sharing the same sinks.
func (l *Logger) Named(name string) *Logger {
	return newLogger(l.name+"."+name, l.raw.Named(name), l.shipper)
}

// Log formats message with args and emits it at severity.
func (l *Logger) Log(ctx context.Context, severity Severity, message string, args ...interface{}) {
	l.emit(ctx, severity, nil, message, args)
}

func (l *Logger) Finest(ctx context.Context, message string, args ...interface{}) {
	l.emit(ctx, Finest, nil, message, args)
}

func (l *Logger) Fine(ctx context.Context, message string, args ...interface{}) {
	l.emit(ctx, Fine, nil, message, args)
}

func (l *Logger) Config(ctx context.Context, message string, args ...interface{}) {
	l.emit(ctx, Config, nil, message, args)
}

func (l *Logger) Info(ctx context.Context, message string, args ...interface{}) {
	l.emit(ctx, Info, nil, message, args)
}

func (l *Logger) Warning(ctx context.Context, message string, args ...interface{}) {
	l.emit(ctx, Warning, nil, message, args)
}

func (l *Logger) Severe(ctx context.Context, message string, args ...interface{}) {
	l.emit(ctx, Severe, nil, message, args)
}

// WithCause logs at SEVERE and attaches cause to the local entry.
func (l *Logger) WithCause(ctx context.Context, cause error, message string, args ...interface{}) {
	l.emit(ctx, Severe, cause, message, args)
}

func (l *Logger) emit(ctx context.Context, severity Severity, cause error, message string, args []interface{}) {
	remote := l.shipper != nil && l.shipper.Accepts(severity)
	ce := l.local.Check(severity.Level(), "")
	if ce == nil && !remote {
		return
	}

	formatted := format(message, args)
	id := invocation.Current(ctx)

	// The local sink always sees the entry before the remote path does.
	if ce != nil {
		ce.Message = formatted
		fields := make([]zap.Field, 0, 3)
		fields = append(fields, zap.Stringer("severity", severity))
		if id != "" {
			fields = append(fields, zap.String("invocation_id", id))
		}
		if cause != nil {
			fields = append(fields, zap.Error(cause))
		}
		ce.Write(fields...)
	}

	if remote {
		l.shipper.Submit(Entry{
			Severity:     severity,
			Message:      formatted,
			LogName:      LogName,
			Timestamp:    time.Now().UTC(),
			InvocationID: id,
		})
	}
}

// format applies printf-style positional substitution. A message without
// arguments is taken literally.
func format(message string, args []interface{}) string {
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}
