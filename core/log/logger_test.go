package log

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ebogdum/fsbridge/invocation"
)

// recordingFactory hands out clients that append delivered entries to a
// shared slice.
type recordingFactory struct {
	mu        sync.Mutex
	delivered []Entry
	opened    int
	closed    int
	failWrite error
	block     chan struct{}
	closedF   bool
}

func (f *recordingFactory) NewClient(ctx context.Context) (Client, error) {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	return &recordingClient{factory: f}, nil
}

func (f *recordingFactory) Close() error {
	f.mu.Lock()
	f.closedF = true
	f.mu.Unlock()
	return nil
}

func (f *recordingFactory) entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Entry(nil), f.delivered...)
}

type recordingClient struct {
	factory *recordingFactory
	pending []Entry
}

func (c *recordingClient) Write(ctx context.Context, entries []Entry) error {
	if c.factory.block != nil {
		select {
		case <-c.factory.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.factory.failWrite != nil {
		return c.factory.failWrite
	}
	c.pending = append(c.pending, entries...)
	return nil
}

func (c *recordingClient) Flush(ctx context.Context) error {
	c.factory.mu.Lock()
	c.factory.delivered = append(c.factory.delivered, c.pending...)
	c.factory.mu.Unlock()
	c.pending = nil
	return nil
}

func (c *recordingClient) Close() error {
	c.factory.mu.Lock()
	c.factory.closed++
	c.factory.mu.Unlock()
	return nil
}

func newObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		severity Severity
		name     string
		level    zapcore.Level
	}{
		{Finest, "FINEST", zapcore.DebugLevel},
		{Fine, "FINE", zapcore.DebugLevel},
		{Config, "CONFIG", zapcore.InfoLevel},
		{Info, "INFO", zapcore.InfoLevel},
		{Warning, "WARNING", zapcore.WarnLevel},
		{Severe, "SEVERE", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.severity.String())
			assert.Equal(t, tt.level, tt.severity.Level())

			parsed, err := ParseSeverity(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.severity, parsed)
		})
	}

	_, err := ParseSeverity("verbose")
	assert.Error(t, err)
}

func TestLogFormatsAndWritesLocally(t *testing.T) {
	local, logs := newObservedLogger(zapcore.DebugLevel)
	logger := New("adapter", local, nil)
	ctx := invocation.Begin(context.Background())

	logger.Fine(ctx, "%s: delete(path: %s, recursive: %t)", invocation.Current(ctx), "/a/b", true)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, invocation.Current(ctx)+": delete(path: /a/b, recursive: true)", entry.Message)
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
	assert.Equal(t, "adapter", entry.LoggerName)
	assert.Equal(t, invocation.Current(ctx), entry.ContextMap()["invocation_id"])
	assert.Equal(t, "FINE", entry.ContextMap()["severity"])
}

func TestLogWithoutArgumentsIsLiteral(t *testing.T) {
	local, logs := newObservedLogger(zapcore.DebugLevel)
	logger := New("adapter", local, nil)

	logger.Info(context.Background(), "100% done")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "100% done", logs.All()[0].Message)
	assert.NotContains(t, logs.All()[0].ContextMap(), "invocation_id")
}

func TestWithCause(t *testing.T) {
	local, logs := newObservedLogger(zapcore.DebugLevel)
	logger := New("adapter", local, nil)
	cause := errors.New("boom")

	logger.WithCause(context.Background(), cause, "operation %s failed", "rename")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "operation rename failed", entry.Message)
	assert.Equal(t, "boom", entry.ContextMap()["error"])
}

func TestOnlyInfoIsShippedRemotely(t *testing.T) {
	local, logs := newObservedLogger(zapcore.DebugLevel)
	factory := &recordingFactory{}
	shipper := NewShipper(factory, DefaultShipperOptions(), zap.NewNop())
	logger := New("adapter", local, shipper)
	ctx := invocation.Begin(context.Background())

	logger.Finest(ctx, "finest")
	logger.Fine(ctx, "fine")
	logger.Config(ctx, "config")
	logger.Info(ctx, "info %d", 42)
	logger.Warning(ctx, "warning")
	logger.Severe(ctx, "severe")

	require.NoError(t, shipper.Close(context.Background()))

	assert.Equal(t, 6, logs.Len())
	delivered := factory.entries()
	require.Len(t, delivered, 1)
	assert.Equal(t, Info, delivered[0].Severity)
	assert.Equal(t, "info 42", delivered[0].Message)
	assert.Equal(t, LogName, delivered[0].LogName)
	assert.Equal(t, invocation.Current(ctx), delivered[0].InvocationID)
	assert.False(t, delivered[0].Timestamp.IsZero())
}

func TestShippedSeveritiesAreConfigurable(t *testing.T) {
	tests := []struct {
		name       string
		severities []Severity
		want       []Severity
	}{
		{"default", nil, []Severity{Info}},
		{"finest and info", []Severity{Finest, Info}, []Severity{Finest, Info}},
		{"adapter trace", []Severity{Finest, Fine, Config, Info}, []Severity{Finest, Fine, Config, Info}},
		{"severe only", []Severity{Severe}, []Severity{Severe}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := &recordingFactory{}
			opts := DefaultShipperOptions()
			opts.Severities = tt.severities
			shipper := NewShipper(factory, opts, zap.NewNop())
			logger := New("adapter", zap.NewNop(), shipper)
			ctx := context.Background()

			for _, severity := range []Severity{Finest, Fine, Config, Info, Warning, Severe} {
				logger.Log(ctx, severity, "%s", severity)
			}
			require.NoError(t, shipper.Close(context.Background()))

			got := make([]Severity, 0, len(tt.want))
			for _, e := range factory.entries() {
				got = append(got, e.Severity)
				assert.Equal(t, e.Severity.String(), e.Message)
			}
			assert.Equal(t, tt.want, got)
			for _, severity := range tt.want {
				assert.True(t, shipper.Accepts(severity))
			}
			assert.False(t, shipper.Accepts(Severity(-1)))
		})
	}
}

func TestInfoShippedEvenWhenLocalLevelIsHigher(t *testing.T) {
	local, logs := newObservedLogger(zapcore.ErrorLevel)
	factory := &recordingFactory{}
	shipper := NewShipper(factory, DefaultShipperOptions(), zap.NewNop())
	logger := New("adapter", local, shipper)

	logger.Info(context.Background(), "hello %s", "world")
	require.NoError(t, shipper.Close(context.Background()))

	assert.Equal(t, 0, logs.Len())
	require.Len(t, factory.entries(), 1)
	assert.Equal(t, "hello world", factory.entries()[0].Message)
}

func TestNamed(t *testing.T) {
	local, logs := newObservedLogger(zapcore.DebugLevel)
	logger := New("fsbridge", local, nil).Named("adapter")

	assert.Equal(t, "fsbridge.adapter", logger.Name())
	logger.Config(context.Background(), "ready")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "fsbridge.adapter", logs.All()[0].LoggerName)
}

func TestShipperScopesClientPerDelivery(t *testing.T) {
	factory := &recordingFactory{}
	shipper := NewShipper(factory, DefaultShipperOptions(), zap.NewNop())

	for i := 0; i < 5; i++ {
		require.True(t, shipper.Submit(Entry{Severity: Info, Message: "m", LogName: LogName}))
	}
	require.NoError(t, shipper.Close(context.Background()))

	factory.mu.Lock()
	defer factory.mu.Unlock()
	assert.Equal(t, 5, factory.opened)
	assert.Equal(t, 5, factory.closed)
	assert.Len(t, factory.delivered, 5)
	assert.True(t, factory.closedF)
	assert.Equal(t, ShipperStats{Shipped: 5}, shipper.Stats())
}

func TestShipperSubmitNeverBlocks(t *testing.T) {
	factory := &recordingFactory{block: make(chan struct{})}
	opts := DefaultShipperOptions()
	opts.QueueSize = 2
	opts.MaxAttempts = 1
	local, logs := newObservedLogger(zapcore.WarnLevel)
	shipper := NewShipper(factory, opts, local)

	done := make(chan struct{})
	accepted := 0
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			if shipper.Submit(Entry{Severity: Info, Message: "m"}) {
				accepted++
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	// One entry may be held by the worker in addition to the queued ones.
	assert.LessOrEqual(t, accepted, 3)
	assert.GreaterOrEqual(t, shipper.Stats().Dropped, uint64(17))
	assert.GreaterOrEqual(t, logs.FilterMessage("Dropped remote log entry").Len(), 1)

	close(factory.block)
	require.NoError(t, shipper.Close(context.Background()))
}

func TestShipperFailuresAreCountedNotPropagated(t *testing.T) {
	factory := &recordingFactory{failWrite: errors.New("collector down")}
	opts := DefaultShipperOptions()
	opts.MaxAttempts = 2
	opts.InitialBackoff = time.Millisecond
	opts.MaxBackoff = time.Millisecond
	local, logs := newObservedLogger(zapcore.WarnLevel)
	shipper := NewShipper(factory, opts, local)

	logger := New("adapter", zap.NewNop(), shipper)
	logger.Info(context.Background(), "primary operation result")

	require.NoError(t, shipper.Close(context.Background()))

	stats := shipper.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(0), stats.Shipped)
	failures := logs.FilterMessage("Failed to deliver remote log entry").All()
	require.Len(t, failures, 1)
	assert.Equal(t, int64(2), failures[0].ContextMap()["attempts"])
}

func TestShipperRejectsAfterClose(t *testing.T) {
	shipper := NewShipper(&recordingFactory{}, DefaultShipperOptions(), zap.NewNop())
	require.NoError(t, shipper.Close(context.Background()))

	assert.False(t, shipper.Submit(Entry{Severity: Info, Message: "late"}))
	assert.Equal(t, uint64(1), shipper.Stats().Dropped)
	assert.NoError(t, shipper.Close(context.Background()))
}

func TestShipperCloseHonorsDeadline(t *testing.T) {
	factory := &recordingFactory{block: make(chan struct{})}
	opts := DefaultShipperOptions()
	opts.MaxAttempts = 1
	opts.DeliveryTimeout = time.Minute
	shipper := NewShipper(factory, opts, zap.NewNop())

	for i := 0; i < 3; i++ {
		shipper.Submit(Entry{Severity: Info, Message: "stuck"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := shipper.Close(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	stats := shipper.Stats()
	assert.Equal(t, uint64(3), stats.Failed+stats.Dropped)
}
