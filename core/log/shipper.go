package log

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebogdum/fsbridge/metrics"
)

// ErrShipperClosed is returned when entries are submitted after Close.
var ErrShipperClosed = errors.New("log shipper closed")

// Client is a handle on the remote log service. A handle is acquired for a
// single delivery, written to, flushed and closed; it is never reused.
type Client interface {
	// Write queues entries as one batch
	Write(ctx context.Context, entries []Entry) error

	// Flush delivers every queued batch
	Flush(ctx context.Context) error

	// Close releases the handle
	Close() error
}

// ClientFactory hands out scoped Client handles.
type ClientFactory interface {
	// NewClient acquires a handle for one delivery
	NewClient(ctx context.Context) (Client, error)

	// Close releases resources shared between handles
	Close() error
}

// ShipperOptions configures a Shipper.
type ShipperOptions struct {
	// QueueSize bounds the number of entries waiting for delivery
	QueueSize int
	// DeliveryTimeout bounds a single delivery attempt
	DeliveryTimeout time.Duration
	// MaxAttempts is the number of delivery attempts per entry
	MaxAttempts int
	// InitialBackoff and MaxBackoff bound the wait between attempts
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// DropWarnInterval rate limits local warnings about lost entries
	DropWarnInterval time.Duration
	// Severities lists the severities a Logger hands to the shipper
	Severities []Severity
}

// DefaultShipperOptions returns ShipperOptions with sensible default values
func DefaultShipperOptions() ShipperOptions {
	return ShipperOptions{
		QueueSize:        1024,
		DeliveryTimeout:  5 * time.Second,
		MaxAttempts:      3,
		InitialBackoff:   100 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
		DropWarnInterval: 10 * time.Second,
		Severities:       []Severity{Info},
	}
}

// Accepts reports whether entries of severity are shipped.
func (s *Shipper) Accepts(severity Severity) bool {
	return severity >= Finest && severity <= Severe && s.accepted[severity]
}

// ShipperStats counts what happened to submitted entries.
type ShipperStats struct {
	Shipped uint64 `json:"shipped"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Shipper delivers entries to the remote log service from a background
// goroutine. Submit never blocks: when the bounded queue is full the entry is
// dropped, counted and reported on the local logger.
type Shipper struct {
	factory  ClientFactory
	opts     ShipperOptions
	accepted [Severe + 1]bool
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	done   chan struct{}

	// abort cancels in-flight deliveries when Close runs out of time
	abort       context.Context
	cancelAbort context.CancelFunc

	warnLimiter *rate.Limiter

	shipped atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewShipper creates a shipper and starts its delivery goroutine.
func NewShipper(factory ClientFactory, opts ShipperOptions, logger *zap.Logger) *Shipper {
	defaults := DefaultShipperOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = defaults.DeliveryTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaults.InitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	if opts.DropWarnInterval <= 0 {
		opts.DropWarnInterval = defaults.DropWarnInterval
	}
	if len(opts.Severities) == 0 {
		opts.Severities = defaults.Severities
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	abort, cancel := context.WithCancel(context.Background())
	s := &Shipper{
		factory:     factory,
		opts:        opts,
		logger:      logger.Named("shipper"),
		queue:       make(chan Entry, opts.QueueSize),
		done:        make(chan struct{}),
		abort:       abort,
		cancelAbort: cancel,
		warnLimiter: rate.NewLimiter(rate.Every(opts.DropWarnInterval), 1),
	}
	for _, severity := range opts.Severities {
		if severity >= Finest && severity <= Severe {
			s.accepted[severity] = true
		}
	}

	go s.run()

	return s
}

// Submit queues an entry for delivery and reports whether it was accepted.
func (s *Shipper) Submit(e Entry) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop(e, ErrShipperClosed.Error())
		return false
	}

	select {
	case s.queue <- e:
		metrics.RemoteLogQueueDepth.Set(float64(len(s.queue)))
		return true
	default:
		s.drop(e, "queue full")
		return false
	}
}

// Stats returns a snapshot of the delivery counters.
func (s *Shipper) Stats() ShipperStats {
	return ShipperStats{
		Shipped: s.shipped.Load(),
		Dropped: s.dropped.Load(),
		Failed:  s.failed.Load(),
	}
}

// Close stops accepting entries and waits for queued entries to be delivered.
// When ctx expires first, remaining entries are abandoned and counted as
// dropped. The client factory is closed once the queue is drained.
func (s *Shipper) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	var err error
	select {
	case <-s.done:
	case <-ctx.Done():
		s.cancelAbort()
		<-s.done
		err = fmt.Errorf("log shipper did not drain before deadline: %w", ctx.Err())
	}
	s.cancelAbort()

	if closeErr := s.factory.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close remote log client factory: %w", closeErr)
	}

	stats := s.Stats()
	s.logger.Info("Log shipper stopped",
		zap.Uint64("shipped", stats.Shipped),
		zap.Uint64("dropped", stats.Dropped),
		zap.Uint64("failed", stats.Failed))

	return err
}

func (s *Shipper) run() {
	defer close(s.done)

	for e := range s.queue {
		metrics.RemoteLogQueueDepth.Set(float64(len(s.queue)))

		if s.abort.Err() != nil {
			s.drop(e, "shutdown deadline exceeded")
			continue
		}
		s.deliver(e)
	}
}

// deliver ships a single entry, retrying with exponential backoff.
func (s *Shipper) deliver(e Entry) {
	start := time.Now()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.InitialBackoff
	policy.MaxInterval = s.opts.MaxBackoff
	policy.MaxElapsedTime = 0

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return s.deliverOnce(e)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.opts.MaxAttempts-1)), s.abort))

	metrics.RemoteLogDeliveryDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.failed.Add(1)
		metrics.RemoteLogEntriesTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("Failed to deliver remote log entry",
			zap.String("log_name", e.LogName),
			zap.Stringer("severity", e.Severity),
			zap.String("invocation_id", e.InvocationID),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return
	}

	s.shipped.Add(1)
	metrics.RemoteLogEntriesTotal.WithLabelValues("shipped").Inc()
}

func (s *Shipper) deliverOnce(e Entry) error {
	ctx, cancel := context.WithTimeout(s.abort, s.opts.DeliveryTimeout)
	defer cancel()

	client, err := s.factory.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to open remote log client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			s.logger.Debug("Failed to close remote log client", zap.Error(err))
		}
	}()

	if err := client.Write(ctx, []Entry{e}); err != nil {
		return fmt.Errorf("failed to write remote log entry: %w", err)
	}

	// Entries may be buffered by the client until flushed.
	if err := client.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush remote log entry: %w", err)
	}

	return nil
}

func (s *Shipper) drop(e Entry, reason string) {
	total := s.dropped.Add(1)
	metrics.RemoteLogEntriesTotal.WithLabelValues("dropped").Inc()

	if s.warnLimiter.Allow() {
		s.logger.Warn("Dropped remote log entry",
			zap.String("reason", reason),
			zap.String("log_name", e.LogName),
			zap.String("invocation_id", e.InvocationID),
			zap.Uint64("dropped_total", total))
	}
}
