package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"trendsignal/internal/model"
)

// BufferedWriter wraps a model.UpdatePublisher (normally *Writer) with a
// circuit breaker.
// During circuit-open state, updates are buffered locally and flushed
// when the circuit closes again.
type BufferedWriter struct {
	next model.UpdatePublisher
	cb   *CircuitBreaker
	ctx  context.Context
	log  *slog.Logger

	mu     sync.Mutex
	buffer []model.Update
	maxBuf int // max buffered updates before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when an update is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered updates
}

// NewBufferedWriter creates a BufferedWriter wrapping next. ctx bounds the
// background flushes.
func NewBufferedWriter(ctx context.Context, next model.UpdatePublisher, cb *CircuitBreaker, maxBufferSize int, log *slog.Logger) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		next:   next,
		cb:     cb,
		ctx:    ctx,
		log:    log.With("component", "buffered-writer"),
		buffer: make([]model.Update, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// Publish writes u through the circuit breaker. If the circuit is open, the
// update is buffered locally and nil is returned.
func (bw *BufferedWriter) Publish(ctx context.Context, u model.Update) error {
	err := bw.cb.Execute(func() error { return bw.next.Publish(ctx, u) })
	if errors.Is(err, ErrCircuitOpen) {
		bw.bufferUpdate(u)
		return nil
	}
	return err
}

// Run publishes updates from ch until ctx is cancelled or ch is closed.
func (bw *BufferedWriter) Run(ctx context.Context, ch <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			// Errors are logged by the underlying writer.
			_ = bw.Publish(ctx, u)
		}
	}
}

func (bw *BufferedWriter) bufferUpdate(u model.Update) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full: drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, u)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered updates through the underlying publisher.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]model.Update, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, u := range toFlush {
		if err := bw.next.Publish(bw.ctx, u); err == nil {
			flushed++
		}
	}

	bw.log.Info("flushed buffered updates", "flushed", flushed, "buffered", len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered updates waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Stats is a point-in-time view of the publish path.
type Stats struct {
	State   State
	Trips   int
	Pending int
}

// Stats reports the breaker state and the local buffer depth.
func (bw *BufferedWriter) Stats() Stats {
	return Stats{
		State:   bw.cb.CurrentState(),
		Trips:   bw.cb.Trips(),
		Pending: bw.PendingCount(),
	}
}
